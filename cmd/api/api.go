package api

import (
	"log"
	"net/http"

	"github.com/advizo/advizo-server/service/admin"
	"github.com/advizo/advizo-server/service/auth"
	"github.com/advizo/advizo-server/service/chat"
	"github.com/advizo/advizo-server/service/consultant"
	notification "github.com/advizo/advizo-server/service/notifications"
	"github.com/advizo/advizo-server/service/query"
	"github.com/advizo/advizo-server/service/session"
	"github.com/advizo/advizo-server/service/subadmin"
	"github.com/advizo/advizo-server/service/ws"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type APIServer struct {
	address string
	db      *gorm.DB
	hub     *ws.Hub
}

func NewApiServer(address string, db *gorm.DB) *APIServer {
	return &APIServer{
		address: address,
		db:      db,
		hub:     ws.NewHub(),
	}
}

func (s *APIServer) Run() error {
	defer s.hub.Close()

	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api/v1").Subrouter()

	notifier := notification.NewNotifier(s.db)

	authHandler := auth.NewAuthHandler(s.db)
	authHandler.RegisterRoutes(subrouter)

	consultantHandler := consultant.NewConsultantHandler(s.db)
	consultantHandler.RegisterRoutes(subrouter)

	queryHandler := query.NewQueryHandler(s.db, s.hub, notifier)
	queryHandler.RegisterRoutes(subrouter)

	sessionHandler := session.NewSessionHandler(s.db)
	sessionHandler.RegisterRoutes(subrouter)

	adminHandler := admin.NewAdminHandler(s.db, notifier)
	adminHandler.RegisterRoutes(subrouter)

	subAdminHandler := subadmin.NewSubAdminHandler(s.db)
	subAdminHandler.RegisterRoutes(subrouter)

	notificationHandler := notification.NewNotificationHandler(s.db, notifier)
	notificationHandler.RegisterRoutes(subrouter)

	chatHandler := chat.NewChatHandler(s.db, s.hub, notifier)
	chatHandler.RegisterRoutes(router)

	router.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir("uploads/documents"))),
	)

	corsHandler := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(router)

	log.Println("Server running at", s.address)
	return http.ListenAndServe(s.address, corsHandler)
}
