package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/advizo/advizo-server/cmd/api"
	"github.com/advizo/advizo-server/cmd/models"
	"github.com/advizo/advizo-server/db"
	"github.com/advizo/advizo-server/service/admin"
	"gorm.io/gorm"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			runMigrations()
			return
		case "clear-db":
			runDatabaseClear()
			return
		default:
			log.Fatalf("Unknown command: %s", os.Args[1])
		}
	}

	startServer()
}

func runMigrations() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		log.Println("Database connection closed")
	}()
	log.Println("Connected to the database for migrations")

	if err := performMigrations(DB); err != nil {
		log.Fatalf("Migration error: %v", err)
	}
	log.Println("Migrations completed successfully")
}

func performMigrations(DB *gorm.DB) error {

	migrations := map[interface{}]string{
		&models.User{}:                 "User",
		&models.PasswordResetToken{}:   "PasswordResetToken",
		&models.Consultant{}:           "Consultant",
		&models.Certification{}:        "Certification",
		&models.Verification{}:         "Verification",
		&models.VerificationDocument{}: "VerificationDocument",
		&models.Query{}:                "Query",
		&models.QueryFile{}:            "QueryFile",
		&models.Session{}:              "Session",
		&models.SessionDocument{}:      "SessionDocument",
		&models.Chat{}:                 "Chat",
		&models.ChatMessage{}:          "ChatMessage",
		&models.Device{}:               "Device",
		&models.NotificationHistory{}:  "NotificationHistory",
		&models.Notification{}:         "Notification",
		&models.Transaction{}:          "Transaction",
		&models.AnalyticsSnapshot{}:    "AnalyticsSnapshot",
	}

	log.Println("Starting database migrations...")
	for model, name := range migrations {
		log.Printf("Migrating %s table...", name)
		if err := DB.AutoMigrate(model); err != nil {
			return fmt.Errorf("error migrating %s table: %w", name, err)
		}
		log.Printf("%s migration successful", name)
	}

	directories := []string{
		"uploads/documents",
	}

	for _, dir := range directories {
		if err := createDirectoryIfNotExist(dir); err != nil {
			log.Fatalf("Error creating directory %s: %v", dir, err)
		}
		log.Printf("Directory %s created/verified", dir)
	}

	log.Println("All migrations and directory setup completed successfully")
	return nil
}

func createDirectoryIfNotExist(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("could not create directory %s: %w", path, err)
		}
	}
	return nil
}

func startServer() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		log.Println("Database connection closed")
	}()
	log.Println("Connected to the database")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	stopSnapshots := make(chan struct{})
	admin.StartDailySnapshots(DB, stopSnapshots)

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	server := api.NewApiServer(":"+port, DB)

	go func() {
		if err := server.Run(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()
	log.Printf("Server running on port %s", port)

	<-quit
	close(stopSnapshots)
	log.Println("Shutting down server...")
}

func clearDatabase(DB *gorm.DB, tables []interface{}) error {
	if len(tables) == 0 {
		// Default: drop everything, children before parents.
		tables = []interface{}{
			&models.ChatMessage{},
			&models.Chat{},
			&models.SessionDocument{},
			&models.QueryFile{},
			&models.Query{},
			&models.Session{},
			&models.Transaction{},
			&models.Notification{},
			&models.NotificationHistory{},
			&models.Device{},
			&models.VerificationDocument{},
			&models.Verification{},
			&models.Certification{},
			&models.Consultant{},
			&models.PasswordResetToken{},
			&models.AnalyticsSnapshot{},
			&models.User{},
		}
	}

	log.Println("Dropping tables...")

	for _, table := range tables {
		if err := DB.Migrator().DropTable(table); err != nil {
			log.Printf("Warning dropping table %T: %v", table, err)
		} else {
			log.Printf("Table %T dropped", table)
		}
	}

	return nil
}

func runDatabaseClear() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		log.Println("Database connection closed")
	}()

	log.Println("Preparing to clear database...")

	var confirmation string
	fmt.Print("Are you sure you want to clear the database? (yes/no): ")
	fmt.Scanln(&confirmation)

	if confirmation != "yes" {
		log.Println("Database clearing cancelled.")
		return
	}

	var tableNames string
	fmt.Print("Enter table names to clear (comma separated) or leave blank to clear all: ")
	fmt.Scanln(&tableNames)

	var tables []interface{}
	if tableNames != "" {
		for _, table := range strings.Split(tableNames, ",") {
			switch strings.TrimSpace(table) {
			case "User":
				tables = append(tables, &models.User{})
			case "PasswordResetToken":
				tables = append(tables, &models.PasswordResetToken{})
			case "Consultant":
				tables = append(tables, &models.Consultant{})
			case "Certification":
				tables = append(tables, &models.Certification{})
			case "Verification":
				tables = append(tables, &models.Verification{})
			case "VerificationDocument":
				tables = append(tables, &models.VerificationDocument{})
			case "Query":
				tables = append(tables, &models.Query{})
			case "QueryFile":
				tables = append(tables, &models.QueryFile{})
			case "Session":
				tables = append(tables, &models.Session{})
			case "SessionDocument":
				tables = append(tables, &models.SessionDocument{})
			case "Chat":
				tables = append(tables, &models.Chat{})
			case "ChatMessage":
				tables = append(tables, &models.ChatMessage{})
			case "Device":
				tables = append(tables, &models.Device{})
			case "NotificationHistory":
				tables = append(tables, &models.NotificationHistory{})
			case "Notification":
				tables = append(tables, &models.Notification{})
			case "Transaction":
				tables = append(tables, &models.Transaction{})
			case "AnalyticsSnapshot":
				tables = append(tables, &models.AnalyticsSnapshot{})
			default:
				log.Printf("Unknown table: %s", table)
			}
		}
	}

	if err := clearDatabase(DB, tables); err != nil {
		log.Fatalf("Error clearing database: %v", err)
	}

	log.Println("Database cleared successfully")
}
