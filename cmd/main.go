package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/klinikgo/clinic-server/cmd/api"
	"github.com/klinikgo/clinic-server/cmd/models"
	"github.com/klinikgo/clinic-server/db"
)

func main() {
	configureLogging()

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			runMigrations()
			return
		case "clear-db":
			runDatabaseClear()
			return
		default:
			log.Fatal().Str("command", os.Args[1]).Msg("unknown command")
		}
	}

	startServer()
}

func configureLogging() {
	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if os.Getenv("LOG_PRETTY") == "true" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func runMigrations() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatal().Err(err).Msg("database initialization error")
	}
	defer closeDB(DB)
	log.Info().Msg("connected to the database for migrations")

	if err := performMigrations(DB); err != nil {
		log.Fatal().Err(err).Msg("migration error")
	}
	log.Info().Msg("migrations completed successfully")
}

func performMigrations(DB *gorm.DB) error {
	migrations := []struct {
		model interface{}
		name  string
	}{
		{&models.User{}, "User"},
		{&models.Doctor{}, "Doctor"},
		{&models.Patient{}, "Patient"},
		{&models.Appointment{}, "Appointment"},
		{&models.MedicalRecord{}, "MedicalRecord"},
		{&models.Medication{}, "Medication"},
		{&models.Prescription{}, "Prescription"},
		{&models.PrescriptionItem{}, "PrescriptionItem"},
		{&models.PharmacyTransaction{}, "PharmacyTransaction"},
		{&models.PasswordResetToken{}, "PasswordResetToken"},
	}

	log.Info().Msg("starting database migrations")
	for _, migration := range migrations {
		log.Info().Str("table", migration.name).Msg("migrating")
		if err := DB.AutoMigrate(migration.model); err != nil {
			return fmt.Errorf("error migrating %s table: %w", migration.name, err)
		}
	}

	// Storage-level backstop for the booking race: two transactions can both
	// pass the conflict scan, but only one can hold the slot.
	if err := DB.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_appointments_slot
		 ON appointments (doctor_id, date, start_time)
		 WHERE status = 'scheduled' AND deleted_at IS NULL`,
	).Error; err != nil {
		return fmt.Errorf("error creating slot index: %w", err)
	}

	log.Info().Msg("all migrations completed successfully")
	return nil
}

func startServer() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatal().Err(err).Msg("database initialization error")
	}
	defer closeDB(DB)
	log.Info().Msg("connected to the database")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	server := api.NewApiServer(":"+port, DB)

	go func() {
		if err := server.Run(); err != nil {
			log.Fatal().Err(err).Msg("server error")
		}
	}()
	log.Info().Str("port", port).Msg("server running")

	<-quit
	log.Info().Msg("shutting down server")
}

func closeDB(DB *gorm.DB) {
	sqlDB, _ := DB.DB()
	sqlDB.Close()
	log.Info().Msg("database connection closed")
}

func clearDatabase(DB *gorm.DB, tables []interface{}) error {
	if len(tables) == 0 {
		tables = []interface{}{
			&models.PharmacyTransaction{},
			&models.PrescriptionItem{},
			&models.Prescription{},
			&models.Medication{},
			&models.MedicalRecord{},
			&models.Appointment{},
			&models.PasswordResetToken{},
			&models.Doctor{},
			&models.Patient{},
			&models.User{},
		}
	}

	log.Info().Msg("dropping tables")
	for _, table := range tables {
		if err := DB.Migrator().DropTable(table); err != nil {
			log.Warn().Err(err).Msgf("dropping table %T", table)
		} else {
			log.Info().Msgf("table %T dropped", table)
		}
	}
	return nil
}

func runDatabaseClear() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatal().Err(err).Msg("database initialization error")
	}
	defer closeDB(DB)

	log.Info().Msg("preparing to clear database")

	var confirmation string
	fmt.Print("Are you sure you want to clear the database? (yes/no): ")
	fmt.Scanln(&confirmation)
	if confirmation != "yes" {
		log.Info().Msg("database clearing cancelled")
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
			case "Doctor":
				tables = append(tables, &models.Doctor{})
			case "Patient":
				tables = append(tables, &models.Patient{})
			case "Appointment":
				tables = append(tables, &models.Appointment{})
			case "MedicalRecord":
				tables = append(tables, &models.MedicalRecord{})
			case "Medication":
				tables = append(tables, &models.Medication{})
			case "Prescription":
				tables = append(tables, &models.Prescription{})
			case "PrescriptionItem":
				tables = append(tables, &models.PrescriptionItem{})
			case "PharmacyTransaction":
				tables = append(tables, &models.PharmacyTransaction{})
			case "PasswordResetToken":
				tables = append(tables, &models.PasswordResetToken{})
			default:
				log.Warn().Str("table", table).Msg("unknown table")
			}
		}
	}

	if err := clearDatabase(DB, tables); err != nil {
		log.Fatal().Err(err).Msg("error clearing database")
	}
	log.Info().Msg("database cleared successfully")
}
