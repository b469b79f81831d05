package db

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	// Blank imports register the postgres driver and file source for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/marchfield/liveryard/internal/auth"
	"github.com/marchfield/liveryard/internal/models"
)

// Models in FK dependency order, shared by AutoMigrate and the test helpers.
func AllModels() []interface{} {
	return []interface{}{
		&models.User{}, &models.Owner{}, &models.Location{}, &models.Horse{},
		&models.RateType{}, &models.Placement{}, &models.HorseOwnership{},
		&models.ServiceProvider{}, &models.ExtraCharge{},
		&models.Invoice{}, &models.InvoiceLineItem{},
		&models.VaccinationType{}, &models.Vaccination{}, &models.FarrierVisit{},
		&models.BusinessSettings{},
	}
}

// ConnectAndMigrate opens the configured postgres database and brings the
// schema up to date. With MIGRATIONS=1 the SQL migrations in ./migrations run
// via golang-migrate; otherwise AutoMigrate is used (dev convenience).
func ConnectAndMigrate(rawDSN string) (*gorm.DB, error) {
	dsn := NormalizeDSN(rawDSN)
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_DSN is empty; check the environment configuration")
	}
	var db *gorm.DB
	var err error
	logLevel := logger.Silent
	if os.Getenv("DB_DEBUG") == "1" {
		logLevel = logger.Info
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logLevel)}
	for i := 0; i < 10; i++ {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
		if err == nil {
			break
		}
		fmt.Println("Retrying DB connection...", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect database after retries: %w", err)
	}

	if pingErr := db.Exec("SELECT 1").Error; pingErr != nil {
		return nil, fmt.Errorf("db ping failed: %w", pingErr)
	}

	// Print masked DSN once for diagnostics (before migrations for visibility)
	masked := dsn
	if strings.Contains(masked, "password=") {
		re := regexp.MustCompile(`(password=)([^\s]+)`)
		masked = re.ReplaceAllString(masked, `${1}***`)
	}
	fmt.Println("[DB] Using DSN:", masked)

	if v := strings.ToLower(os.Getenv("MIGRATIONS")); v == "1" || v == "true" || v == "yes" {
		if err := runSQLMigrations(dsn); err != nil {
			return nil, fmt.Errorf("sql migrations failed: %w", err)
		}
	} else {
		for _, m := range AllModels() {
			if migErr := db.AutoMigrate(m); migErr != nil {
				return nil, fmt.Errorf("automigrate %T: %w", m, migErr)
			}
		}
	}

	// sanity check: ensure required core tables exist
	for _, table := range []string{"owners", "horses", "placements", "invoices"} {
		if !db.Migrator().HasTable(table) {
			return nil, errors.New("missing table after migration: " + table)
		}
	}
	// Seeding only when explicitly requested (e.g. development) via DB_SEED=1|true
	if v := strings.ToLower(os.Getenv("DB_SEED")); v == "1" || v == "true" || v == "yes" {
		Seed(db)
	}
	return db, nil
}

// Seed inserts the baseline rate types and the settings row when absent.
func Seed(db *gorm.DB) {
	rate := func(s string) decimal.Decimal {
		d, _ := decimal.NewFromString(s)
		return d
	}
	baseRates := []models.RateType{
		{Name: "Grass Livery", Period: models.RatePeriodDaily, DailyRate: rate("7.50"), IsActive: true},
		{Name: "Stabled", Period: models.RatePeriodDaily, DailyRate: rate("15.00"), IsActive: true},
		{Name: "Full Livery", Period: models.RatePeriodDaily, DailyRate: rate("24.00"), IsActive: true},
		{Name: "Retirement Paddock", Period: models.RatePeriodMonthly, MonthlyRate: rate("180.00"), IsActive: true},
	}
	for _, rt := range baseRates {
		var existing models.RateType
		if err := db.Where("name = ?", rt.Name).First(&existing).Error; err == gorm.ErrRecordNotFound {
			db.Create(&rt)
		}
	}
	baseVaccinations := []models.VaccinationType{
		{Name: "Equine Influenza", IntervalMonths: 12, ReminderDaysBefore: 30, IsActive: true},
		{Name: "Tetanus", IntervalMonths: 24, ReminderDaysBefore: 30, IsActive: true},
	}
	for _, vt := range baseVaccinations {
		var existing models.VaccinationType
		if err := db.Where("name = ?", vt.Name).First(&existing).Error; err == gorm.ErrRecordNotFound {
			db.Create(&vt)
		}
	}
	if _, err := models.GetSettings(db); err != nil {
		fmt.Println("[DB] seed settings:", err)
	}
	seedAdminUser(db)
}

// seedAdminUser creates the first staff account from ADMIN_EMAIL and
// ADMIN_PASSWORD when no users exist. There is no register endpoint.
func seedAdminUser(db *gorm.DB) {
	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil || count > 0 {
		return
	}
	adminEmail := strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL")))
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminEmail == "" || adminPassword == "" {
		fmt.Println("[DB] no users and no ADMIN_EMAIL/ADMIN_PASSWORD set; skipping admin seed")
		return
	}
	hash, err := auth.HashPassword(adminPassword)
	if err != nil {
		fmt.Println("[DB] seed admin:", err)
		return
	}
	user := models.User{Email: adminEmail, Password: hash, Name: "Administrator"}
	if err := db.Create(&user).Error; err != nil {
		fmt.Println("[DB] seed admin:", err)
		return
	}
	fmt.Println("[DB] seeded admin user", adminEmail)
}

// runSQLMigrations executes migrations in ./migrations using golang-migrate file source.
func runSQLMigrations(dsn string) error {
	m, err := migrate.New("file://migrations", ToURLDSN(dsn))
	if err != nil {
		return err
	}
	if err = m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
