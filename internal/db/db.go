package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/shinyyama/referral-tree-backend/internal/config"
	"github.com/shinyyama/referral-tree-backend/internal/model"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func BuildDSN(cfg *config.Config) string {
	addr := cfg.DBHost

	// Prefer Cloud SQL unix socket when INSTANCE_CONNECTION_NAME is provided.
	if cfg.InstanceConnectionName != "" {
		addr = fmt.Sprintf("unix(/cloudsql/%s)", cfg.InstanceConnectionName)
	} else if strings.HasPrefix(cfg.DBHost, "tcp(") || strings.HasPrefix(cfg.DBHost, "unix(") {
		// already wrapped
	} else if strings.HasPrefix(cfg.DBHost, "/") {
		addr = fmt.Sprintf("unix(%s)", cfg.DBHost)
	} else {
		addr = fmt.Sprintf("tcp(%s:%s)", cfg.DBHost, cfg.DBPort)
	}

	return fmt.Sprintf("%s:%s@%s/%s?charset=utf8mb4&parseTime=True&loc=Local", cfg.DBUser, cfg.DBPassword, addr, cfg.DBName)
}

func BuildPostgresDSN(cfg *config.Config) string {
	host := cfg.DBHost
	if cfg.InstanceConnectionName != "" {
		host = "/cloudsql/" + cfg.InstanceConnectionName
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)
}

// Dialector picks the gorm driver named by DB_DRIVER.
func Dialector(cfg *config.Config) (gorm.Dialector, error) {
	switch cfg.DBDriver {
	case "", "mysql":
		if cfg.DBHost == "" && cfg.InstanceConnectionName == "" {
			return nil, fmt.Errorf("DB_HOST is required for mysql")
		}
		return mysql.Open(BuildDSN(cfg)), nil
	case "postgres":
		if cfg.DBHost == "" && cfg.InstanceConnectionName == "" {
			return nil, fmt.Errorf("DB_HOST is required for postgres")
		}
		return postgres.Open(BuildPostgresDSN(cfg)), nil
	case "sqlite":
		return sqlite.Open(cfg.SQLitePath), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

func Connect(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}
	gcfg := GormConfig()
	if cfg.DBDriver == "sqlite" {
		gcfg.PrepareStmt = false
	}
	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	if cfg.DBDriver == "sqlite" {
		// sqlite serialises writers; one connection avoids SQLITE_BUSY on tx upgrades.
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

// GormConfig is shared by every binary. TranslateError is required so
// unique-index violations surface as gorm.ErrDuplicatedKey.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
}

// Migrate creates the four referral tables and their unique indexes.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.TreeEdge{},
		&model.Referral{},
		&model.PointsHistory{},
	); err != nil {
		return err
	}
	// root edges written before root_guard existed; fails if there are two
	err := db.Model(&model.TreeEdge{}).
		Where("parent_id IS NULL AND root_guard IS NULL").
		Update("root_guard", true).Error
	if err != nil {
		return fmt.Errorf("backfill root guard: %w", err)
	}
	return nil
}
