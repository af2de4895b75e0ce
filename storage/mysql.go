package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/oksnap/oksnap/config"
)

// KVRecord is the self-hosted-mode row backing Store on MySQL.
type KVRecord struct {
	RecordKey    string    `gorm:"primaryKey;size:255;column:record_key"`
	Count        int       `gorm:"default:0"`
	Date         string    `gorm:"size:10;index"`
	Level        string    `gorm:"size:16"`
	BonusApplied bool      `gorm:"default:false"`
	ResetTime    *time.Time
	ExpiresAt    *time.Time
	UpdatedAt    time.Time
}

// TableName specifies the table name for KVRecord.
func (KVRecord) TableName() string {
	return "kv_records"
}

// MySQLStore implements Store on a MySQL table through GORM, for
// self-hosted deployments that do not use Supabase.
type MySQLStore struct {
	db *gorm.DB
}

// InitMySQL establishes the MySQL connection and migrates the kv_records table.
func InitMySQL(cfg config.AppConfig) (*MySQLStore, error) {
	var dsn string
	if cfg.DatabaseURI != "" {
		dsn = cfg.DatabaseURI
	} else {
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBName,
		)
	}

	gLogger := logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             2 * time.Second,
			LogLevel:                  toGormLogLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:                                   gLogger,
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("mysql ping: %w", err)
	}

	if err := db.AutoMigrate(&KVRecord{}); err != nil {
		return nil, fmt.Errorf("migrate kv_records: %w", err)
	}

	return &MySQLStore{db: db}, nil
}

// NewMySQLStore wraps an existing GORM handle (test hook).
func NewMySQLStore(db *gorm.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func (s *MySQLStore) Get(ctx context.Context, key string) (*Record, error) {
	var row KVRecord
	err := s.db.WithContext(ctx).First(&row, "record_key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rec := Record{
		Count:        row.Count,
		Date:         row.Date,
		Level:        row.Level,
		BonusApplied: row.BonusApplied,
	}
	if row.ResetTime != nil {
		rec.ResetTime = *row.ResetTime
	}
	return &rec, nil
}

func (s *MySQLStore) Set(ctx context.Context, key string, rec *Record, expiresAt time.Time) error {
	row := KVRecord{
		RecordKey:    key,
		Count:        rec.Count,
		Date:         rec.Date,
		Level:        rec.Level,
		BonusApplied: rec.BonusApplied,
		UpdatedAt:    time.Now(),
	}
	if !rec.ResetTime.IsZero() {
		t := rec.ResetTime
		row.ResetTime = &t
	}
	if !expiresAt.IsZero() {
		t := expiresAt
		row.ExpiresAt = &t
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "record_key"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func (s *MySQLStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Delete(&KVRecord{}, "record_key = ?", key).Error
}

// toGormLogLevel maps application LogLevel to GORM's logger level.
func toGormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "warn", "info", "":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}
