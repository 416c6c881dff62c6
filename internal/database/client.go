// Package database holds the persistence gateway for snowrank: the GORM
// models for resorts, snapshots, forecasts, scores and overrides, plus the
// idempotent upsert operations the pipeline writes through.
package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/snowrank/snowrank/internal/log"
	"go.uber.org/zap"
)

// Client holds the connection to the Postgres database
type Client struct {
	DB     *gorm.DB // Exported so it can be accessed from other packages
	logger *zap.SugaredLogger
}

// NewClient creates a database client and connects to Postgres
func NewClient(connectionString string, sugaredLogger *zap.SugaredLogger) (*Client, error) {
	// Create a logger for gorm
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	log.Info("connecting to Postgres...")
	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, fmt.Errorf("unable to create a Postgres connection: %w", err)
	}
	log.Info("Postgres connection successful")

	return &Client{DB: db, logger: sugaredLogger}, nil
}

// Migrate creates or updates the snowrank tables
func (c *Client) Migrate() error {
	return c.DB.AutoMigrate(
		&Resort{},
		&WeatherSnapshot{},
		&ForecastSnapshot{},
		&ResortScore{},
		&DepthOverride{},
	)
}
