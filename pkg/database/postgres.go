package database

import (
	"fmt"

	"smartdoc-go/pkg/log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenPostgres 打开 pgvector 所在的 Postgres 连接。
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}
	if err := configurePool(db, 5, 20); err != nil {
		return nil, err
	}
	log.Info("Postgres database connected successfully")
	return db, nil
}
