// Package database 负责建立 MySQL、Postgres 与 Redis 连接。
package database

import (
	"fmt"
	"time"

	"smartdoc-go/pkg/log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenMySQL 打开主库连接并配置连接池。
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect mysql: %w", err)
	}
	if err := configurePool(db, 10, 100); err != nil {
		return nil, err
	}
	log.Info("MySQL database connected successfully")
	return db, nil
}

func configurePool(db *gorm.DB, idle, open int) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(idle)
	sqlDB.SetMaxOpenConns(open)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return nil
}

// Close 关闭 gorm 底层连接池。
func Close(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
