package main

import (
	"fmt"

	"smartdoc-go/internal/config"
	"smartdoc-go/internal/model"
	"smartdoc-go/internal/vectorstore"
	"smartdoc-go/pkg/database"
	"smartdoc-go/pkg/log"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "创建或更新数据库表结构",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(config.Conf)
	},
}

func runMigrate(cfg config.Config) error {
	db, err := database.OpenMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := db.AutoMigrate(&model.User{}, &model.Document{}, &model.DocumentChunk{}); err != nil {
		return fmt.Errorf("auto migrate mysql: %w", err)
	}
	log.Info("[Migrate] MySQL 表结构已更新")

	if cfg.VectorStore.Backend == "pgvector" {
		pg, err := database.OpenPostgres(cfg.Database.Postgres.DSN)
		if err != nil {
			return err
		}
		defer database.Close(pg)
		if err := vectorstore.NewPgvectorIndex(pg).Migrate(); err != nil {
			return err
		}
		log.Info("[Migrate] pgvector 表结构已更新")
	}
	return nil
}
