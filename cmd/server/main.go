// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"smartdoc-go/internal/config"
	"smartdoc-go/pkg/log"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "smartdoc",
	Short:         "PDF 文档问答服务",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		config.Conf = cfg
		return log.Init(cfg.Log)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./configs/config.yaml", "配置文件路径")
	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd, ingestCmd)
}

// signalContext 在收到 SIGINT/SIGTERM 时取消。
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
