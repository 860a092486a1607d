package main

import (
	"errors"

	"smartdoc-go/internal/config"
	"smartdoc-go/pkg/log"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "只运行摄取任务消费端与超时清理",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker(config.Conf)
	},
}

func runWorker(cfg config.Config) error {
	if cfg.Queue.Backend == "local" {
		return errors.New("queue.backend=local 没有独立 worker, 请使用 serve")
	}
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	wait, err := a.startWorker(ctx)
	if err != nil {
		return err
	}
	sweeper, err := a.startSweeper()
	if err != nil {
		stop()
		wait()
		return err
	}
	defer sweeper.Stop()

	log.Infof("[Worker] 已启动, 队列: %s", cfg.Queue.Backend)
	wait()
	log.Info("[Worker] 已退出")
	return nil
}
