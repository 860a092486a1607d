package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"smartdoc-go/internal/config"
	"smartdoc-go/internal/handler"
	"smartdoc-go/internal/middleware"
	"smartdoc-go/pkg/log"
	"smartdoc-go/pkg/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveNoWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP API（默认同时运行摄取 worker 与超时清理）",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(config.Conf, !serveNoWorker)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoWorker, "no-worker", false, "只提供 API，不在本进程内消费摄取任务")
}

func runServe(cfg config.Config, withWorker bool) error {
	ctx, stop := signalContext()
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTracer(sctx)
	}()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	dispatcher, closeDispatcher, err := a.newDispatcher()
	if err != nil {
		return err
	}
	defer closeDispatcher()

	if withWorker {
		if cfg.Queue.Backend != "local" {
			wait, err := a.startWorker(ctx)
			if err != nil {
				return err
			}
			defer func() {
				stop()
				wait()
			}()
		}
		sweeper, err := a.startSweeper()
		if err != nil {
			return err
		}
		defer sweeper.Stop()
	} else if cfg.Queue.Backend == "local" {
		log.Warnf("[Serve] queue.backend=local 时任务总在本进程内执行, --no-worker 被忽略")
	}

	svc := a.newServices(dispatcher)
	gin.SetMode(cfg.Server.Mode)
	router := handler.NewRouter(handler.RouterDeps{
		UserService:     svc.users,
		DocumentService: svc.documents,
		SearchService:   svc.search,
		ChatService:     svc.chat,
		JWTManager:      svc.jwt,
		RAG:             cfg.RAG,
		AskLimiter:      middleware.NewRateLimiter(cfg.RateLimit.AskPerMinute),
		UploadLimiter:   middleware.NewRateLimiter(cfg.RateLimit.UploadPerMinute),
		CORSOrigins:     cfg.Server.CORSOrigins,
		ServiceName:     cfg.Telemetry.ServiceName,
		Tracing:         cfg.Telemetry.Enabled,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP 服务监听失败: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("接收到停机信号，正在关闭服务...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP 服务器关闭失败: %w", err)
	}
	log.Info("服务已优雅关闭")
	return nil
}
