// Package queue 基于 asynq (Redis) 投递与消费摄取任务。
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"smartdoc-go/internal/config"
	"smartdoc-go/pkg/log"
	"smartdoc-go/pkg/tasks"

	"github.com/hibiken/asynq"
)

// TypeIngestDocument 摄取任务的 asynq 类型名。
const TypeIngestDocument = "ingest:document"

// NewIngestTask 构造 asynq 任务。
func NewIngestTask(t tasks.IngestTask, cfg config.AsynqConfig, maxRetry int) (*asynq.Task, error) {
	payload, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.MaxRetry(maxRetry)}
	if cfg.Queue != "" {
		opts = append(opts, asynq.Queue(cfg.Queue))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, asynq.Timeout(cfg.Timeout))
	}
	return asynq.NewTask(TypeIngestDocument, payload, opts...), nil
}

// Client 实现 tasks.Dispatcher。
type Client struct {
	client   *asynq.Client
	cfg      config.AsynqConfig
	maxRetry int
}

// NewClient 复用 database.redis 的连接参数。
func NewClient(redisCfg config.RedisConfig, cfg config.AsynqConfig, maxAttempts int) *Client {
	return &Client{
		client:   asynq.NewClient(redisOpt(redisCfg)),
		cfg:      cfg,
		maxRetry: max(maxAttempts-1, 0),
	}
}

func redisOpt(c config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.Addr, Password: c.Password, DB: c.DB}
}

func (c *Client) Dispatch(ctx context.Context, t tasks.IngestTask) error {
	task, err := NewIngestTask(t, c.cfg, c.maxRetry)
	if err != nil {
		return err
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return err
	}
	log.Infof("[Asynq] 摄取任务已入队, document_id: %d, task_id: %s, queue: %s", t.DocumentID, info.ID, info.Queue)
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// HandleIngestTask 将 asynq 任务解码后交给 processor。
func HandleIngestTask(processor tasks.Processor) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var task tasks.IngestTask
		if err := json.Unmarshal(t.Payload(), &task); err != nil {
			return fmt.Errorf("unmarshal ingest task: %v: %w", err, asynq.SkipRetry)
		}
		return processor.Process(ctx, task)
	}
}

// Server 是 asynq worker。
type Server struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

// NewServer 创建 worker 并注册摄取任务处理器。
func NewServer(redisCfg config.RedisConfig, cfg config.AsynqConfig, processor tasks.Processor) *Server {
	queues := map[string]int{"default": 1}
	if cfg.Queue != "" && cfg.Queue != "default" {
		queues[cfg.Queue] = 6
	}
	srv := asynq.NewServer(redisOpt(redisCfg), asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      queues,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Errorf("[Asynq] 任务 %s 执行失败: %v", task.Type(), err)
		}),
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeIngestDocument, HandleIngestTask(processor))
	return &Server{srv: srv, mux: mux}
}

// Start 在后台启动 worker，停机时调用 Shutdown。
func (s *Server) Start() error {
	return s.srv.Start(s.mux)
}

func (s *Server) Shutdown() {
	s.srv.Shutdown()
}
