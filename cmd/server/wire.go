package main

import (
	"context"
	"fmt"

	"smartdoc-go/internal/config"
	"smartdoc-go/internal/pipeline"
	"smartdoc-go/internal/repository"
	"smartdoc-go/internal/scheduler"
	"smartdoc-go/internal/service"
	"smartdoc-go/internal/vectorstore"
	"smartdoc-go/pkg/database"
	"smartdoc-go/pkg/embedding"
	"smartdoc-go/pkg/es"
	"smartdoc-go/pkg/kafka"
	"smartdoc-go/pkg/llm"
	"smartdoc-go/pkg/log"
	"smartdoc-go/pkg/queue"
	"smartdoc-go/pkg/storage"
	"smartdoc-go/pkg/tasks"
	"smartdoc-go/pkg/tika"
	"smartdoc-go/pkg/token"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// app 持有进程内共享的连接与组件。
type app struct {
	cfg config.Config

	db       *gorm.DB
	rdb      *redis.Client
	bucket   *storage.Bucket
	embedder *embedding.Model

	users     repository.UserRepository
	docs      repository.DocumentRepository
	chunkRepo repository.ChunkRepository
	store     *vectorstore.ChunkStore
	answers   service.AnswerService
	processor *pipeline.Processor

	closers []func()
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var err error
	if a.db, err = database.OpenMySQL(cfg.Database.MySQL.DSN); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { database.Close(a.db) })

	if a.rdb, err = database.OpenRedis(ctx, cfg.Database.Redis); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = a.rdb.Close() })

	if a.bucket, err = storage.NewBucket(ctx, cfg.MinIO); err != nil {
		return nil, err
	}

	a.embedder = embedding.NewModel(cfg.Embedding)
	a.closers = append(a.closers, func() { _ = a.embedder.Close() })

	index, err := a.newIndex()
	if err != nil {
		return nil, err
	}

	a.users = repository.NewUserRepository(a.db)
	a.docs = repository.NewDocumentRepository(a.db)
	a.chunkRepo = repository.NewChunkRepository(a.db)
	a.store = vectorstore.NewChunkStore(a.chunkRepo, index, a.embedder.ModelVersion())
	a.answers = service.NewAnswerService(llm.NewClient(cfg.LLM), cfg.LLM)

	var tikaClient *tika.Client
	if cfg.Tika.ServerURL != "" {
		tikaClient = tika.NewClient(cfg.Tika)
	}
	extractor := pipeline.NewExtractor(tikaClient)
	a.processor = pipeline.NewProcessor(a.docs, a.bucket, extractor, a.embedder, a.store, a.answers, a.rdb,
		pipeline.Options{
			ChunkSize:        cfg.RAG.ChunkSize,
			ChunkOverlap:     cfg.RAG.ChunkOverlap,
			SummaryClipChars: cfg.RAG.SummaryClipChars,
			LockTTL:          cfg.Ingest.LockTTL,
		})

	ok = true
	return a, nil
}

// newIndex 按 vector_store.backend 创建向量索引后端。
func (a *app) newIndex() (vectorstore.Index, error) {
	switch a.cfg.VectorStore.Backend {
	case "memory":
		log.Warnf("[Wire] 使用内存向量索引，重启后检索结果会丢失")
		return vectorstore.NewMemoryIndex(), nil
	case "pgvector":
		pg, err := database.OpenPostgres(a.cfg.Database.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { database.Close(pg) })
		return vectorstore.NewPgvectorIndex(pg), nil
	default:
		client, err := es.NewClient(a.cfg.Elasticsearch)
		if err != nil {
			return nil, err
		}
		return vectorstore.NewElasticIndex(client, a.cfg.Elasticsearch.IndexName, a.embedder.ModelVersion()), nil
	}
}

// newDispatcher 创建任务投递端。local 后端直接在本进程内执行 Processor。
func (a *app) newDispatcher() (tasks.Dispatcher, func(), error) {
	q := a.cfg.Queue
	switch q.Backend {
	case "kafka":
		p := kafka.NewProducer(q.Kafka)
		return p, func() { _ = p.Close() }, nil
	case "asynq":
		c := queue.NewClient(a.cfg.Database.Redis, q.Asynq, q.MaxAttempts)
		return c, func() { _ = c.Close() }, nil
	case "local":
		d := tasks.NewLocalDispatcher(a.processor, q.Local.Workers, q.Local.Buffer, q.MaxAttempts)
		return d, d.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue backend %q", q.Backend)
	}
}

// startWorker 启动队列消费端，返回的函数阻塞到消费端退出。
func (a *app) startWorker(ctx context.Context) (func(), error) {
	q := a.cfg.Queue
	switch q.Backend {
	case "kafka":
		consumer := kafka.NewConsumer(q.Kafka, a.rdb, q.MaxAttempts)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := consumer.Run(ctx, a.processor); err != nil {
				log.Errorf("[Worker] Kafka 消费者退出: %v", err)
			}
		}()
		return func() { <-done }, nil
	case "asynq":
		srv := queue.NewServer(a.cfg.Database.Redis, q.Asynq, a.processor)
		if err := srv.Start(); err != nil {
			return nil, fmt.Errorf("start asynq server: %w", err)
		}
		return func() {
			<-ctx.Done()
			srv.Shutdown()
		}, nil
	default:
		return nil, fmt.Errorf("queue backend %q has no standalone worker", q.Backend)
	}
}

// startSweeper 启动超时清理任务。
func (a *app) startSweeper() (*scheduler.Sweeper, error) {
	s := scheduler.NewSweeper(a.docs, a.cfg.Ingest.StaleAfter, a.cfg.Ingest.SweepInterval)
	if err := s.Start(); err != nil {
		return nil, err
	}
	return s, nil
}

type services struct {
	users     service.UserService
	documents service.DocumentService
	search    service.SearchService
	chat      service.ChatService
	jwt       *token.JWTManager
}

func (a *app) newServices(dispatcher tasks.Dispatcher) services {
	cfg := a.cfg
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	search := service.NewSearchService(a.embedder, a.store, a.docs)
	return services{
		users: service.NewUserService(a.users, jwtManager, a.rdb),
		documents: service.NewDocumentService(a.docs, a.chunkRepo, a.store, a.bucket, dispatcher, service.UploadOptions{
			MaxBytes:  cfg.Server.MaxUploadMB << 20,
			AutoStart: cfg.Ingest.AutoStart,
		}),
		search: search,
		chat:   service.NewChatService(search, a.answers, a.docs, repository.NewConversationRepository(a.rdb), cfg.RAG),
		jwt:    jwtManager,
	}
}

// Close 按创建的逆序释放资源。
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
