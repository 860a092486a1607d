// Package pipeline 定义了文档摄取的核心流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"smartdoc-go/internal/model"
	"smartdoc-go/internal/repository"
	"smartdoc-go/internal/vectorstore"
	"smartdoc-go/pkg/embedding"
	"smartdoc-go/pkg/log"
	"smartdoc-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
)

// 摄取阶段名，出现在失败原因的前缀中。
const (
	StageStart    = "start"
	StageDownload = "download"
	StageExtract  = "extract"
	StageClear    = "clear"
	StageChunk    = "chunk"
	StageEmbed    = "embed"
	StagePersist  = "persist"
)

// ErrNoText 表示提取结果为空。
var ErrNoText = errors.New("No text extracted")

// errLockLost 表示摄取锁已过期或被他人持有，本次运行不得再写任何数据。
var errLockLost = errors.New("ingest lock lost")

// abandonedError 表示本次运行不再拥有该文档，结果必须丢弃。
type abandonedError struct{ cause error }

func (e *abandonedError) Error() string { return "ingest run abandoned: " + e.cause.Error() }
func (e *abandonedError) Unwrap() error { return e.cause }

// StageError 记录失败的阶段与原始错误。
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailureMessage 生成写入 analysis_result.error 的描述。
func FailureMessage(err error) string {
	if errors.Is(err, ErrNoText) {
		return ErrNoText.Error()
	}
	return err.Error()
}

// ObjectReader 读取上传的原始文件。
type ObjectReader interface {
	Get(ctx context.Context, objectName string) ([]byte, error)
}

// ChunkWriter 是摄取流程对 ChunkStore 的依赖。
type ChunkWriter interface {
	Clear(ctx context.Context, documentID uint) error
	PutBatch(ctx context.Context, documentID, ownerID uint, records []vectorstore.Record) error
}

// Summarizer 生成文档摘要，失败时返回兜底文本而不是错误。
type Summarizer interface {
	Summarize(ctx context.Context, text string, wordCount int) string
}

// Options 摄取参数。
type Options struct {
	ChunkSize        int
	ChunkOverlap     int
	SummaryClipChars int
	LockTTL          time.Duration
}

// Processor 驱动文档从 pending/processing 到 completed 或 failed。
type Processor struct {
	docs       repository.DocumentRepository
	objects    ObjectReader
	extractor  Extractor
	embedder   embedding.Embedder
	store      ChunkWriter
	summarizer Summarizer
	rdb        *redis.Client
	opts       Options
}

// NewProcessor 创建一个新的 Processor 实例。rdb 为 nil 时不加分布式锁。
func NewProcessor(
	docs repository.DocumentRepository,
	objects ObjectReader,
	extractor Extractor,
	embedder embedding.Embedder,
	store ChunkWriter,
	summarizer Summarizer,
	rdb *redis.Client,
	opts Options,
) *Processor {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
		opts.ChunkOverlap = DefaultChunkOverlap
	}
	if opts.SummaryClipChars <= 0 {
		opts.SummaryClipChars = 15000
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Minute
	}
	return &Processor{
		docs:       docs,
		objects:    objects,
		extractor:  extractor,
		embedder:   embedder,
		store:      store,
		summarizer: summarizer,
		rdb:        rdb,
		opts:       opts,
	}
}

// Process 执行一次摄取。结果写库成功即返回 nil；只有结果本身无法持久化时返回错误，交给队列重投。
// 运行期间文档被删除或被超时清理时放弃结果，并清掉本次写入的分块。
func (p *Processor) Process(ctx context.Context, task tasks.IngestTask) error {
	log.Infof("[Processor] 开始处理文档, document_id: %d, file: %s", task.DocumentID, task.FileName)

	lk, acquired, err := p.lock(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("acquire ingest lock: %w", err)
	}
	if !acquired {
		log.Warnf("[Processor] 文档 %d 正在被其他 worker 处理, 跳过本次投递", task.DocumentID)
		return nil
	}
	defer lk.release(ctx)

	doc, err := p.docs.FindByID(task.DocumentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warnf("[Processor] 文档 %d 不存在, 可能已被删除", task.DocumentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	outcome, err := p.run(ctx, doc, lk)
	if err == nil {
		err = p.finish(ctx, doc.ID, lk, outcome)
	}
	var abandoned *abandonedError
	if errors.As(err, &abandoned) {
		p.abandon(ctx, doc.ID, abandoned)
		return nil
	}
	if err != nil {
		log.Errorf("[Processor] 保存处理结果失败, document_id: %d, error: %v", doc.ID, err)
		return fmt.Errorf("persist ingest outcome: %w", err)
	}

	switch v := outcome.(type) {
	case model.CompletedAnalysis:
		log.Ctx(ctx).Infof("[Processor] 文档处理完成, document_id: %d, chunks: %d, words: %d", doc.ID, v.ChunkCount, v.WordCount)
	case model.FailedAnalysis:
		log.Ctx(ctx).Warnf("[Processor] 文档处理失败, document_id: %d, error: %s", doc.ID, v.Error)
	}
	return nil
}

// finish 仅在仍持有锁且文档仍为 processing 时写入终态。
func (p *Processor) finish(ctx context.Context, documentID uint, lk *ingestLock, outcome model.Analysis) error {
	if err := lk.extend(ctx); err != nil {
		return &abandonedError{cause: err}
	}
	err := p.docs.FinishProcessing(documentID, outcome)
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, repository.ErrNotProcessing) {
		return &abandonedError{cause: err}
	}
	return err
}

// abandon 处理被放弃的运行。锁已丢失时另一个运行可能正在写入，不做任何清理。
func (p *Processor) abandon(ctx context.Context, documentID uint, reason *abandonedError) {
	log.Ctx(ctx).Warnf("[Processor] 放弃文档 %d 的处理结果: %v", documentID, reason.cause)
	if errors.Is(reason, errLockLost) {
		return
	}
	if err := p.store.Clear(context.WithoutCancel(ctx), documentID); err != nil {
		log.Errorf("[Processor] 清理被放弃运行的分块失败, document_id: %d, error: %v", documentID, err)
	}
}

// checkpoint 在阶段之间续期摄取锁并刷新 updated_at，避免超时清理误判仍在运行的文档。
func (p *Processor) checkpoint(ctx context.Context, documentID uint, lk *ingestLock) error {
	if err := lk.extend(ctx); err != nil {
		return &abandonedError{cause: err}
	}
	err := p.docs.Heartbeat(documentID)
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, repository.ErrNotProcessing) {
		return &abandonedError{cause: err}
	}
	return err
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// ingestLock 是 ingest:lock:<id> 的持有凭证，rdb 为 nil 时所有操作都是空操作。
type ingestLock struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
}

func (p *Processor) lock(ctx context.Context, documentID uint) (*ingestLock, bool, error) {
	lk := &ingestLock{rdb: p.rdb, key: fmt.Sprintf("ingest:lock:%d", documentID), token: uuid.NewString(), ttl: p.opts.LockTTL}
	if p.rdb == nil {
		return lk, true, nil
	}
	ok, err := p.rdb.SetNX(ctx, lk.key, lk.token, lk.ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return lk, true, nil
}

func (l *ingestLock) extend(ctx context.Context) error {
	if l.rdb == nil {
		return nil
	}
	n, err := extendScript.Run(ctx, l.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend ingest lock: %w", err)
	}
	if n == 0 {
		return errLockLost
	}
	return nil
}

func (l *ingestLock) release(ctx context.Context) {
	if l.rdb == nil {
		return
	}
	if err := unlockScript.Run(context.WithoutCancel(ctx), l.rdb, []string{l.key}, l.token).Err(); err != nil {
		log.Warnf("[Processor] 释放摄取锁失败, key: %s, error: %v", l.key, err)
	}
}

// run 依次执行各阶段，任何阶段失败或 panic 都转换为 FailedAnalysis。
// 返回非 nil error 仅表示运行被放弃。
func (p *Processor) run(ctx context.Context, doc *model.Document, lk *ingestLock) (outcome model.Analysis, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[Processor] 处理文档 %d 时发生 panic: %v\n%s", doc.ID, r, debug.Stack())
			outcome, err = model.FailedAnalysis{Error: fmt.Sprintf("internal error: %v", r)}, nil
		}
	}()

	ctx, span := otel.Tracer("smartdoc/pipeline").Start(ctx, "ingest.document")
	defer span.End()
	span.SetAttributes(attribute.Int("document.id", int(doc.ID)))

	result, err := p.ingest(ctx, doc, lk)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var abandoned *abandonedError
		if errors.As(err, &abandoned) {
			return nil, abandoned
		}
		return model.FailedAnalysis{Error: FailureMessage(err)}, nil
	}
	return result, nil
}

// stage 为单个阶段包上 span，并把错误标记为该阶段的 StageError。
func stage[T any](ctx context.Context, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := otel.Tracer("smartdoc/pipeline").Start(ctx, "ingest."+name)
	defer span.End()

	out, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, &StageError{Stage: name, Err: err}
	}
	return out, nil
}

func (p *Processor) ingest(ctx context.Context, doc *model.Document, lk *ingestLock) (model.CompletedAnalysis, error) {
	var none model.CompletedAnalysis

	// 立即写入 processing，状态查询可以看到进度
	if _, err := stage(ctx, StageStart, func(context.Context) (struct{}, error) {
		return struct{}{}, p.docs.SaveResult(doc.ID, model.ProcessingAnalysis{})
	}); err != nil {
		return none, err
	}

	data, err := stage(ctx, StageDownload, func(ctx context.Context) ([]byte, error) {
		return p.objects.Get(ctx, doc.ObjectName)
	})
	if err != nil {
		return none, err
	}

	if err := p.checkpoint(ctx, doc.ID, lk); err != nil {
		return none, err
	}

	extracted, err := stage(ctx, StageExtract, func(ctx context.Context) (Extraction, error) {
		res, err := p.extractor.Extract(ctx, data, doc.FileName)
		if err != nil {
			return res, err
		}
		res.Text = strings.TrimSpace(res.Text)
		if res.Text == "" {
			return res, ErrNoText
		}
		return res, nil
	})
	if err != nil {
		return none, err
	}
	text := extracted.Text
	log.Infof("[Processor] 文本提取成功, document_id: %d, 字符数: %d, 页数: %d", doc.ID, utf8.RuneCountInString(text), extracted.Pages)

	if err := p.checkpoint(ctx, doc.ID, lk); err != nil {
		return none, err
	}

	// 重新分析时整体替换旧分块
	if _, err := stage(ctx, StageClear, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.store.Clear(ctx, doc.ID)
	}); err != nil {
		return none, err
	}

	pieces, err := stage(ctx, StageChunk, func(context.Context) ([]string, error) {
		return SplitText(text, p.opts.ChunkSize, p.opts.ChunkOverlap)
	})
	if err != nil {
		return none, err
	}
	log.Infof("[Processor] 文本分块完成, document_id: %d, 分块数: %d", doc.ID, len(pieces))

	if len(pieces) > 0 {
		vectors, err := stage(ctx, StageEmbed, func(ctx context.Context) ([][]float32, error) {
			return p.embedder.EmbedBatch(ctx, pieces)
		})
		if err != nil {
			return none, err
		}

		if err := p.checkpoint(ctx, doc.ID, lk); err != nil {
			return none, err
		}

		records := make([]vectorstore.Record, len(pieces))
		for i, piece := range pieces {
			records[i] = vectorstore.Record{ChunkIndex: i, Text: piece, Vector: vectors[i]}
		}
		if _, err := stage(ctx, StagePersist, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, p.store.PutBatch(ctx, doc.ID, doc.OwnerID, records)
		}); err != nil {
			return none, err
		}
	}

	clip := clipRunes(text, p.opts.SummaryClipChars)
	clipWords := len(strings.Fields(clip))
	summary := strings.TrimSpace(p.summarizer.Summarize(ctx, clip, clipWords))
	if summary == "" {
		summary = fmt.Sprintf("Document contains %d words.", clipWords)
	}

	return model.CompletedAnalysis{
		Summary:    summary,
		ChunkCount: len(pieces),
		CharCount:  utf8.RuneCountInString(text),
		WordCount:  len(strings.Fields(text)),
		PageCount:  extracted.Pages,
	}, nil
}

func clipRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
