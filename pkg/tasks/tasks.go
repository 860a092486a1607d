// Package tasks 定义了后台摄取任务以及投递/处理的接口。
package tasks

import (
	"context"
	"errors"
	"sync"

	"smartdoc-go/pkg/log"
)

// IngestTask 是一次文档摄取任务的载荷。
type IngestTask struct {
	DocumentID uint   `json:"document_id"`
	OwnerID    uint   `json:"owner_id"`
	ObjectName string `json:"object_name"`
	FileName   string `json:"file_name"`
}

// Processor 处理一个摄取任务。返回错误表示需要重试。
type Processor interface {
	Process(ctx context.Context, task IngestTask) error
}

// Dispatcher 将任务投递到后台执行，至少执行一次。
type Dispatcher interface {
	Dispatch(ctx context.Context, task IngestTask) error
}

// ErrQueueFull 表示本地队列已满。
var ErrQueueFull = errors.New("ingest queue is full")

// ErrQueueClosed 表示本地队列已关闭。
var ErrQueueClosed = errors.New("ingest queue is closed")

// LocalDispatcher 是进程内的 worker 池，用于单机部署和测试。
type LocalDispatcher struct {
	queue       chan IngestTask
	processor   Processor
	maxAttempts int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewLocalDispatcher 启动 workers 个 worker 消费缓冲为 buffer 的队列。
func NewLocalDispatcher(processor Processor, workers, buffer, maxAttempts int) *LocalDispatcher {
	if workers <= 0 {
		workers = 1
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	d := &LocalDispatcher{
		queue:       make(chan IngestTask, buffer),
		processor:   processor,
		maxAttempts: maxAttempts,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Dispatch 非阻塞入队。
func (d *LocalDispatcher) Dispatch(_ context.Context, task IngestTask) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *LocalDispatcher) worker() {
	defer d.wg.Done()
	for task := range d.queue {
		for attempt := 1; attempt <= d.maxAttempts; attempt++ {
			err := d.processor.Process(context.Background(), task)
			if err == nil {
				break
			}
			log.Errorf("[LocalQueue] 处理任务失败, document_id: %d, 第 %d/%d 次, error: %v", task.DocumentID, attempt, d.maxAttempts, err)
		}
	}
}

// Close 停止接收新任务并等待已入队任务处理完。
func (d *LocalDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}
