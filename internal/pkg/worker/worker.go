package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler 任务处理函数，返回错误时任务进入重试队列
type Handler[T any] func(ctx context.Context, payload T) error

type task[T any] struct {
	payload T
	retry   int // 重试次数
}

// Options 工作池参数
type Options struct {
	Workers    int
	QueueSize  int
	MaxRetry   int           // 最大重试次数
	RetryDelay time.Duration // 第 n 次重试前等待 n*RetryDelay
}

// WorkerPool 带重试队列的异步工作池
// 入队不阻塞：队列满时任务直接进入死信日志
type WorkerPool[T any] struct {
	name    string
	tasks   chan task[T]
	retries chan task[T] // 重试队列
	handle  Handler[T]
	opts    Options
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
	quit   chan struct{}
	wg     sync.WaitGroup

	// OnDeadLetter 任务最终失败时回调，可为 nil
	OnDeadLetter func(payload T, err error)
}

func NewWorkerPool[T any](name string, handle Handler[T], opts Options, log *zap.Logger) *WorkerPool[T] {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkerPool[T]{
		name:    name,
		tasks:   make(chan task[T], opts.QueueSize),
		retries: make(chan task[T], opts.QueueSize/2+1),
		handle:  handle,
		opts:    opts,
		log:     log.With(zap.String("pool", name)),
		quit:    make(chan struct{}),
	}
}

// Start 启动工作协程与重试协程
func (p *WorkerPool[T]) Start(ctx context.Context) {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	// 启动重试处理协程
	p.wg.Add(1)
	go p.retryWorker()
	p.log.Info("worker pool started", zap.Int("workers", p.opts.Workers))
}

func (p *WorkerPool[T]) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for t := range p.tasks {
		err := p.handle(ctx, t.payload)
		if err == nil {
			continue
		}
		p.log.Warn("task failed", zap.Int("worker", id), zap.Int("attempt", t.retry), zap.Error(err))

		// 如果未达到最大重试次数，加入重试队列
		if t.retry < p.opts.MaxRetry {
			t.retry++
			select {
			case p.retries <- t:
			default:
				p.deadLetter(t, err)
			}
		} else {
			p.deadLetter(t, err)
		}
	}
}

func (p *WorkerPool[T]) retryWorker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case t := <-p.retries:
			// 延迟重试，避免立即重试
			select {
			case <-time.After(time.Duration(t.retry) * p.opts.RetryDelay):
			case <-p.quit:
				p.deadLetter(t, nil)
				return
			}
			if !p.enqueue(t) {
				p.deadLetter(t, nil)
			}
		}
	}
}

func (p *WorkerPool[T]) enqueue(t task[T]) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.tasks <- t:
		return true
	default:
		return false
	}
}

func (p *WorkerPool[T]) deadLetter(t task[T], err error) {
	p.log.Error("task dropped", zap.Int("attempts", t.retry), zap.Any("payload", t.payload), zap.Error(err))
	if p.OnDeadLetter != nil {
		p.OnDeadLetter(t.payload, err)
	}
}

// Submit 提交任务，队列已满或已停止时返回 false
func (p *WorkerPool[T]) Submit(payload T) bool {
	if p.enqueue(task[T]{payload: payload}) {
		return true
	}
	p.deadLetter(task[T]{payload: payload}, nil)
	return false
}

// Stop 停止接收新任务，等待队列中的任务处理完毕
// 尚在重试等待中的任务记入死信
func (p *WorkerPool[T]) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.quit)
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Info("worker pool stopped")
}
