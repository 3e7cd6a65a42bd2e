package tasks

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Pool は同時実行数を制限しながら投入済みジョブを実行するワーカープールです。
// 空きスロットがない場合ジョブはバックログに積まれ、投入側は一切ブロックしません。
// バックログに上限はありません（投入がスループットを上回り続ければ溜まります）。
type Pool struct {
	store   *Store
	workers int
	logger  *log.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []queuedJob
	closed bool
	wg     sync.WaitGroup
}

type queuedJob struct {
	taskID string
	job    Job
}

// NewPool は workers 個のスロットを持つ Pool を作成します。
func NewPool(store *Store, workers int, logger *log.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	pool := &Pool{
		store:   store,
		workers: workers,
		logger:  logger,
	}
	pool.cond = sync.NewCond(&pool.mu)
	return pool
}

// Start はワーカーゴルーチンを起動します。ctx はジョブ実行時にそのまま渡されます。
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Submit はジョブをバックログに積みます。ブロックせず即座に戻ります。
// クローズ後の投入は破棄されます。
func (p *Pool) Submit(taskID string, job Job) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.queue = append(p.queue, queuedJob{taskID: taskID, job: job})
	p.cond.Signal()
}

// Shutdown は新規ジョブの受付を止め、実行中のジョブが終わるのを待ちます。
// ctx の期限が先に切れた場合は待機を打ち切ります。
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		item, ok := p.next()
		if !ok {
			return
		}
		p.run(ctx, item)
	}
}

// next はバックログの先頭を取り出します。クローズ後は残りを掃き切ってから
// false を返します。
func (p *Pool) next() (queuedJob, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return queuedJob{}, false
	}
	item := p.queue[0]
	p.queue = p.queue[1:]
	return item, true
}

// run は1件のジョブを実行し、結果をストアに反映します。
// ジョブ内の panic はこのスロットで捕捉し、タスクの失敗として記録します。
func (p *Pool) run(ctx context.Context, item queuedJob) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Printf("task panicked: %s: %v", item.taskID, r)
			p.store.MarkFailed(item.taskID, fmt.Sprintf("panic: %v", r))
		}
	}()

	p.store.MarkRunning(item.taskID)

	report := func(percent int) {
		p.store.UpdateProgress(item.taskID, percent)
	}

	result, err := item.job(ctx, report)
	if err != nil {
		p.logger.Printf("task failed: %s: %v", item.taskID, err)
		p.store.MarkFailed(item.taskID, err.Error())
		return
	}

	p.store.MarkCompleted(item.taskID, result)
}
