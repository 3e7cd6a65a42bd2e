package tasks

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/yourusername/maternal-assist/internal/config"
)

// Manager はタスクの投入と状態参照を担うファサードです。
// HTTP層などの外部コンポーネントはこの型だけを経由してタスクを扱います。
type Manager struct {
	store           *Store
	pool            *Pool
	cleanupInterval time.Duration
	maxAge          time.Duration
	logger          *log.Logger
}

// NewManager は Manager を初期化します。ワーカーはまだ起動しません。
func NewManager(cfg *config.Config, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = log.Default()
	}

	store := NewStore()
	return &Manager{
		store:           store,
		pool:            NewPool(store, cfg.TaskMaxWorkers, logger),
		cleanupInterval: time.Duration(cfg.TaskCleanupIntervalSeconds) * time.Second,
		maxAge:          time.Duration(cfg.TaskMaxAgeHours) * time.Hour,
		logger:          logger,
	}, nil
}

// Start はワーカープールと定期掃除ループをバックグラウンドで起動します。
func (m *Manager) Start(ctx context.Context) {
	m.pool.Start(ctx)
	go m.cleanupLoop(ctx)
}

// Shutdown は新規投入を止め、実行中のタスクの完了を待ちます。
func (m *Manager) Shutdown(ctx context.Context) error {
	return m.pool.Shutdown(ctx)
}

// Submit はジョブを登録し、採番したタスクIDを即座に返します。
// ジョブの実行完了は待ちません。
func (m *Manager) Submit(job Job) (string, error) {
	if job == nil {
		return "", errors.New("job is nil")
	}

	taskID := m.store.Create()
	m.pool.Submit(taskID, job)
	m.logger.Printf("task submitted: %s", taskID)
	return taskID, nil
}

// GetStatus はタスクの現在のスナップショットを返します。
// 存在しない（または掃除済みの）IDの場合は二番目の戻り値が false になります。
func (m *Manager) GetStatus(taskID string) (Record, bool) {
	return m.store.Get(taskID)
}

// Cleanup は期限切れの終了済みタスクを1回分掃除します。
func (m *Manager) Cleanup() int {
	return m.store.Sweep(m.maxAge)
}

// cleanupLoop は設定間隔で Cleanup を呼び続けます。
// 1回の掃除で問題が起きても次回の掃除は継続します。
func (m *Manager) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runCleanup()
		}
	}
}

func (m *Manager) runCleanup() {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Printf("task cleanup panicked: %v", r)
		}
	}()

	if removed := m.store.Sweep(m.maxAge); removed > 0 {
		m.logger.Printf("expired tasks removed: %d", removed)
	}
}
