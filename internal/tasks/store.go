package tasks

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store はタスク状態をメモリ上に保持するスレッドセーフなレジストリです。
// レコードの書き込みはタスクを所有するワーカーだけが行い、読み取りは
// 常にスナップショットのコピーを返します。
type Store struct {
	mu    sync.Mutex
	tasks map[string]*Record
}

// NewStore は Store を作成します。
func NewStore() *Store {
	return &Store{
		tasks: make(map[string]*Record),
	}
}

// Create は新しいタスクIDを採番し、pending状態のレコードを登録してIDを返します。
func (s *Store) Create() string {
	taskID := "task_" + uuid.NewString()
	record := &Record{
		TaskID:    taskID,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.tasks[taskID] = record
	s.mu.Unlock()

	return taskID
}

// Get はレコードのスナップショットを返します。
// 存在しない（または掃除済みの）IDの場合は二番目の戻り値が false になります。
func (s *Store) Get(taskID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tasks[taskID]
	if !ok {
		return Record{}, false
	}
	return *record, true
}

// MarkRunning は pending のレコードを running に遷移させ、開始時刻を記録します。
func (s *Store) MarkRunning(taskID string) {
	s.update(taskID, func(record *Record) {
		now := time.Now().UTC()
		record.Status = StatusRunning
		record.StartedAt = &now
	})
}

// UpdateProgress は実行中レコードの進捗を更新します。
// 進捗は 0-100 に丸められ、後退する値は無視されます。
func (s *Store) UpdateProgress(taskID string, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	s.update(taskID, func(record *Record) {
		if record.Status != StatusRunning {
			return
		}
		if percent > record.Progress {
			record.Progress = percent
		}
	})
}

// MarkCompleted はレコードを completed に遷移させ、結果と完了時刻を記録します。
func (s *Store) MarkCompleted(taskID string, result any) {
	s.update(taskID, func(record *Record) {
		now := time.Now().UTC()
		record.Status = StatusCompleted
		record.Result = result
		record.Error = ""
		record.Progress = 100
		record.CompletedAt = &now
	})
}

// MarkFailed はレコードを failed に遷移させ、エラー内容と完了時刻を記録します。
func (s *Store) MarkFailed(taskID string, errMsg string) {
	s.update(taskID, func(record *Record) {
		now := time.Now().UTC()
		record.Status = StatusFailed
		record.Error = errMsg
		record.Result = nil
		record.CompletedAt = &now
	})
}

// Sweep は完了時刻が maxAge より古い終了済みレコードを削除し、削除件数を返します。
// 実行待ち・実行中のレコードはワーカーが所有しているため対象外です。
func (s *Store) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for taskID, record := range s.tasks {
		if !record.Status.IsTerminal() || record.CompletedAt == nil {
			continue
		}
		if record.CompletedAt.Before(cutoff) {
			delete(s.tasks, taskID)
			removed++
		}
	}
	return removed
}

// update はクリティカルセクション内でレコードを書き換えます。
// 終了済みレコードは不変のため変更しません。
func (s *Store) update(taskID string, mutate func(*Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tasks[taskID]
	if !ok || record.Status.IsTerminal() {
		return
	}
	mutate(record)
}
