// Package tasks はAI推論のような長時間処理をHTTPリクエストから切り離すための
// 非同期タスク管理機能を提供します。
//
// タスク状態はプロセス内メモリにのみ保持されます。プロセスが再起動すると
// 実行待ち・実行中・終了済みを問わずすべてのタスクが失われ、発行済みの
// タスクIDは無効になります。呼び出し側は再起動をまたいだタスクIDを
// 「存在しないタスク」として扱う前提で設計してください。
package tasks

import (
	"context"
	"time"
)

// Status はタスクの実行状態を表します。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal は completed / failed のいずれかであれば true を返します。
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Record はタスクの現在状態を表します。
// Result は completed のときのみ、Error は failed のときのみ設定されます。
type Record struct {
	TaskID      string     `json:"task_id"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Progress    int        `json:"progress"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// ProgressFunc は実行中のジョブが進捗（0-100）を報告するためのコールバックです。
type ProgressFunc func(percent int)

// Job は投入される処理単位です。戻り値がそのままタスクの結果になり、
// エラーを返した場合はタスクが failed として記録されます。
// タスクマネージャーはジョブの中身を解釈しません。
type Job func(ctx context.Context, report ProgressFunc) (any, error)
