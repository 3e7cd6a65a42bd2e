// Package chat は妊産婦向けQAチャットのセッション管理と応答生成を提供します。
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound は存在しない（または期限切れの）セッションIDを示します。
var ErrSessionNotFound = errors.New("session not found")

// ユーザー種別ごとのシステムプロンプト。
// 原文の回答トーンを使い分ける（医療者向け/妊婦向け）。
var systemPrompts = map[string]string{
	"doctor": "あなたは産科医療の専門アシスタントです。医療従事者に対して、" +
		"根拠を明示しながら簡潔かつ専門的に回答してください。",
	"pregnant_mother": "あなたは妊産婦に寄り添う産科アシスタントです。専門用語を避け、" +
		"わかりやすく丁寧に回答してください。緊急性がある症状には必ず受診を促してください。",
}

// SessionTimeout はセッションを破棄するまでの無操作時間です。
const SessionTimeout = time.Hour

type session struct {
	history    []Message
	lastActive time.Time
}

// QAResult は1回の問答の結果です。
type QAResult struct {
	Answer        string `json:"answer"`
	SessionID     string `json:"session_id"`
	HistoryLength int    `json:"history_length"`
}

// Service はチャットセッションの台帳と応答生成を担います。
// セッションはメモリ上にのみ保持され、無操作のまま SessionTimeout を超えると破棄されます。
type Service struct {
	llm      Completer
	mu       sync.Mutex
	sessions map[string]*session
	timeout  time.Duration
}

// NewService は Service を作成します。
func NewService(llm Completer) *Service {
	return &Service{
		llm:      llm,
		sessions: make(map[string]*session),
		timeout:  SessionTimeout,
	}
}

// CreateSession は新しいセッションを登録しIDを返します。
func (s *Service) CreateSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupExpiredLocked()
	sessionID := uuid.NewString()
	s.sessions[sessionID] = &session{lastActive: time.Now()}
	return sessionID
}

// HandleQA は質問に対する回答を生成します。
// sessionID が空の場合は新しいセッションを作成します。
func (s *Service) HandleQA(ctx context.Context, sessionID, question, userType string) (*QAResult, error) {
	if question == "" {
		return nil, errors.New("question is empty")
	}

	if sessionID == "" {
		sessionID = s.CreateSession()
	}

	history, err := s.snapshotHistory(sessionID)
	if err != nil {
		return nil, err
	}

	prompt, ok := systemPrompts[userType]
	if !ok {
		prompt = systemPrompts["pregnant_mother"]
	}

	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: "system", Content: prompt})
	messages = append(messages, history...)
	messages = append(messages, Message{Role: "user", Content: question})

	answer, err := s.llm.Complete(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("回答の生成に失敗しました: %w", err)
	}

	length := s.appendHistory(sessionID,
		Message{Role: "user", Content: question},
		Message{Role: "assistant", Content: answer},
	)

	return &QAResult{
		Answer:        answer,
		SessionID:     sessionID,
		HistoryLength: length,
	}, nil
}

// snapshotHistory はセッション履歴のコピーを返し、最終利用時刻を更新します。
func (s *Service) snapshotHistory(sessionID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupExpiredLocked()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	sess.lastActive = time.Now()

	history := make([]Message, len(sess.history))
	copy(history, sess.history)
	return history, nil
}

// appendHistory は問答を履歴へ追記し、履歴件数を返します。
// LLM呼び出し中にセッションが掃除されていた場合は作り直します。
func (s *Service) appendHistory(sessionID string, messages ...Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &session{}
		s.sessions[sessionID] = sess
	}
	sess.history = append(sess.history, messages...)
	sess.lastActive = time.Now()
	return len(sess.history)
}

// cleanupExpiredLocked は期限切れセッションを破棄します。s.mu を保持した状態で呼びます。
func (s *Service) cleanupExpiredLocked() {
	cutoff := time.Now().Add(-s.timeout)
	for sessionID, sess := range s.sessions {
		if sess.lastActive.Before(cutoff) {
			delete(s.sessions, sessionID)
		}
	}
}
