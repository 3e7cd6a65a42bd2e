package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/maternal-assist/internal/tasks"
)

// Handler はチャットAPIのハンドラー群です。
type Handler struct {
	service *Service
	tasks   *tasks.Manager
}

// NewHandler は Handler を作成します。
func NewHandler(service *Service, taskManager *tasks.Manager) *Handler {
	return &Handler{
		service: service,
		tasks:   taskManager,
	}
}

// NewSession は POST /chat/new_session のハンドラーです。
func (h *Handler) NewSession(c *gin.Context) {
	sessionID := h.service.CreateSession()
	respondSuccess(c, http.StatusOK, "新しいセッションを作成しました", gin.H{
		"session_id": sessionID,
	})
}

type qaRequest struct {
	Input     string `json:"input"`
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
	ChatID    string `json:"chat_id"`
	UserType  string `json:"user_type"`
}

// question は input / question のどちらで送られても受け付けます。
func (r *qaRequest) question() string {
	if r.Input != "" {
		return strings.TrimSpace(r.Input)
	}
	return strings.TrimSpace(r.Question)
}

func (r *qaRequest) sessionID() string {
	if r.SessionID != "" {
		return r.SessionID
	}
	return r.ChatID
}

// QA は POST /chat/qa のハンドラーです。回答生成が終わるまで応答を返しません。
func (h *Handler) QA(c *gin.Context) {
	var req qaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "リクエストボディをJSONで送ってください")
		return
	}
	if req.question() == "" {
		respondError(c, http.StatusBadRequest, "質問内容を入力してください")
		return
	}

	result, err := h.service.HandleQA(c.Request.Context(), req.sessionID(), req.question(), req.UserType)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			respondError(c, http.StatusNotFound, "セッションが見つかりません")
			return
		}
		respondError(c, http.StatusInternalServerError, "回答の生成に失敗しました")
		return
	}
	respondSuccess(c, http.StatusOK, "回答を生成しました", result)
}

// QAAsync は POST /chat/qa/async のハンドラーです。
// 回答生成をバックグラウンドタスクに切り出し、タスクIDを即座に返します。
func (h *Handler) QAAsync(c *gin.Context) {
	var req qaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "リクエストボディをJSONで送ってください")
		return
	}
	if req.question() == "" {
		// 不正な入力はタスクを作らずに弾く
		respondError(c, http.StatusBadRequest, "質問内容を入力してください")
		return
	}

	sessionID := req.sessionID()
	question := req.question()
	userType := req.UserType

	taskID, err := h.tasks.Submit(func(ctx context.Context, report tasks.ProgressFunc) (any, error) {
		report(10)
		result, err := h.service.HandleQA(ctx, sessionID, question, userType)
		if err != nil {
			return nil, err
		}
		report(90)
		return result, nil
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "タスクの投入に失敗しました")
		return
	}

	record, _ := h.tasks.GetStatus(taskID)
	respondSuccess(c, http.StatusOK, "タスクを受け付けました", gin.H{
		"task_id":    taskID,
		"status":     record.Status,
		"created_at": record.CreatedAt,
		"status_url": fmt.Sprintf("/api/v2/chat/qa/task/%s/status", taskID),
	})
}

// TaskStatus は GET /chat/qa/task/:task_id/status のハンドラーです。
// 不明または掃除済みのタスクIDは404を返します（failed とは区別されます）。
func (h *Handler) TaskStatus(c *gin.Context) {
	taskID := strings.TrimSpace(c.Param("task_id"))
	if taskID == "" {
		respondError(c, http.StatusBadRequest, "task_id を指定してください")
		return
	}

	record, ok := h.tasks.GetStatus(taskID)
	if !ok {
		respondError(c, http.StatusNotFound, "タスクが見つかりません")
		return
	}

	data := gin.H{
		"task_id":    record.TaskID,
		"status":     record.Status,
		"created_at": record.CreatedAt,
		"progress":   record.Progress,
	}
	if record.StartedAt != nil {
		data["started_at"] = record.StartedAt
	}
	if record.CompletedAt != nil {
		data["completed_at"] = record.CompletedAt
	}
	switch record.Status {
	case tasks.StatusCompleted:
		data["result"] = record.Result
	case tasks.StatusFailed:
		data["error"] = record.Error
	}

	respondSuccess(c, http.StatusOK, "タスク状態を取得しました", data)
}

func respondSuccess(c *gin.Context, status int, message string, data any) {
	c.JSON(status, gin.H{
		"status":  "success",
		"message": message,
		"data":    data,
	})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"status":  "error",
		"message": message,
	})
}
