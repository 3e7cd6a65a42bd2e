package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/maternal-assist/internal/auth"
	"github.com/yourusername/maternal-assist/internal/chat"
	"github.com/yourusername/maternal-assist/internal/maternal"
)

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "maternal-assist-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(
	router *gin.Engine,
	authManager *auth.Manager,
	maternalHandler *maternal.Handler,
	chatHandler *chat.Handler,
) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	api := router.Group("/api/v2")
	{
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/login", authManager.Login)
			// ログアウトはトークン自体を検証するため RequireAuth を通さない
			authRoutes.POST("/logout", authManager.Logout)
		}

		// 妊婦情報APIは認証必須
		maternalRoutes := api.Group("/maternal")
		maternalRoutes.Use(authManager.RequireAuth())
		{
			maternalRoutes.POST("", maternalHandler.Create)
			maternalRoutes.GET("", maternalHandler.List)
			maternalRoutes.GET("/:maternal_id", maternalHandler.Get)
			maternalRoutes.PUT("/:maternal_id/info", maternalHandler.UpdateInfo)
			maternalRoutes.PUT("/:maternal_id/pregnancy_history", maternalHandler.UpdatePregnancyHistory)
			maternalRoutes.PUT("/:maternal_id/health_condition", maternalHandler.UpdateHealthCondition)
			maternalRoutes.DELETE("/:maternal_id", maternalHandler.Delete)
			maternalRoutes.POST("/:maternal_id/files", maternalHandler.UploadFile)
			maternalRoutes.GET("/:maternal_id/files", maternalHandler.ListFiles)
		}

		// チャットAPI（ミニプログラム側から認証なしで利用される）
		chatRoutes := api.Group("/chat")
		{
			chatRoutes.POST("/new_session", chatHandler.NewSession)
			chatRoutes.POST("/qa", chatHandler.QA)
			chatRoutes.POST("/qa/async", chatHandler.QAAsync)
			chatRoutes.GET("/qa/task/:task_id/status", chatHandler.TaskStatus)
		}
	}
}
