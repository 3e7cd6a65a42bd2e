// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"log"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/maternal-assist/internal/auth"
	"github.com/yourusername/maternal-assist/internal/chat"
	"github.com/yourusername/maternal-assist/internal/config"
	"github.com/yourusername/maternal-assist/internal/maternal"
	"github.com/yourusername/maternal-assist/internal/storage"
	"github.com/yourusername/maternal-assist/internal/tasks"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
	}
	router.Use(cors.New(corsConfig))

	ctx := context.Background()

	// 妊婦情報データベースの初期化
	db, err := maternal.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	repo := maternal.NewRepository(db)
	if err := repo.Init(ctx); err != nil {
		log.Fatalf("Failed to initialize database schema: %v", err)
	}

	// Redisクライアント（ログアウト済みトークンのブラックリスト用）
	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to parse redis url: %v", err)
	}
	rdb := redis.NewClient(redisOpt)

	// 非同期タスクマネージャーの起動
	taskManager, err := tasks.NewManager(cfg, log.Default())
	if err != nil {
		log.Fatalf("Failed to create task manager: %v", err)
	}
	taskManager.Start(ctx)

	// 各ハンドラーの組み立て
	authManager := auth.NewManager(cfg, rdb, log.Default())
	maternalHandler := maternal.NewHandler(repo, storage.NewLocal(cfg.UploadDir), cfg.MaxFileSize)
	chatService := chat.NewService(chat.NewLLMClient(cfg))
	chatHandler := chat.NewHandler(chatService, taskManager)

	// ルーティングの設定
	setupRoutes(router, authManager, maternalHandler, chatHandler)

	// サーバーの起動
	addr := ":" + cfg.Port
	log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
