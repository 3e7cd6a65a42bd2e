// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// アプリケーション設定
	AppUsername     string // ログイン用ユーザー名
	AppPasswordHash string // bcryptでハッシュ化されたパスワード
	JWTSecret       string // JWT署名用の秘密鍵

	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// データベース設定
	DatabasePath string // SQLiteデータベースファイルのパス

	// Redis設定（ログアウト済みトークンのブラックリスト用）
	RedisURL string // Redis接続URL

	// 認証設定
	TokenExpireMinutes int // JWTトークンの有効期限（分）

	// 非同期タスク設定
	TaskMaxWorkers             int // 同時実行ワーカー数
	TaskCleanupIntervalSeconds int // 期限切れタスクの掃除間隔（秒）
	TaskMaxAgeHours            int // 終了済みタスクを保持する時間（時間）

	// ファイルアップロード設定
	UploadDir   string // 医療ファイルの保存先ディレクトリ
	MaxFileSize int64  // 単一ファイルの最大サイズ（バイト）

	// LLM設定（OpenAI互換エンドポイント）
	LLMBaseURL     string  // チャット補完APIのベースURL
	LLMAPIKey      string  // APIキー
	LLMModel       string  // モデル名
	LLMTemperature float64 // 生成温度
	LLMMaxTokens   int     // 最大生成トークン数
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// アプリケーション設定
		AppUsername:     getEnv("APP_USERNAME", ""),
		AppPasswordHash: getEnv("APP_PASSWORD_HASH", ""),
		JWTSecret:       getEnv("JWT_SECRET", ""),

		// サーバー設定
		Port:    getEnv("PORT", "8000"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// データベース設定
		DatabasePath: getEnv("DATABASE_PATH", "maternal.db"),

		// Redis設定
		RedisURL: getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),

		// 認証設定
		TokenExpireMinutes: getEnvAsInt("TOKEN_EXPIRE_MINUTES", 60),

		// 非同期タスク設定
		TaskMaxWorkers:             getEnvAsInt("TASK_MAX_WORKERS", 5),
		TaskCleanupIntervalSeconds: getEnvAsInt("TASK_CLEANUP_INTERVAL_SECONDS", 3600),
		TaskMaxAgeHours:            getEnvAsInt("TASK_MAX_AGE_HOURS", 24),

		// ファイルアップロード設定
		UploadDir:   getEnv("UPLOAD_DIR", "uploads/maternal_files"),
		MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 10485760), // 10MB

		// LLM設定
		LLMBaseURL:     getEnv("LLM_BASE_URL", "https://dashscope.aliyuncs.com/compatible-mode/v1"),
		LLMAPIKey:      getEnv("LLM_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "qwen-plus"),
		LLMTemperature: getEnvAsFloat("LLM_TEMPERATURE", 0.7),
		LLMMaxTokens:   getEnvAsInt("LLM_MAX_TOKENS", 2048),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	// ローカル開発では認証・LLM設定は任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.AppUsername == "" {
			return fmt.Errorf("APP_USERNAME is required in release mode")
		}
		if c.AppPasswordHash == "" {
			return fmt.Errorf("APP_PASSWORD_HASH is required in release mode")
		}
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in release mode")
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required in release mode")
		}
		if c.LLMAPIKey == "" {
			return fmt.Errorf("LLM_API_KEY is required in release mode")
		}
	}

	if c.TaskMaxWorkers <= 0 {
		return fmt.Errorf("TASK_MAX_WORKERS must be positive")
	}
	if c.TaskCleanupIntervalSeconds <= 0 {
		return fmt.Errorf("TASK_CLEANUP_INTERVAL_SECONDS must be positive")
	}
	if c.TaskMaxAgeHours < 0 {
		return fmt.Errorf("TASK_MAX_AGE_HOURS must not be negative")
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します。
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
