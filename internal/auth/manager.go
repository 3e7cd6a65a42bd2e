// Package auth はJWTベースの認証・認可機能を提供します。
// ログアウト済みトークンは有効期限までRedisのブラックリストで無効化します。
package auth

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/maternal-assist/internal/config"
)

const (
	authHeader   = "Authorization"
	bearerPrefix = "Bearer "

	blacklistKeyPrefix = "blacklist:"
)

var (
	loginWindow      = 15 * time.Minute
	lockDuration     = 10 * time.Minute
	maxLoginAttempts = 5
)

// ContextUserKey は、ハンドラー間でログイン済みユーザー名を共有するためのキーです。
const ContextUserKey = "auth.user"

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// Manager は認証処理と状態をまとめた構造体です。
type Manager struct {
	cfg      *config.Config
	rdb      *redis.Client
	logger   *log.Logger
	lock     sync.Mutex
	attempts map[string]*attemptState
}

// NewManager は認証マネージャーを作成します。
func NewManager(cfg *config.Config, rdb *redis.Client, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		cfg:      cfg,
		rdb:      rdb,
		logger:   logger,
		attempts: make(map[string]*attemptState),
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login は /auth/login のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "username と password を JSON で送ってください")
		return
	}

	if err := m.ensureCredentials(); err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	ip := c.ClientIP()
	if retryAfter := m.checkLock(ip); retryAfter > 0 {
		// Retry-After は秒数またはHTTP-Date形式が推奨されているため秒数で返す
		c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
		respondError(c, http.StatusTooManyRequests, "一定時間後に再度お試しください")
		return
	}

	if req.Username != m.cfg.AppUsername || !m.verifyPassword(req.Password) {
		m.recordFailure(ip)
		respondError(c, http.StatusUnauthorized, "ユーザー名またはパスワードが正しくありません")
		return
	}

	m.resetAttempts(ip)

	expiresIn := time.Duration(m.cfg.TokenExpireMinutes) * time.Minute
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": req.Username,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
		"jti": uuid.NewString(), // ブラックリスト運用のための一意識別子
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.cfg.JWTSecret))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "トークンの生成に失敗しました")
		return
	}

	respondSuccess(c, http.StatusOK, "ログインしました", gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_in": int64(expiresIn.Seconds()),
	})
}

// Logout は /auth/logout のハンドラーです。
// 提示されたトークンを残り有効期間だけブラックリストに登録します。
func (m *Manager) Logout(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Authorization ヘッダーにトークンを設定してください")
		return
	}

	claims, err := m.parseToken(token)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "トークンが無効です")
		return
	}

	ttl := time.Until(claims.expiresAt)
	if ttl > 0 && m.rdb != nil {
		if err := m.rdb.Set(c.Request.Context(), blacklistKeyPrefix+token, "1", ttl).Err(); err != nil {
			respondError(c, http.StatusInternalServerError, "ログアウト処理に失敗しました")
			return
		}
	}

	respondSuccess(c, http.StatusOK, "ログアウトしました", nil)
}

// RequireAuth はJWTを検証するミドルウェアを返します。
func (m *Manager) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "ログインが必要です",
			})
			return
		}

		// 先にブラックリストを確認してから署名を検証する
		if m.rdb != nil {
			blacklisted, err := m.rdb.Exists(c.Request.Context(), blacklistKeyPrefix+token).Result()
			if err != nil {
				// Redis障害時は検証済みトークンを通す（ブラックリストのみ機能低下）
				m.logger.Printf("blacklist lookup failed: %v", err)
			} else if blacklisted > 0 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"status":  "error",
					"message": "このトークンは無効化されています",
				})
				return
			}
		}

		claims, err := m.parseToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "トークンが無効または期限切れです",
			})
			return
		}

		c.Set(ContextUserKey, claims.subject)
		c.Next()
	}
}

type tokenClaims struct {
	subject   string
	expiresAt time.Time
}

// parseToken は署名と有効期限を検証し、必要なクレームを取り出します。
func (m *Manager) parseToken(token string) (*tokenClaims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(m.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, errors.New("missing subject")
	}
	expiration, err := claims.GetExpirationTime()
	if err != nil || expiration == nil {
		return nil, errors.New("missing expiration")
	}

	return &tokenClaims{
		subject:   subject,
		expiresAt: expiration.Time,
	}, nil
}

func (m *Manager) ensureCredentials() error {
	if m.cfg.AppUsername == "" || m.cfg.AppPasswordHash == "" {
		return errors.New("認証情報が設定されていません")
	}
	if m.cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET が設定されていません")
	}
	return nil
}

func (m *Manager) verifyPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(m.cfg.AppPasswordHash), []byte(password))
	return err == nil
}

// checkLock はIPがロック中であれば残り時間を返します。
func (m *Manager) checkLock(ip string) time.Duration {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.attempts[ip]
	if !ok {
		return 0
	}
	if remaining := time.Until(state.lockedUntil); remaining > 0 {
		return remaining
	}
	return 0
}

func (m *Manager) recordFailure(ip string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := time.Now()
	state, ok := m.attempts[ip]
	if !ok || now.Sub(state.firstAttempt) > loginWindow {
		state = &attemptState{firstAttempt: now}
		m.attempts[ip] = state
	}
	state.count++
	if state.count >= maxLoginAttempts {
		state.lockedUntil = now.Add(lockDuration)
	}
}

func (m *Manager) resetAttempts(ip string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.attempts, ip)
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader(authHeader)
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if token == "" {
		return "", false
	}
	return token, true
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
