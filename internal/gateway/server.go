package gateway

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nao1215/gatekeeper/internal/gateway/db"
	"github.com/nao1215/gatekeeper/pkg/middleware"
	"github.com/nao1215/gatekeeper/pkg/migration"
)

//go:embed migrations/*.up.sql
var migrationsFS embed.FS

// Server は認証付きAPIゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries は認証情報ストアへのクエリ実行オブジェクト。
	queries *db.Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// cfg はゲートウェイの動作設定。
	cfg config
	// proxyClient はバックエンド転送用の共有HTTPクライアント。
	// コネクションプールをリクエスト間で再利用する。
	proxyClient *http.Client
}

// NewServer は新しいゲートウェイサーバーを生成する。
// SQLiteデータベースの初期化、スキーマ適用、匿名ブートストラップ
// ユーザーの払い出しを行う。
func NewServer(port string) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", getEnvOr("GATEWAY_DB", "/data/gateway.db?_journal_mode=WAL&_busy_timeout=5000"))
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	cfg := loadConfig()

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{cfg.frontendURL}))

	s := &Server{
		router:      router,
		port:        port,
		queries:     db.New(sqlDB),
		db:          sqlDB,
		cfg:         cfg,
		proxyClient: &http.Client{Timeout: cfg.proxyTimeout},
	}

	if err := s.seedAnonymousUser(context.Background()); err != nil {
		return nil, fmt.Errorf("匿名ブートストラップユーザーの準備に失敗: %w", err)
	}

	s.setupRoutes()
	s.discoverResources(context.Background())

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// initSchema は埋め込みマイグレーションをデータベースに適用する。
func initSchema(sqlDB *sql.DB) error {
	return migration.Run(sqlDB, migrationsFS, "migrations")
}

// seedAnonymousUser は匿名ブートストラップユーザーを1件だけ払い出す。
// このユーザーは使用可能なパスワードを持たず、未認証の呼び出し元の
// 共有アイデンティティとして機能する。欠落は致命的な設定エラーになる
// ため、起動時に必ず存在を保証する。
func (s *Server) seedAnonymousUser(ctx context.Context) error {
	_, err := s.queries.GetUserByEmail(ctx, s.cfg.anonymousEmail)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	_, err = s.queries.CreateUser(ctx, db.CreateUserParams{
		UID:       uuid.New().String(),
		Email:     s.cfg.anonymousEmail,
		Confirmed: true,
	})
	if err != nil && !db.IsUniqueViolation(err) {
		return err
	}
	return nil
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// トークン発行と認証（セッションベース）
	s.router.GET("/bootstrap", s.handleBootstrap())
	s.router.POST("/auth", s.handleLogin())
	s.router.POST("/logout", s.handleLogout())
	s.router.POST("/register", s.handleRegister())
	s.router.GET("/verify/:token", s.handleVerifyEmail())
	s.router.POST("/reset-password/:target", s.handleResetPasswordRequest())
	s.router.PUT("/reset-password/:target", s.handleResetPasswordApply())

	// アカウント操作（非匿名のセッション必須）
	account := s.router.Group("/account")
	{
		account.POST("/delete", s.handleAccountDelete())
		account.POST("/password", s.handleChangePassword())
		account.POST("/email", s.handleChangeEmail())
	}

	// 補助エンドポイント
	s.router.GET("/csrf", s.handleCSRF())
	s.router.GET("/status", s.handleStatus())
	s.router.GET("/protected", s.oauthRequired(), s.handleProtected())
	s.router.GET("/admin/events", s.handleAdminEvents())

	// バックエンドWebサービスへの転送（Bearerトークン必須）
	for _, svc := range s.cfg.services {
		s.router.Any(svc.deployPath+"/*proxyPath", s.oauthRequired(), s.handleProxy(svc))
	}
}
