package gateway

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// config はゲートウェイの動作設定。すべて環境変数から読み込む。
type config struct {
	// appName はステータス応答などで使用するアプリケーション名。
	appName string
	// secretKey はセッションCookieの署名鍵。
	secretKey []byte
	// frontendURL はCORSで許可するフロントエンドのオリジン。
	frontendURL string
	// anonymousEmail は匿名ブートストラップユーザーの番兵メールアドレス。
	anonymousEmail string
	// bootstrapClientName はクライアント表示名が未指定の場合のデフォルト名。
	bootstrapClientName string
	// defaultScopes はユーザーに明示的な許可スコープがない場合の
	// プロセス全体のデフォルトスコープ。
	defaultScopes []string
	// bootstrapTokenExpires は匿名（一時）トークンの有効期間。
	bootstrapTokenExpires time.Duration
	// proxyTimeout はバックエンドへの転送リクエストのタイムアウト。
	proxyTimeout time.Duration
	// services は転送先バックエンドの一覧。
	services []backendService
}

// backendService は1つの転送先バックエンドWebサービスを表す。
type backendService struct {
	// deployPath はゲートウェイ上の配備パス（例: "/scan"）。
	deployPath string
	// baseURL はバックエンドのベースURL（例: "http://search:8181"）。
	baseURL string
}

// loadConfig は環境変数からゲートウェイの設定を読み込む。
func loadConfig() config {
	return config{
		appName:               getEnvOr("APP_NAME", "gatekeeper"),
		secretKey:             []byte(getEnvOr("SECRET_KEY", "dev-secret-key")),
		frontendURL:           getEnvOr("FRONTEND_URL", "http://localhost:3000"),
		anonymousEmail:        getEnvOr("ANONYMOUS_BOOTSTRAP_USER_EMAIL", "anonymous@gateway"),
		bootstrapClientName:   getEnvOr("BOOTSTRAP_CLIENT_NAME", "BB client"),
		defaultScopes:         strings.Fields(getEnvOr("USER_DEFAULT_SCOPES", "api user")),
		bootstrapTokenExpires: time.Duration(getEnvSecondsOr("BOOTSTRAP_TOKEN_EXPIRES", 3600*24)) * time.Second,
		proxyTimeout:          time.Duration(getEnvSecondsOr("PROXY_TIMEOUT", 30)) * time.Second,
		services:              parseServices(os.Getenv("PROXY_SERVICES")),
	}
}

// parseServices はPROXY_SERVICES環境変数を解析する。
// 書式はカンマ区切りの「配備パス=ベースURL」。例:
// "/scan=http://search:8181,/export=http://export:8282"
func parseServices(raw string) []backendService {
	var services []backendService
	for _, pair := range strings.Split(raw, ",") {
		deployPath, baseURL, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found || deployPath == "" || baseURL == "" {
			continue
		}
		if !strings.HasPrefix(deployPath, "/") {
			deployPath = "/" + deployPath
		}
		services = append(services, backendService{
			deployPath: strings.TrimSuffix(deployPath, "/"),
			baseURL:    strings.TrimSuffix(baseURL, "/"),
		})
	}
	return services
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// getEnvSecondsOr は秒数を表す環境変数を取得する。
func getEnvSecondsOr(key string, defaultValue int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}
