package gateway

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// sessionCookieName はセッションCookieの名前。
const sessionCookieName = "gatekeeper_session"

// sessionLifetime はセッションCookieの有効期間（約1年）。
const sessionLifetime = time.Duration(365.25 * 24 * float64(time.Hour))

// sessionClaims はセッションCookieに格納するJWTクレーム。
// 呼び出し元のアイデンティティと、匿名呼び出し元が直前に使った
// OAuth2クライアントの参照ヒントを運ぶ。
type sessionClaims struct {
	jwt.RegisteredClaims
	// UserUID はセッション所有者のUID。
	UserUID string `json:"user_uid"`
	// Email はセッション所有者のメールアドレス。
	Email string `json:"email"`
	// Anonymous は匿名ブートストラップユーザーのセッションかどうか。
	Anonymous bool `json:"anonymous"`
	// OAuthClient は匿名呼び出し元が再利用すべきクライアントのClientID。
	// あくまで助言的なキャッシュであり、検証はストア側で行う。
	OAuthClient string `json:"oauth_client,omitempty"`
}

// issueSession はセッションCookieを発行してレスポンスに設定する。
func (s *Server) issueSession(c *gin.Context, ident identity, oauthClient string) error {
	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionLifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.cfg.appName,
		},
		UserUID:     ident.user.UID,
		Email:       ident.user.Email,
		Anonymous:   ident.anonymous,
		OAuthClient: oauthClient,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.secretKey)
	if err != nil {
		return err
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookieName, signed, int(sessionLifetime.Seconds()), "/", "", false, true)
	return nil
}

// parseSession はリクエストのセッションCookieを検証して返す。
// Cookieの欠落・署名不正・期限切れはいずれも未認証として扱い、
// エラーにはしない。
func (s *Server) parseSession(c *gin.Context) (*sessionClaims, bool) {
	cookie, err := c.Cookie(sessionCookieName)
	if err != nil || cookie == "" {
		return nil, false
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(cookie, claims, func(_ *jwt.Token) (any, error) {
		return s.cfg.secretKey, nil
	})
	if err != nil || !token.Valid {
		return nil, false
	}
	return claims, true
}

// clearSession はセッションCookieを破棄する。
func (s *Server) clearSession(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookieName, "", -1, "/", "", false, true)
}

// genToken は暗号論的に安全なランダムトークンを16進文字列で生成する。
// 戻り値の長さはnの2倍になる。クライアントシークレットや
// アクセストークンの生成に使用する。
func genToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/randの失敗は実行環境の異常であり継続できない
		panic(err)
	}
	return hex.EncodeToString(b)
}
