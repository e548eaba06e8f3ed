package gateway

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/gatekeeper/internal/gateway/db"
)

// コンテキストに格納するOAuth2認可情報のキー。
const (
	ctxKeyOAuthToken  = "oauth_token"
	ctxKeyOAuthClient = "oauth_client"
	ctxKeyOAuthUser   = "oauth_user"
)

// oauthRequired はOAuth2 Bearerトークンを検証するミドルウェアを返す。
// トークンはストアに保存された不透明な文字列であり、失効・未知の
// トークンは401で拒否する。検証に成功するとトークン・クライアント・
// ユーザーをコンテキストに設定し、実効クォータをX-RateLimit-Limit
// ヘッダーで通知する（カウンタの保存と強制は外部リミッターの責務）。
func (s *Server) oauthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid or expired token"})
			return
		}

		ctx := c.Request.Context()
		client, err := s.queries.GetClientByClientID(ctx, token.ClientID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid or expired token"})
			return
		}
		user, err := s.queries.GetUserByUID(ctx, token.UserUID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid or expired token"})
			return
		}

		c.Set(ctxKeyOAuthToken, token)
		c.Set(ctxKeyOAuthClient, client)
		c.Set(ctxKeyOAuthUser, user)
		c.Header("X-RateLimit-Limit",
			strconv.FormatFloat(effectiveQuota(&user, &client, c.FullPath()), 'f', -1, 64))

		if err := s.queries.TouchClientActivity(ctx, client.ClientID); err != nil {
			// 最終利用日時は参考情報なので失敗しても処理は続行する
			_ = err
		}

		c.Next()
	}
}

// bearerToken はAuthorizationヘッダーのBearerトークンをストアで検証する。
// ヘッダーの欠落・形式不正・未知のトークン・失効はいずれもfalseを返す。
func (s *Server) bearerToken(c *gin.Context) (db.OAuth2Token, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return db.OAuth2Token{}, false
	}

	raw, found := strings.CutPrefix(authHeader, "Bearer ")
	if !found || raw == "" {
		return db.OAuth2Token{}, false
	}

	token, err := s.queries.GetTokenByAccess(c.Request.Context(), raw)
	if err != nil {
		return db.OAuth2Token{}, false
	}
	if token.ExpireIn(time.Now()) == 0 {
		return db.OAuth2Token{}, false
	}
	return token, true
}

// bearerClientID は受信したBearerトークンが指すClientIDを返す。
// 匿名ブートストラップでの「記憶されたクライアント」の第二の情報源
// として使用する。検証に失敗した場合は空文字列を返す。
func (s *Server) bearerClientID(c *gin.Context) string {
	token, ok := s.bearerToken(c)
	if !ok {
		return ""
	}
	return token.ClientID
}

// handleProtected はBearerトークンで保護された確認用エンドポイントの
// ハンドラを返す。
func (s *Server) handleProtected() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.MustGet(ctxKeyOAuthUser).(db.User)
		c.JSON(http.StatusOK, gin.H{"app": s.cfg.appName, "oauth": user.Email})
	}
}
