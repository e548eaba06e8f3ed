package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nao1215/gatekeeper/internal/gateway/db"
	"github.com/nao1215/gatekeeper/pkg/event"
)

// defaultExpires はトークン失効日時が未指定の場合のデフォルト値（遠い未来）。
var defaultExpires = time.Date(2500, 1, 1, 0, 0, 0, 0, time.UTC)

// bootstrapRequest はbootstrapエンドポイントのクエリパラメータ。
// すべて省略可能で、匿名呼び出し元はカスタマイズ自体が許可されない。
type bootstrapRequest struct {
	// Scope は要求するスコープ（空白区切り）。
	Scope string `form:"scope"`
	// Ratelimit は要求するレートリミット係数。
	Ratelimit float64 `form:"ratelimit,default=1.0"`
	// CreateNew は既存クライアントを再利用せず常に新規作成するかどうか。
	CreateNew bool `form:"create_new"`
	// RedirectURI はクライアントのリダイレクトURI。
	RedirectURI string `form:"redirect_uri"`
	// ClientName はクライアントの表示名。
	ClientName string `form:"client_name"`
	// Expires はトークン失効日時（RFC3339）。
	Expires string `form:"expires"`
	// IndividualRatelimits はスコープごとの係数上書き（JSONオブジェクト）。
	IndividualRatelimits string `form:"individual_ratelimits"`
}

// bootstrapResponse はbootstrapエンドポイントのレスポンス。
type bootstrapResponse struct {
	AccessToken          string             `json:"access_token"`
	RefreshToken         string             `json:"refresh_token"`
	ExpireIn             int64              `json:"expire_in"`
	TokenType            string             `json:"token_type"`
	Username             string             `json:"username"`
	Scopes               string             `json:"scopes"`
	Anonymous            bool               `json:"anonymous"`
	ClientID             string             `json:"client_id"`
	ClientSecret         string             `json:"client_secret"`
	Ratelimit            float64            `json:"ratelimit"`
	ClientName           string             `json:"client_name"`
	IndividualRatelimits map[string]float64 `json:"individual_ratelimits"`
}

// handleBootstrap は呼び出し元にOAuth2クライアント/トークンの組を
// 発行または再利用させるハンドラを返す。
//
// 未認証の呼び出し元は匿名ブートストラップユーザーとしてセッションを
// 確立し、一時クライアントを払い出す。登録済みユーザーは要求パラメータ
// に従って自分名義のクライアントを発行・再利用する。
func (s *Server) handleBootstrap() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bootstrapRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid bootstrap parameters"})
			return
		}
		if req.Ratelimit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "ratelimit must be greater than or equal to 0"})
			return
		}

		expires := defaultExpires
		if req.Expires != "" {
			parsed, err := time.Parse(time.RFC3339, req.Expires)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"message": "expires must be an RFC3339 timestamp"})
				return
			}
			expires = parsed
		}

		individual := map[string]float64{}
		if req.IndividualRatelimits != "" {
			if err := json.Unmarshal([]byte(req.IndividualRatelimits), &individual); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"message": "individual_ratelimits must be a JSON object of scope to multiplier"})
				return
			}
		}

		ctx := c.Request.Context()

		// アイデンティティはここで一度だけ解決する
		ident, claims, ok := s.currentIdentity(c)
		if !ok {
			anon, err := s.queries.GetUserByEmail(ctx, s.cfg.anonymousEmail)
			if err != nil {
				log.Printf("匿名ブートストラップユーザーの解決に失敗: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not login as bootstrap user"})
				return
			}
			ident = identity{anonymous: true, user: anon}
			claims = nil
		}

		if ident.anonymous {
			s.bootstrapAnonymous(c, ident, claims, &req)
			return
		}

		client, token, created, err := s.bootstrapUser(ctx, &ident.user, &req, expires, individual)
		if err != nil {
			var capErr *capacityError
			if errors.As(err, &capErr) {
				c.JSON(http.StatusBadRequest, gin.H{"message": capErr.Error()})
				return
			}
			log.Printf("クライアント発行に失敗: user=%s, error=%v", ident.user.Email, err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "could not issue client"})
			return
		}

		s.recordEvent(ctx, ident.user.UID, event.TypeBootstrapIssued, event.BootstrapIssuedData{
			ClientID:  client.ClientID,
			Anonymous: false,
			Created:   created,
		})
		c.JSON(http.StatusOK, s.newBootstrapResponse(&ident, &client, &token))
	}
}

// bootstrapAnonymous は匿名ブートストラップの経路を処理する。
// セッションまたはBearerトークンが記憶しているクライアントの再利用を
// 試み、見つからなければ一時クライアントを新規作成する。
func (s *Server) bootstrapAnonymous(c *gin.Context, ident identity, claims *sessionClaims, req *bootstrapRequest) {
	// 匿名呼び出し元は発行内容をカスタマイズできない
	if req.Scope != "" || req.ClientName != "" || req.RedirectURI != "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"message": "Sorry, you cant change scope/name/redirect_uri when creating temporary OAuth application",
		})
		return
	}

	ctx := c.Request.Context()

	// 記憶されたクライアント参照はセッションを優先し、
	// なければ受信したBearerトークンのクライアントを使う
	rememberedID := ""
	if claims != nil {
		rememberedID = claims.OAuthClient
	}
	if rememberedID == "" {
		rememberedID = s.bearerClientID(c)
	}

	created := false
	client, token, err := s.loadAnonymousClient(ctx, rememberedID, &ident.user)
	if err != nil {
		client, token, err = s.createAnonymousClient(ctx, &ident.user)
		if err != nil {
			log.Printf("一時クライアントの作成に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "could not issue client"})
			return
		}
		created = true
	}

	// 次回以降の再利用のためクライアント参照をセッションへ書き戻す。
	// 同一匿名セッションからの並行呼び出しでは後勝ちになるが、
	// 取り残された一時クライアントも保護リソースへのアクセスには
	// 有効なため許容する。
	if err := s.issueSession(c, ident, client.ClientID); err != nil {
		log.Printf("セッション発行に失敗: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not establish session"})
		return
	}

	s.recordEvent(ctx, ident.user.UID, event.TypeBootstrapIssued, event.BootstrapIssuedData{
		ClientID:  client.ClientID,
		Anonymous: true,
		Created:   created,
	})
	c.JSON(http.StatusOK, s.newBootstrapResponse(&ident, &client, &token))
}

// loadAnonymousClient は記憶されたClientIDから匿名クライアントと
// その有効なトークンを読み込む。クライアントの所有者が匿名ユーザーと
// 一致しない場合は古い参照として破棄する（エラーを返す）。
func (s *Server) loadAnonymousClient(ctx context.Context, clientID string, anon *db.User) (db.OAuth2Client, db.OAuth2Token, error) {
	if clientID == "" {
		return db.OAuth2Client{}, db.OAuth2Token{}, errors.New("記憶されたクライアントがない")
	}

	client, err := s.queries.GetClientByClientID(ctx, clientID)
	if err != nil {
		return db.OAuth2Client{}, db.OAuth2Token{}, fmt.Errorf("クライアント %s の取得に失敗: %w", clientID, err)
	}
	if client.UserUID != anon.UID {
		return db.OAuth2Client{}, db.OAuth2Token{}, fmt.Errorf("クライアント %s は匿名ユーザーの所有ではない", clientID)
	}

	token, err := s.queries.GetTokenByClient(ctx, clientID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && token.ExpireIn(time.Now()) == 0) {
		token, err = s.createTemporaryToken(ctx, &client)
	}
	if err != nil {
		return db.OAuth2Client{}, db.OAuth2Token{}, err
	}
	return client, token, nil
}

// createAnonymousClient は匿名ユーザー名義の一時クライアントと
// トークンの組を新規作成する（エフェメラルブートストラップ）。
// スコープと係数はプロセス全体のデフォルトを使用する。
func (s *Server) createAnonymousClient(ctx context.Context, anon *db.User) (db.OAuth2Client, db.OAuth2Token, error) {
	client, err := s.queries.CreateClient(ctx, db.CreateClientParams{
		ClientID:            uuid.New().String(),
		ClientSecret:        genToken(20),
		UserUID:             anon.UID,
		Scope:               strings.Join(s.cfg.defaultScopes, " "),
		RatelimitMultiplier: 1.0,
	})
	if err != nil {
		return db.OAuth2Client{}, db.OAuth2Token{}, err
	}

	token, err := s.createTemporaryToken(ctx, &client)
	if err != nil {
		return db.OAuth2Client{}, db.OAuth2Token{}, err
	}
	return client, token, nil
}

// createTemporaryToken は匿名クライアント用の短命トークンを発行する。
func (s *Server) createTemporaryToken(ctx context.Context, client *db.OAuth2Client) (db.OAuth2Token, error) {
	return s.queries.CreateToken(ctx, db.CreateTokenParams{
		ClientID:     client.ClientID,
		UserUID:      client.UserUID,
		AccessToken:  genToken(20),
		RefreshToken: genToken(20),
		Scope:        strings.Join(s.cfg.defaultScopes, " "),
		ExpiresAt:    time.Now().Add(s.cfg.bootstrapTokenExpires),
	})
}

// bootstrapUser は登録済みユーザー名義のクライアント/トークンの組を
// 発行または再利用する。
//
// create_newが偽の場合は要求された表示名に一致する最新のクライアントを
// 再利用し、その有効なトークンを返す。一致するものがない場合は新規作成
// する（エラーにはしない）。create_newが真の場合は常に新規作成する。
func (s *Server) bootstrapUser(ctx context.Context, user *db.User, req *bootstrapRequest, expires time.Time, individual map[string]float64) (db.OAuth2Client, db.OAuth2Token, bool, error) {
	used, err := s.queries.SumClientMultipliers(ctx, user.UID)
	if err != nil {
		return db.OAuth2Client{}, db.OAuth2Token{}, false, err
	}
	if err := checkClientCapacity(user, used, req.Ratelimit); err != nil {
		return db.OAuth2Client{}, db.OAuth2Token{}, false, err
	}

	name := req.ClientName
	if name == "" {
		name = s.cfg.bootstrapClientName
	}
	scope := req.Scope
	if scope == "" {
		scope = strings.Join(user.AllowedScopeList(s.cfg.defaultScopes), " ")
	}

	clients, err := s.queries.ListClientsByUser(ctx, user.UID)
	if err != nil {
		return db.OAuth2Client{}, db.OAuth2Token{}, false, err
	}

	var existing *db.OAuth2Client
	for i := range clients {
		if clients[i].Name == name {
			existing = &clients[i]
			break
		}
	}

	if existing == nil || req.CreateNew {
		individualJSON, err := json.Marshal(individual)
		if err != nil {
			return db.OAuth2Client{}, db.OAuth2Token{}, false, err
		}

		client, err := s.queries.CreateClient(ctx, db.CreateClientParams{
			ClientID:             uuid.New().String(),
			ClientSecret:         genToken(20),
			UserUID:              user.UID,
			Name:                 name,
			Description:          name,
			RedirectURI:          req.RedirectURI,
			Scope:                scope,
			RatelimitMultiplier:  req.Ratelimit,
			IndividualRatelimits: string(individualJSON),
		})
		if err != nil {
			return db.OAuth2Client{}, db.OAuth2Token{}, false, err
		}

		token, err := s.queries.CreateToken(ctx, db.CreateTokenParams{
			ClientID:     client.ClientID,
			UserUID:      user.UID,
			AccessToken:  genToken(20),
			RefreshToken: genToken(20),
			Scope:        scope,
			ExpiresAt:    expires,
		})
		if err != nil {
			return db.OAuth2Client{}, db.OAuth2Token{}, false, err
		}

		log.Printf("クライアントを作成しました: user=%s, client=%s", user.Email, client.ClientID)
		return client, token, true, nil
	}

	token, err := s.queries.GetTokenByClientAndUser(ctx, existing.ClientID, user.UID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && token.ExpireIn(time.Now()) == 0) {
		token, err = s.queries.CreateToken(ctx, db.CreateTokenParams{
			ClientID:     existing.ClientID,
			UserUID:      user.UID,
			AccessToken:  genToken(20),
			RefreshToken: genToken(20),
			Scope:        existing.Scope,
			ExpiresAt:    expires,
		})
	}
	if err != nil {
		return db.OAuth2Client{}, db.OAuth2Token{}, false, err
	}
	return *existing, token, false, nil
}

// newBootstrapResponse は(ユーザー, クライアント, トークン)の三つ組から
// bootstrapレスポンスを組み立てる。
func (s *Server) newBootstrapResponse(ident *identity, client *db.OAuth2Client, token *db.OAuth2Token) bootstrapResponse {
	return bootstrapResponse{
		AccessToken:          token.AccessToken,
		RefreshToken:         token.RefreshToken,
		ExpireIn:             token.ExpireIn(time.Now()),
		TokenType:            "Bearer",
		Username:             ident.user.Email,
		Scopes:               token.Scope,
		Anonymous:            ident.anonymous,
		ClientID:             client.ClientID,
		ClientSecret:         client.ClientSecret,
		Ratelimit:            client.RatelimitMultiplier,
		ClientName:           client.Name,
		IndividualRatelimits: client.IndividualRatelimitMap(),
	}
}
