package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/gatekeeper/internal/gateway/db"
)

// protectedReq は指定したBearerトークンで/protectedを呼び出す。
func protectedReq(t *testing.T, s *Server, bearer string) *httptest.ResponseRecorder {
	t.Helper()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	s.router.ServeHTTP(w, req)
	return w
}

// TestOAuthRequired はBearerトークン検証ミドルウェアのテスト。
func TestOAuthRequired(t *testing.T) {
	t.Parallel()

	t.Run("有効なトークンで保護リソースにアクセスできる", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		token := anonymousToken(t, s)

		w := protectedReq(t, s, token)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		result := decodeJSON(t, w)
		if result["app"] != "gatekeeper" {
			t.Errorf("app: got %q, want %q", result["app"], "gatekeeper")
		}
		if result["oauth"] != s.cfg.anonymousEmail {
			t.Errorf("oauth: got %q, want %q", result["oauth"], s.cfg.anonymousEmail)
		}
		if w.Header().Get("X-RateLimit-Limit") == "" {
			t.Error("X-RateLimit-Limitヘッダーが設定されていない")
		}
	})

	t.Run("トークンなしは401を返す", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)

		w := protectedReq(t, s, "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("未知のトークンは401を返す", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)

		w := protectedReq(t, s, "no-such-token")
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
		result := decodeJSON(t, w)
		if result["message"] != "invalid or expired token" {
			t.Errorf("message: got %q, want %q", result["message"], "invalid or expired token")
		}
	})

	t.Run("失効したトークンは401を返す", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		user := seedUser(t, s, "user@example.com", "Password1", 0)

		ctx := context.Background()
		client, err := s.queries.CreateClient(ctx, db.CreateClientParams{
			ClientID:            uuid.New().String(),
			ClientSecret:        genToken(20),
			UserUID:             user.UID,
			Name:                "expired",
			RatelimitMultiplier: 1.0,
		})
		if err != nil {
			t.Fatalf("テスト用クライアント作成に失敗: %v", err)
		}
		token, err := s.queries.CreateToken(ctx, db.CreateTokenParams{
			ClientID:     client.ClientID,
			UserUID:      user.UID,
			AccessToken:  genToken(20),
			RefreshToken: genToken(20),
			ExpiresAt:    time.Now().Add(-time.Minute),
		})
		if err != nil {
			t.Fatalf("テスト用トークン作成に失敗: %v", err)
		}

		w := protectedReq(t, s, token.AccessToken)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("Bearer以外の認可方式は401を返す", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("アクセスするとクライアントの最終利用日時が更新される", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		token := anonymousToken(t, s)

		w := protectedReq(t, s, token)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}

		ctx := context.Background()
		stored, err := s.queries.GetTokenByAccess(ctx, token)
		if err != nil {
			t.Fatalf("トークン取得に失敗: %v", err)
		}
		client, err := s.queries.GetClientByClientID(ctx, stored.ClientID)
		if err != nil {
			t.Fatalf("クライアント取得に失敗: %v", err)
		}
		if !client.LastActivity.Valid {
			t.Error("last_activityが更新されていない")
		}
	})
}
