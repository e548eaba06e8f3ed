package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// anonymousToken は匿名ブートストラップでアクセストークンを取得する。
func anonymousToken(t *testing.T, s *Server) string {
	t.Helper()

	w := bootstrapReq(t, s, "", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("ブートストラップに失敗: status=%d, body=%s", w.Code, w.Body.String())
	}
	token, _ := decodeJSON(t, w)["access_token"].(string)
	if token == "" {
		t.Fatal("access_tokenが空")
	}
	return token
}

// TestHandleProxy はバックエンド転送ハンドラのテスト。
func TestHandleProxy(t *testing.T) {
	t.Parallel()

	t.Run("メソッドとパスとクエリとボディをそのまま転送する", func(t *testing.T) {
		t.Parallel()

		type captured struct {
			method string
			path   string
			query  string
			body   string
			header string
		}
		var got captured

		s, _ := newTestServerWithBackend(t, func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			got = captured{
				method: r.Method,
				path:   r.URL.Path,
				query:  r.URL.RawQuery,
				body:   string(body),
				header: r.Header.Get("X-Custom-Header"),
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"result":"created"}`))
		})
		token := anonymousToken(t, s)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/scan/documents/42?q=term&limit=5",
			strings.NewReader(`{"title":"report"}`))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-Custom-Header", "custom-value")
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
		}
		if got.method != http.MethodPost {
			t.Errorf("転送メソッド: got %q, want %q", got.method, http.MethodPost)
		}
		if got.path != "/documents/42" {
			t.Errorf("転送パス: got %q, want %q", got.path, "/documents/42")
		}
		if got.query != "q=term&limit=5" {
			t.Errorf("転送クエリ: got %q, want %q", got.query, "q=term&limit=5")
		}
		if got.body != `{"title":"report"}` {
			t.Errorf("転送ボディ: got %q, want %q", got.body, `{"title":"report"}`)
		}
		if got.header != "custom-value" {
			t.Errorf("転送ヘッダー: got %q, want %q", got.header, "custom-value")
		}
		if w.Body.String() != `{"result":"created"}` {
			t.Errorf("中継ボディ: got %q, want %q", w.Body.String(), `{"result":"created"}`)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type: got %q, want %q", ct, "application/json")
		}
	})

	t.Run("バックエンドのエラーステータスもそのまま中継する", func(t *testing.T) {
		t.Parallel()

		s, _ := newTestServerWithBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "not found", http.StatusNotFound)
		})
		token := anonymousToken(t, s)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/scan/missing", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("バックエンドに到達できない場合は504を返す", func(t *testing.T) {
		t.Parallel()

		s, backend := newTestServerWithBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		token := anonymousToken(t, s)
		backend.Close()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/scan/anything", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusGatewayTimeout {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusGatewayTimeout)
		}
		if w.Body.String() != "504 Gateway Timeout" {
			t.Errorf("ボディ: got %q, want %q", w.Body.String(), "504 Gateway Timeout")
		}
	})

	t.Run("Bearerトークンなしでは転送しない", func(t *testing.T) {
		t.Parallel()

		var reached bool
		s, _ := newTestServerWithBackend(t, func(http.ResponseWriter, *http.Request) {
			reached = true
		})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/scan/anything", nil)
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if reached {
			t.Error("未認証のリクエストがバックエンドに到達した")
		}
	})
}
