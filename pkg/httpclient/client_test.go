package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestGetJSON はGETリクエストのテスト。
func TestGetJSON(t *testing.T) {
	t.Parallel()

	t.Run("レスポンスをデシリアライズする", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/resources" {
				t.Errorf("パス: got %q, want %q", r.URL.Path, "/resources")
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"scan": "/documents", "export": "/archives"}`))
		}))
		t.Cleanup(server.Close)

		client := New(server.URL, 5*time.Second)
		var result map[string]string
		if err := client.GetJSON(context.Background(), "/resources", &result); err != nil {
			t.Fatalf("リクエストに失敗: %v", err)
		}
		if result["scan"] != "/documents" {
			t.Errorf("scan: got %q, want %q", result["scan"], "/documents")
		}
	})

	t.Run("エラーステータスはエラーを返す", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "not found", http.StatusNotFound)
		}))
		t.Cleanup(server.Close)

		client := New(server.URL, 5*time.Second)
		var result map[string]string
		if err := client.GetJSON(context.Background(), "/missing", &result); err == nil {
			t.Error("エラーステータスでエラーを返さない")
		}
	})

	t.Run("到達できないサーバーはエラーを返す", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		server.Close()

		client := New(server.URL, time.Second)
		if err := client.GetJSON(context.Background(), "/", nil); err == nil {
			t.Error("接続失敗でエラーを返さない")
		}
	})
}

// TestPostJSON はPOSTリクエストのテスト。
func TestPostJSON(t *testing.T) {
	t.Parallel()

	t.Run("ボディをJSONとして送信する", func(t *testing.T) {
		t.Parallel()

		type payload struct {
			Name string `json:"name"`
		}

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type: got %q, want %q", ct, "application/json")
			}
			var got payload
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("ボディのデコードに失敗: %v", err)
			}
			if got.Name != "report" {
				t.Errorf("name: got %q, want %q", got.Name, "report")
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id": "doc-1"}`))
		}))
		t.Cleanup(server.Close)

		client := New(server.URL, 5*time.Second)
		var result map[string]string
		if err := client.PostJSON(context.Background(), "/documents", payload{Name: "report"}, &result); err != nil {
			t.Fatalf("リクエストに失敗: %v", err)
		}
		if result["id"] != "doc-1" {
			t.Errorf("id: got %q, want %q", result["id"], "doc-1")
		}
	})
}
