package gateway

import (
	"context"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/gatekeeper/pkg/httpclient"
)

// handleProxy は1つのバックエンドWebサービスへの転送ハンドラを返す。
// 配備パスより後ろのパスとクエリ文字列をそのままバックエンドに引き渡し、
// バックエンドの応答をステータスコードごと呼び出し元へ中継する。
// バックエンドに到達できない場合は常に504を返す。
func (s *Server) handleProxy(svc backendService) gin.HandlerFunc {
	return func(c *gin.Context) {
		target := svc.baseURL + c.Param("proxyPath")
		if raw := c.Request.URL.RawQuery; raw != "" {
			target += "?" + raw
		}

		req, err := http.NewRequestWithContext(
			c.Request.Context(), c.Request.Method, target, c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid proxy request"})
			return
		}
		req.Header = c.Request.Header.Clone()

		resp, err := s.proxyClient.Do(req)
		if err != nil {
			// タイムアウト・接続拒否・名前解決失敗を区別せず、
			// 呼び出し元には一律でゲートウェイタイムアウトとして見せる
			log.Printf("バックエンド %s への転送に失敗: %v", svc.deployPath, err)
			c.Data(http.StatusGatewayTimeout, "text/plain; charset=utf-8", []byte("504 Gateway Timeout"))
			return
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			log.Printf("バックエンド %s の応答読み取りに失敗: %v", svc.deployPath, err)
			c.Data(http.StatusGatewayTimeout, "text/plain; charset=utf-8", []byte("504 Gateway Timeout"))
			return
		}
		c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), body)
	}
}

// discoverResources は起動時に各バックエンドへリソース記述を問い合わせ、
// 提供エンドポイントをログに出力する。到達できないバックエンドがあっても
// 起動は継続する（転送時に504として表面化する）。
func (s *Server) discoverResources(ctx context.Context) {
	for _, svc := range s.cfg.services {
		client := httpclient.New(svc.baseURL, 5*time.Second)

		var doc map[string]any
		if err := client.GetJSON(ctx, "/resources", &doc); err != nil {
			log.Printf("バックエンド %s (%s) のリソース取得に失敗: %v", svc.deployPath, svc.baseURL, err)
			continue
		}
		log.Printf("バックエンド %s (%s) を検出: %d個のリソース", svc.deployPath, svc.baseURL, len(doc))
	}
}
