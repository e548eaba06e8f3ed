package gateway

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/gatekeeper/internal/gateway/db"
	"github.com/nao1215/gatekeeper/pkg/event"
)

// recordEvent は監査イベントを記録する。監査ログは本処理の成否を
// 左右しないため、記録の失敗はログに残すだけで呼び出し元には伝えない。
func (s *Server) recordEvent(ctx context.Context, actorUID string, t event.Type, data any) {
	e, err := event.New(actorUID, t, data)
	if err != nil {
		log.Printf("監査イベントの生成に失敗: %v", err)
		return
	}
	err = s.queries.CreateAuditEvent(ctx, db.CreateAuditEventParams{
		ID:        e.ID,
		ActorUID:  e.ActorUID,
		EventType: string(e.EventType),
		Data:      string(e.Data),
	})
	if err != nil {
		log.Printf("監査イベントの記録に失敗: %v", err)
	}
}

// handleAdminEvents は監査イベントの一覧を返すハンドラを返す。
// adminロールを持つ登録済みユーザーのみが閲覧できる。
func (s *Server) handleAdminEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := s.requireIdentified(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		ctx := c.Request.Context()
		isAdmin, err := s.queries.UserHasRole(ctx, ident.user.UID, "admin")
		if err != nil {
			log.Printf("ロール確認に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		if !isAdmin {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		events, err := s.queries.ListAuditEvents(ctx, 100)
		if err != nil {
			log.Printf("監査イベントの取得に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		list := make([]gin.H, 0, len(events))
		for _, e := range events {
			list = append(list, gin.H{
				"id":         e.ID,
				"actor_uid":  e.ActorUID,
				"event_type": e.EventType,
				"data":       e.Data,
				"created_at": e.CreatedAt,
			})
		}
		c.JSON(http.StatusOK, gin.H{"events": list})
	}
}
