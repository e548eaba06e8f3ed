package db

import (
	"context"
	"time"
)

// CreateAuditEventParams は監査イベント記録のパラメータ。
type CreateAuditEventParams struct {
	// ID はイベントの一意識別子（UUID）。
	ID string
	// ActorUID は操作を行ったユーザーのUID。
	ActorUID string
	// EventType はイベントの種類。
	EventType string
	// Data はイベント固有のデータ（JSON文字列）。
	Data string
}

// CreateAuditEvent は監査イベントを記録する。
func (q *Queries) CreateAuditEvent(ctx context.Context, arg CreateAuditEventParams) error {
	data := arg.Data
	if data == "" {
		data = "{}"
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, actor_uid, event_type, data, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		arg.ID, arg.ActorUID, arg.EventType, data, time.Now().UTC())
	return err
}

// ListAuditEvents は監査イベントを新しい順に最大limit件返す。
func (q *Queries) ListAuditEvents(ctx context.Context, limit int64) ([]AuditEvent, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, actor_uid, event_type, data, created_at
		FROM audit_events ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		if err := rows.Scan(&e.ID, &e.ActorUID, &e.EventType, &e.Data, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
