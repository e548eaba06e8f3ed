package db

import (
	"context"
	"time"
)

// CreateEmailChangeRequest はメールアドレス変更の保留リクエストを作成する。
// 同一ユーザーの既存リクエストは呼び出し側で削除しておくこと。
func (q *Queries) CreateEmailChangeRequest(ctx context.Context, token string, userID int64, newEmail string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO email_change_requests (token, user_id, new_email, created_at)
		VALUES (?, ?, ?, ?)`, token, userID, newEmail, time.Now().UTC())
	return err
}

// GetEmailChangeRequest はトークンでメールアドレス変更リクエストを検索する。
func (q *Queries) GetEmailChangeRequest(ctx context.Context, token string) (EmailChangeRequest, error) {
	var r EmailChangeRequest
	err := q.db.QueryRowContext(ctx, `
		SELECT id, token, user_id, new_email, created_at
		FROM email_change_requests WHERE token = ?`, token).
		Scan(&r.ID, &r.Token, &r.UserID, &r.NewEmail, &r.CreatedAt)
	return r, err
}

// DeleteEmailChangeRequestsByUser は指定ユーザーのメールアドレス変更リクエストを
// すべて削除する。
func (q *Queries) DeleteEmailChangeRequestsByUser(ctx context.Context, userID int64) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM email_change_requests WHERE user_id = ?`, userID)
	return err
}

// CreatePasswordChangeRequest はパスワードリセットの保留リクエストを作成する。
func (q *Queries) CreatePasswordChangeRequest(ctx context.Context, token string, userID int64) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO password_change_requests (token, user_id, created_at)
		VALUES (?, ?, ?)`, token, userID, time.Now().UTC())
	return err
}

// GetPasswordChangeRequest はトークンでパスワードリセットリクエストを検索する。
func (q *Queries) GetPasswordChangeRequest(ctx context.Context, token string) (PasswordChangeRequest, error) {
	var r PasswordChangeRequest
	err := q.db.QueryRowContext(ctx, `
		SELECT id, token, user_id, created_at
		FROM password_change_requests WHERE token = ?`, token).
		Scan(&r.ID, &r.Token, &r.UserID, &r.CreatedAt)
	return r, err
}

// DeletePasswordChangeRequestsByUser は指定ユーザーのパスワードリセット
// リクエストをすべて削除する。
func (q *Queries) DeletePasswordChangeRequestsByUser(ctx context.Context, userID int64) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM password_change_requests WHERE user_id = ?`, userID)
	return err
}
