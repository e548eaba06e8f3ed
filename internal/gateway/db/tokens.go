package db

import (
	"context"
	"fmt"
	"time"
)

const tokenColumns = `id, client_id, user_uid, access_token, refresh_token, scope, issued_at, expires_at`

// scanToken は1行分のトークンレコードを読み取る。
func scanToken(row interface{ Scan(...any) error }) (OAuth2Token, error) {
	var t OAuth2Token
	err := row.Scan(
		&t.ID, &t.ClientID, &t.UserUID, &t.AccessToken, &t.RefreshToken,
		&t.Scope, &t.IssuedAt, &t.ExpiresAt,
	)
	return t, err
}

// GetTokenByClientAndUser は指定クライアントとユーザーの組に発行された
// 最新のトークンを返す。
func (q *Queries) GetTokenByClientAndUser(ctx context.Context, clientID, userUID string) (OAuth2Token, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM oauth2_tokens
		 WHERE client_id = ? AND user_uid = ?
		 ORDER BY issued_at DESC, id DESC LIMIT 1`, clientID, userUID)
	return scanToken(row)
}

// GetTokenByClient は指定クライアントに発行された最新のトークンを返す。
func (q *Queries) GetTokenByClient(ctx context.Context, clientID string) (OAuth2Token, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM oauth2_tokens
		 WHERE client_id = ? ORDER BY issued_at DESC, id DESC LIMIT 1`, clientID)
	return scanToken(row)
}

// GetTokenByAccess はアクセストークン文字列でトークンを検索する。
// Bearerトークン検証に使用する。
func (q *Queries) GetTokenByAccess(ctx context.Context, accessToken string) (OAuth2Token, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM oauth2_tokens WHERE access_token = ?`, accessToken)
	return scanToken(row)
}

// CreateTokenParams はトークン作成のパラメータ。
type CreateTokenParams struct {
	// ClientID は発行元クライアントのClientID。
	ClientID string
	// UserUID は所有ユーザーのUID。発行元クライアントの所有者と一致しなければならない。
	UserUID string
	// AccessToken はアクセストークン。
	AccessToken string
	// RefreshToken はリフレッシュトークン。
	RefreshToken string
	// Scope は付与するスコープ（空白区切り）。
	Scope string
	// ExpiresAt は失効日時。
	ExpiresAt time.Time
}

// CreateToken は新しいOAuth2トークンを作成する。
// トークンのユーザーとクライアントの所有者が食い違う場合はエラーを返す。
func (q *Queries) CreateToken(ctx context.Context, arg CreateTokenParams) (OAuth2Token, error) {
	client, err := q.GetClientByClientID(ctx, arg.ClientID)
	if err != nil {
		return OAuth2Token{}, fmt.Errorf("発行元クライアントの取得に失敗: %w", err)
	}
	if client.UserUID != arg.UserUID {
		return OAuth2Token{}, fmt.Errorf("クライアント %s の所有者とトークンのユーザーが一致しない", arg.ClientID)
	}

	res, err := q.db.ExecContext(ctx, `
		INSERT INTO oauth2_tokens (client_id, user_uid, access_token, refresh_token, scope, issued_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		arg.ClientID, arg.UserUID, arg.AccessToken, arg.RefreshToken,
		arg.Scope, time.Now().UTC(), arg.ExpiresAt.UTC(),
	)
	if err != nil {
		return OAuth2Token{}, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return OAuth2Token{}, fmt.Errorf("挿入したトークンIDの取得に失敗: %w", err)
	}

	row := q.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM oauth2_tokens WHERE id = ?`, id)
	return scanToken(row)
}

// DeleteTokensByClient は指定クライアントのトークンをすべて削除する。
func (q *Queries) DeleteTokensByClient(ctx context.Context, clientID string) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM oauth2_tokens WHERE client_id = ?`, clientID)
	return err
}
