package db

import (
	"context"
	"fmt"
	"time"
)

const clientColumns = `id, client_id, client_secret, user_uid, name, description,
	redirect_uri, scope, ratelimit_multiplier, individual_ratelimits, issued_at, last_activity`

// scanClient は1行分のクライアントレコードを読み取る。
func scanClient(row interface{ Scan(...any) error }) (OAuth2Client, error) {
	var c OAuth2Client
	err := row.Scan(
		&c.ID, &c.ClientID, &c.ClientSecret, &c.UserUID, &c.Name, &c.Description,
		&c.RedirectURI, &c.Scope, &c.RatelimitMultiplier, &c.IndividualRatelimits,
		&c.IssuedAt, &c.LastActivity,
	)
	return c, err
}

// GetClientByClientID はClientIDでクライアントを検索する。
func (q *Queries) GetClientByClientID(ctx context.Context, clientID string) (OAuth2Client, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM oauth2_clients WHERE client_id = ?`, clientID)
	return scanClient(row)
}

// ListClientsByUser は指定ユーザーが所有するクライアントを発行日時の降順で返す。
func (q *Queries) ListClientsByUser(ctx context.Context, userUID string) ([]OAuth2Client, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+clientColumns+` FROM oauth2_clients
		 WHERE user_uid = ? ORDER BY issued_at DESC, id DESC`, userUID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var clients []OAuth2Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// CreateClientParams はクライアント作成のパラメータ。
type CreateClientParams struct {
	// ClientID はクライアントの一意識別子。
	ClientID string
	// ClientSecret はクライアントシークレット。
	ClientSecret string
	// UserUID は所有ユーザーのUID。
	UserUID string
	// Name はクライアントの表示名。
	Name string
	// Description はクライアントの説明。
	Description string
	// RedirectURI はリダイレクトURI。
	RedirectURI string
	// Scope は許可スコープ（空白区切り）。
	Scope string
	// RatelimitMultiplier はレートリミットの基礎係数。
	RatelimitMultiplier float64
	// IndividualRatelimits はスコープごとの係数上書き（JSON文字列）。
	IndividualRatelimits string
}

// CreateClient は新しいOAuth2クライアントを作成する。
func (q *Queries) CreateClient(ctx context.Context, arg CreateClientParams) (OAuth2Client, error) {
	individual := arg.IndividualRatelimits
	if individual == "" {
		individual = "{}"
	}

	res, err := q.db.ExecContext(ctx, `
		INSERT INTO oauth2_clients (client_id, client_secret, user_uid, name, description,
			redirect_uri, scope, ratelimit_multiplier, individual_ratelimits, issued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		arg.ClientID, arg.ClientSecret, arg.UserUID, arg.Name, arg.Description,
		arg.RedirectURI, arg.Scope, arg.RatelimitMultiplier, individual, time.Now().UTC(),
	)
	if err != nil {
		return OAuth2Client{}, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return OAuth2Client{}, fmt.Errorf("挿入したクライアントIDの取得に失敗: %w", err)
	}

	row := q.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM oauth2_clients WHERE id = ?`, id)
	return scanClient(row)
}

// SumClientMultipliers は指定ユーザーの全クライアントの係数合計を返す。
// クライアント発行時の容量チェックに使用する。
func (q *Queries) SumClientMultipliers(ctx context.Context, userUID string) (float64, error) {
	var sum float64
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(ratelimit_multiplier), 0) FROM oauth2_clients WHERE user_uid = ?`,
		userUID).Scan(&sum)
	return sum, err
}

// TouchClientActivity はクライアントの最終利用日時を更新する。
func (q *Queries) TouchClientActivity(ctx context.Context, clientID string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE oauth2_clients SET last_activity = ? WHERE client_id = ?`,
		time.Now().UTC(), clientID)
	return err
}
