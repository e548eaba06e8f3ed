package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const userColumns = `id, uid, email, password, given_name, family_name, active,
	confirmed_at, last_login_at, login_count, registered_at, ratelimit_quota, allowed_scopes`

// scanUser は1行分のユーザーレコードを読み取る。
func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.UID, &u.Email, &u.Password, &u.GivenName, &u.FamilyName, &u.Active,
		&u.ConfirmedAt, &u.LastLoginAt, &u.LoginCount, &u.RegisteredAt,
		&u.RatelimitQuota, &u.AllowedScopes,
	)
	return u, err
}

// GetUserByEmail はメールアドレスでユーザーを検索する。
// メールアドレスの大文字小文字は区別しない。
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE`, email)
	return scanUser(row)
}

// GetUserByUID はUIDでユーザーを検索する。
func (q *Queries) GetUserByUID(ctx context.Context, uid string) (User, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE uid = ?`, uid)
	return scanUser(row)
}

// GetUserByID は主キーでユーザーを検索する。
func (q *Queries) GetUserByID(ctx context.Context, id int64) (User, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// CreateUserParams はユーザー作成のパラメータ。
type CreateUserParams struct {
	// UID はユーザーの外部識別子（UUID）。
	UID string
	// Email はメールアドレス。
	Email string
	// Password はハッシュ化済みパスワード。
	Password string
	// GivenName は名。
	GivenName string
	// FamilyName は姓。
	FamilyName string
	// RatelimitQuota はレートリミットの基礎割り当て量。
	RatelimitQuota float64
	// AllowedScopes は許可スコープ（空白区切り、空ならデフォルト適用）。
	AllowedScopes string
	// Confirmed は作成時点で確認済みとするかどうか。
	Confirmed bool
}

// CreateUser は新しいユーザーを作成する。
// メールアドレスまたはUIDが重複している場合は一意制約違反を返す。
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	now := time.Now().UTC()
	var confirmedAt sql.NullTime
	if arg.Confirmed {
		confirmedAt = sql.NullTime{Time: now, Valid: true}
	}

	res, err := q.db.ExecContext(ctx, `
		INSERT INTO users (uid, email, password, given_name, family_name, active,
			confirmed_at, login_count, registered_at, ratelimit_quota, allowed_scopes)
		VALUES (?, ?, ?, ?, ?, 1, ?, 0, ?, ?, ?)`,
		arg.UID, arg.Email, arg.Password, arg.GivenName, arg.FamilyName,
		confirmedAt, now, arg.RatelimitQuota, arg.AllowedScopes,
	)
	if err != nil {
		return User{}, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return User{}, fmt.Errorf("挿入したユーザーIDの取得に失敗: %w", err)
	}
	return q.GetUserByID(ctx, id)
}

// UpdateLoginInfo はログイン成功時のメタデータを更新する。
// 最終ログイン日時を更新し、ログイン回数をインクリメントする。
func (q *Queries) UpdateLoginInfo(ctx context.Context, uid string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE users SET last_login_at = ?, login_count = login_count + 1
		WHERE uid = ?`, time.Now().UTC(), uid)
	return err
}

// UpdatePassword はユーザーのパスワードハッシュを更新する。
func (q *Queries) UpdatePassword(ctx context.Context, uid, hashed string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE users SET password = ? WHERE uid = ?`, hashed, uid)
	return err
}

// UpdateEmail はユーザーのメールアドレスを更新する。
func (q *Queries) UpdateEmail(ctx context.Context, uid, email string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE users SET email = ? WHERE uid = ?`, email, uid)
	return err
}

// ConfirmUser はユーザーのメールアドレスを確認済みにする。
func (q *Queries) ConfirmUser(ctx context.Context, uid string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE users SET confirmed_at = ? WHERE uid = ?`, time.Now().UTC(), uid)
	return err
}

// DeleteUserCascade はユーザーと所有する全レコードを1トランザクションで削除する。
// SQLiteのON DELETE CASCADEに頼らず、所有関係をたどって明示的に削除する。
// トークン・クライアント・変更リクエスト・ロール紐付けを消した後にユーザー本体を消す。
func DeleteUserCascade(ctx context.Context, sqlDB *sql.DB, uid string) error {
	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	q := New(tx)
	user, err := q.GetUserByUID(ctx, uid)
	if err != nil {
		return err
	}

	stmts := []struct {
		query string
		arg   any
	}{
		{`DELETE FROM oauth2_tokens WHERE user_uid = ?`, uid},
		{`DELETE FROM oauth2_clients WHERE user_uid = ?`, uid},
		{`DELETE FROM email_change_requests WHERE user_id = ?`, user.ID},
		{`DELETE FROM password_change_requests WHERE user_id = ?`, user.ID},
		{`DELETE FROM roles_users WHERE user_id = ?`, user.ID},
		{`DELETE FROM users WHERE id = ?`, user.ID},
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s.query, s.arg); err != nil {
			return fmt.Errorf("カスケード削除に失敗: %w", err)
		}
	}

	return tx.Commit()
}
