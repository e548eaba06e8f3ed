// Package db はゲートウェイの認証情報ストアへのクエリ層を提供する。
// ユーザー・ロール・OAuth2クライアント・トークン・変更リクエストの
// 永続化をSQLite上で行う。
package db

import (
	"context"
	"database/sql"
	"strings"
)

// DBTX は*sql.DBと*sql.Txの共通インターフェース。
// トランザクション内外で同じクエリメソッドを使うために定義する。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries は認証情報ストアへのクエリ実行オブジェクト。
type Queries struct {
	db DBTX
}

// New は新しいクエリ実行オブジェクトを生成する。
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx はトランザクションに紐づいたクエリ実行オブジェクトを返す。
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// IsUniqueViolation は一意制約違反によるエラーかどうかを判定する。
// 重複メールアドレスや重複トークンの検出に使用する。
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
