package db

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"
)

// User はゲートウェイに登録されたユーザーを表す。
// UIDが外部向けの主識別子であり、OAuth2のsubjectとして使用される。
// 数値のIDは永続化のためだけに保持する。
type User struct {
	// ID はデータベース上の主キー。
	ID int64
	// UID はユーザーの不変かつ一意な外部識別子（UUID）。
	UID string
	// Email はユーザーのメールアドレス。大文字小文字を区別せず一意。
	Email string
	// Password はbcryptでハッシュ化されたパスワード。
	Password string
	// GivenName は名。
	GivenName string
	// FamilyName は姓。
	FamilyName string
	// Active はアカウントが有効かどうか。
	Active bool
	// ConfirmedAt はメールアドレスの確認日時。未確認の場合はNULL。
	ConfirmedAt sql.NullTime
	// LastLoginAt は最終ログイン日時。
	LastLoginAt sql.NullTime
	// LoginCount はログイン回数。
	LoginCount int64
	// RegisteredAt は登録日時。
	RegisteredAt time.Time
	// RatelimitQuota はレートリミットの基礎割り当て量。
	RatelimitQuota float64
	// AllowedScopes はユーザーに許可されたスコープ（空白区切り）。
	// 空の場合はプロセス全体のデフォルトスコープが適用される。
	AllowedScopes string
}

// AllowedScopeList は許可スコープをスライスとして返す。
// 明示的な設定がない場合はdefaultsを返す。
func (u *User) AllowedScopeList(defaults []string) []string {
	if u.AllowedScopes == "" {
		return defaults
	}
	return strings.Fields(u.AllowedScopes)
}

// Role は名前付きの権限グループを表す。
type Role struct {
	// ID はデータベース上の主キー。
	ID int64
	// Name はロール名。一意。
	Name string
	// Description はロールの説明。
	Description string
}

// OAuth2Client は登録されたOAuth2アプリケーションを表す。
// 各クライアントはちょうど1人のユーザーに所有される。
type OAuth2Client struct {
	// ID はデータベース上の主キー。
	ID int64
	// ClientID はクライアントの一意識別子。
	ClientID string
	// ClientSecret はクライアントシークレット。再生成可能。
	ClientSecret string
	// UserUID は所有ユーザーのUID。
	UserUID string
	// Name はクライアントの表示名。
	Name string
	// Description はクライアントの説明。
	Description string
	// RedirectURI はリダイレクトURI。
	RedirectURI string
	// Scope はクライアントに許可されたスコープ（空白区切り）。
	Scope string
	// RatelimitMultiplier はレートリミットの基礎係数。
	RatelimitMultiplier float64
	// IndividualRatelimits はスコープごとの係数上書き（JSON文字列）。
	IndividualRatelimits string
	// IssuedAt はクライアントの発行日時。
	IssuedAt time.Time
	// LastActivity は最終利用日時。
	LastActivity sql.NullTime
}

// IndividualRatelimitMap はスコープごとの係数上書きをマップとして返す。
// JSONが不正な場合は空マップを返す。
func (c *OAuth2Client) IndividualRatelimitMap() map[string]float64 {
	m := map[string]float64{}
	if c.IndividualRatelimits == "" {
		return m
	}
	_ = json.Unmarshal([]byte(c.IndividualRatelimits), &m)
	return m
}

// OAuth2Token はアクセストークンとリフレッシュトークンの組を表す。
// トークンのクライアントはトークンのユーザーと同じ所有者でなければならない。
type OAuth2Token struct {
	// ID はデータベース上の主キー。
	ID int64
	// ClientID は発行元クライアントのClientID。
	ClientID string
	// UserUID は所有ユーザーのUID。
	UserUID string
	// AccessToken はアクセストークン。一意。
	AccessToken string
	// RefreshToken はリフレッシュトークン。一意。
	RefreshToken string
	// Scope は付与されたスコープ（空白区切り）。
	Scope string
	// IssuedAt はトークンの発行日時。
	IssuedAt time.Time
	// ExpiresAt はトークンの失効日時。
	ExpiresAt time.Time
}

// ExpireIn は失効までの残り秒数を返す。失効済みの場合は0を返す。
func (t *OAuth2Token) ExpireIn(now time.Time) int64 {
	d := t.ExpiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int64(d.Seconds())
}

// EmailChangeRequest はメールアドレス変更の保留リクエストを表す。
// トークンは一意であり、消費時に削除される。
type EmailChangeRequest struct {
	// ID はデータベース上の主キー。
	ID int64
	// Token は一度だけ使える確認トークン。
	Token string
	// UserID は対象ユーザーの主キー。
	UserID int64
	// NewEmail は変更後のメールアドレス。
	// 新規登録の確認の場合は現在のメールアドレスと同じ値を持つ。
	NewEmail string
	// CreatedAt はリクエストの作成日時。
	CreatedAt time.Time
}

// PasswordChangeRequest はパスワードリセットの保留リクエストを表す。
type PasswordChangeRequest struct {
	// ID はデータベース上の主キー。
	ID int64
	// Token は一度だけ使えるリセットトークン。
	Token string
	// UserID は対象ユーザーの主キー。
	UserID int64
	// CreatedAt はリクエストの作成日時。
	CreatedAt time.Time
}

// AuditEvent は監査イベントの永続化レコードを表す。
type AuditEvent struct {
	// ID はイベントの一意識別子（UUID）。
	ID string
	// ActorUID は操作を行ったユーザーのUID。
	ActorUID string
	// EventType はイベントの種類。
	EventType string
	// Data はイベント固有のデータ（JSON文字列）。
	Data string
	// CreatedAt はイベントの記録日時。
	CreatedAt time.Time
}
