// Package event はゲートウェイの監査イベントの型と生成ヘルパーを提供する。
// 認証・トークン発行・アカウント操作の履歴を監査ログとして残すために使用する。
package event

import (
	"encoding/json"
	"time"
)

// Type は監査イベントの種類を表す。
type Type string

const (
	// TypeLoginSucceeded はログインに成功したことを表す。
	TypeLoginSucceeded Type = "LoginSucceeded"
	// TypeLoggedOut はログアウトしたことを表す。
	TypeLoggedOut Type = "LoggedOut"
	// TypeUserRegistered は新規ユーザーが登録されたことを表す。
	TypeUserRegistered Type = "UserRegistered"
	// TypeBootstrapIssued はbootstrapでクライアント/トークンが発行または
	// 再利用されたことを表す。
	TypeBootstrapIssued Type = "BootstrapIssued"
	// TypeAccountDeleted はアカウントが削除されたことを表す。
	TypeAccountDeleted Type = "AccountDeleted"
	// TypePasswordChanged はパスワードが変更されたことを表す。
	TypePasswordChanged Type = "PasswordChanged"
	// TypeEmailChanged はメールアドレスが変更されたことを表す。
	TypeEmailChanged Type = "EmailChanged"
)

// Event は監査イベントの不変レコードを表す。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// ActorUID は操作を行ったユーザーのUID。
	ActorUID string `json:"actor_uid"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// BootstrapIssuedData はBootstrapIssuedイベントのデータ。
type BootstrapIssuedData struct {
	// ClientID は発行または再利用されたクライアントのClientID。
	ClientID string `json:"client_id"`
	// Anonymous は匿名ブートストラップかどうか。
	Anonymous bool `json:"anonymous"`
	// Created は新規作成されたかどうか。falseは既存クライアントの再利用。
	Created bool `json:"created"`
}

// LoginData はLoginSucceededイベントのデータ。
type LoginData struct {
	// Email はログインしたユーザーのメールアドレス。
	Email string `json:"email"`
}

// RegisteredData はUserRegisteredイベントのデータ。
type RegisteredData struct {
	// Email は登録されたメールアドレス。
	Email string `json:"email"`
}
