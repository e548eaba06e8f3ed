// Package gateway は認証付きAPIゲートウェイの内部実装を提供する。
//
// セッションCookieまたはOAuth2 Bearerトークンで呼び出し元を認証し、
// 匿名・登録済みの両ユーザーに対してOAuth2クライアント/トークンの組を
// 発行・再利用する。認可済みのリクエストは設定されたバックエンド
// Webサービスへ転送する。外部からアクセス可能な唯一のサービスであり、
// セキュリティの境界線として機能する。
package gateway
