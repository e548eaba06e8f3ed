// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// パニックリカバリとCORS設定など、エンドポイント横断で共通して
// 使用するミドルウェアを含む。セッションやBearerトークンの検証は
// ストアへのアクセスを要するためinternal/gateway側で実装する。
package middleware
