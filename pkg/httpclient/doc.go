// Package httpclient はバックエンドWebサービスへのHTTP通信を行う
// クライアントを提供する。
//
// ゲートウェイがバックエンドのリソース定義文書を取得する際など、
// JSONベースのサービス間通信パターンを統一する。
package httpclient
