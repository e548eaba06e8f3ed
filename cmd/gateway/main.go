// 認証付きAPIゲートウェイのエントリポイント。
// OAuth2クライアント/トークンの払い出し、セッション認証、バックエンド
// Webサービスへの転送を担当する。外部からアクセス可能な唯一のサービスで
// あり、セキュリティの境界線となる。
package main

import (
	"log"
	"os"

	"github.com/nao1215/gatekeeper/internal/gateway"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server, err := gateway.NewServer(port)
	if err != nil {
		log.Fatalf("ゲートウェイサーバーの初期化に失敗: %v", err)
	}

	log.Printf("ゲートウェイを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("ゲートウェイの起動に失敗: %v", err)
	}
}
