package gateway

import (
	"fmt"

	"github.com/nao1215/gatekeeper/internal/gateway/db"
)

// effectiveQuota は(ユーザー, クライアント, スコープ)の組に対する
// 実効クォータを計算する純関数。基本はユーザーの基礎割り当て量と
// クライアントの基礎係数の積で、スコープごとの上書き係数がある場合は
// そちらが基礎係数を置き換える。
//
// 係数0は「スコープ上書きがない限りデフォルトのアクセスなし」を意味する。
// 丸めは行わず、消費側のリミッターに浮動小数点のまま渡す。
func effectiveQuota(user *db.User, client *db.OAuth2Client, scope string) float64 {
	multiplier := client.RatelimitMultiplier
	if override, ok := client.IndividualRatelimitMap()[scope]; ok {
		multiplier = override
	}
	return user.RatelimitQuota * multiplier
}

// capacityError はクライアント発行容量の超過を表すエラー。
// 呼び出し元の入力起因のためHTTP境界では400系として扱う。
type capacityError struct {
	msg string
}

// Error はエラーメッセージを返す。
func (e *capacityError) Error() string { return e.msg }

// checkClientCapacity はユーザーが新しいクライアントに要求された係数を
// 割り当てる容量を持つか検査する。割り当て量が未設定(0)の場合は2.0、
// -1の場合は無制限として扱う。容量超過の場合はcapacityErrorを返す。
func checkClientCapacity(user *db.User, used, requested float64) error {
	allowed := user.RatelimitQuota
	if allowed == 0 {
		allowed = 2.0
	}
	if allowed == -1 {
		return nil
	}

	if allowed-(used+requested) < 0 {
		return &capacityError{msg: fmt.Sprintf(
			"The current user account (%s) does not have enough capacity to create a new client. Requested: %g, Available: %g",
			user.Email, requested, allowed-used)}
	}
	return nil
}
