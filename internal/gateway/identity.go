package gateway

import (
	"github.com/gin-gonic/gin"

	"github.com/nao1215/gatekeeper/internal/gateway/db"
)

// identity はリクエストごとに一度だけ解決される呼び出し元の
// アイデンティティ。匿名（番兵ユーザー）か登録済みユーザーかを
// タグで区別し、番兵メールアドレスとの比較を各所に散らばらせない。
type identity struct {
	// anonymous は匿名ブートストラップユーザーかどうか。
	anonymous bool
	// user は解決済みのユーザーレコード。
	user db.User
}

// currentIdentity はセッションCookieから呼び出し元のアイデンティティを
// 解決する。セッションがない、またはユーザーがすでに存在しない場合は
// 未認証としてfalseを返す。
func (s *Server) currentIdentity(c *gin.Context) (identity, *sessionClaims, bool) {
	claims, ok := s.parseSession(c)
	if !ok {
		return identity{}, nil, false
	}

	user, err := s.queries.GetUserByUID(c.Request.Context(), claims.UserUID)
	if err != nil {
		// セッションが指すユーザーが消えている場合は未認証扱い
		return identity{}, nil, false
	}

	return identity{
		anonymous: user.Email == s.cfg.anonymousEmail,
		user:      user,
	}, claims, true
}

// requireIdentified は登録済み（非匿名）ユーザーのセッションを要求する。
// 条件を満たさない場合は(identity{}, false)を返す。
func (s *Server) requireIdentified(c *gin.Context) (identity, bool) {
	ident, _, ok := s.currentIdentity(c)
	if !ok || ident.anonymous {
		return identity{}, false
	}
	return ident, true
}
