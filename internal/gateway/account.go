package gateway

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/gatekeeper/internal/gateway/db"
	"github.com/nao1215/gatekeeper/pkg/event"
)

// handleAccountDelete はアカウントと所有する全リソースを削除するハンドラを
// 返す。クライアント・トークン・保留リクエスト・ロール紐付けを1トランザク
// ションで削除し、成功後にセッションを破棄する。
func (s *Server) handleAccountDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := s.requireIdentified(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		ctx := c.Request.Context()
		if err := db.DeleteUserCascade(ctx, s.db, ident.user.UID); err != nil {
			log.Printf("アカウント削除に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		s.clearSession(c)
		s.recordEvent(ctx, ident.user.UID, event.TypeAccountDeleted, nil)
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	}
}

// changePasswordRequest はログイン済みユーザーのパスワード変更リクエスト。
type changePasswordRequest struct {
	// OldPassword は現在のパスワード。
	OldPassword string `json:"old_password" binding:"required"`
	// Password1 は新しいパスワード。
	Password1 string `json:"password1" binding:"required"`
	// Password2 は確認用の新しいパスワード。
	Password2 string `json:"password2" binding:"required"`
}

// handleChangePassword はログイン済みユーザーが現在のパスワードを提示して
// パスワードを変更するハンドラを返す。
func (s *Server) handleChangePassword() gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := s.requireIdentified(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		var req changePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "old_password, password1 and password2 are required"})
			return
		}
		if !verifyPassword(ident.user.Password, req.OldPassword) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "please verify your current password"})
			return
		}
		if err := validatePassword(req.Password1); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Password1 != req.Password2 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Passwords do not match"})
			return
		}

		hashed, err := hashPassword(req.Password1)
		if err != nil {
			log.Printf("パスワードハッシュ化に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		ctx := c.Request.Context()
		if err := s.queries.UpdatePassword(ctx, ident.user.UID, hashed); err != nil {
			log.Printf("パスワード更新に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		s.recordEvent(ctx, ident.user.UID, event.TypePasswordChanged, nil)
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	}
}

// handleResetPasswordRequest はパスワードリセットのトークンを払い出す
// ハンドラを返す。URLパラメータtargetは対象のメールアドレス。
// 匿名ブートストラップユーザーと未確認アカウントは対象外とする。
func (s *Server) handleResetPasswordRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		email := c.Param("target")

		ctx := c.Request.Context()
		user, err := s.queries.GetUserByEmail(ctx, email)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no such user exists"})
			return
		}
		if user.Email == s.cfg.anonymousEmail || !user.ConfirmedAt.Valid {
			c.JSON(http.StatusForbidden, gin.H{"error": "the account is not eligible for a password reset"})
			return
		}

		// 古いトークンは無効化し、常に最新の1件だけが有効になるようにする
		if err := s.queries.DeletePasswordChangeRequestsByUser(ctx, user.ID); err != nil {
			log.Printf("既存のリセットリクエストの削除に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		token := genToken(20)
		if err := s.queries.CreatePasswordChangeRequest(ctx, token, user.ID); err != nil {
			log.Printf("リセットリクエストの作成に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		log.Printf("パスワードリセット用URL: /reset-password/%s (email=%s)", token, user.Email)

		c.JSON(http.StatusOK, gin.H{"message": "success"})
	}
}

// resetPasswordApplyRequest はリセットトークンを消費してパスワードを
// 設定するリクエスト。
type resetPasswordApplyRequest struct {
	// Password1 は新しいパスワード。
	Password1 string `json:"password1" binding:"required"`
	// Password2 は確認用の新しいパスワード。
	Password2 string `json:"password2" binding:"required"`
}

// handleResetPasswordApply はリセットトークンを消費して新しいパスワードを
// 設定するハンドラを返す。URLパラメータtargetはリセットトークン。
// 成功した場合はそのままログイン状態のセッションを発行する。
func (s *Server) handleResetPasswordApply() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("target")

		ctx := c.Request.Context()
		request, err := s.queries.GetPasswordChangeRequest(ctx, token)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no user associated with that verification token"})
			return
		}

		var req resetPasswordApplyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "password1 and password2 are required"})
			return
		}
		if err := validatePassword(req.Password1); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Password1 != req.Password2 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Passwords do not match"})
			return
		}

		user, err := s.queries.GetUserByID(ctx, request.UserID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no user associated with that verification token"})
			return
		}

		hashed, err := hashPassword(req.Password1)
		if err != nil {
			log.Printf("パスワードハッシュ化に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		if err := s.queries.UpdatePassword(ctx, user.UID, hashed); err != nil {
			log.Printf("パスワード更新に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		if err := s.queries.DeletePasswordChangeRequestsByUser(ctx, user.ID); err != nil {
			log.Printf("リセットリクエストの削除に失敗: %v", err)
		}

		if err := s.issueSession(c, identity{user: user}, ""); err != nil {
			log.Printf("セッション発行に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		s.recordEvent(ctx, user.UID, event.TypePasswordChanged, nil)
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	}
}

// changeEmailRequest はメールアドレス変更リクエスト。
type changeEmailRequest struct {
	// Email は新しいメールアドレス。
	Email string `json:"email" binding:"required,email"`
	// Password は現在のパスワード。
	Password string `json:"password" binding:"required"`
}

// handleChangeEmail はメールアドレス変更の確認トークンを払い出すハンドラを
// 返す。変更は/verify/:tokenで確認されるまで反映されない。
func (s *Server) handleChangeEmail() gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := s.requireIdentified(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		var req changeEmailRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "a valid email and the current password are required"})
			return
		}
		if !verifyPassword(ident.user.Password, req.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "please verify your current password"})
			return
		}

		ctx := c.Request.Context()
		if _, err := s.queries.GetUserByEmail(ctx, req.Email); err == nil {
			c.JSON(http.StatusForbidden, gin.H{
				"error": fmt.Sprintf("%s has already been registered", req.Email),
			})
			return
		}

		if err := s.queries.DeleteEmailChangeRequestsByUser(ctx, ident.user.ID); err != nil {
			log.Printf("既存の変更リクエストの削除に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		token := genToken(20)
		if err := s.queries.CreateEmailChangeRequest(ctx, token, ident.user.ID, req.Email); err != nil {
			log.Printf("変更リクエストの作成に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		log.Printf("メールアドレス確認用URL: /verify/%s (new_email=%s)", token, req.Email)

		c.JSON(http.StatusOK, gin.H{"message": "success"})
	}
}

// handleVerifyEmail は確認トークンを消費してメールアドレスを確定する
// ハンドラを返す。新規登録の確認とメールアドレス変更の確認の両方を兼ねる。
// 確認後はそのままログイン状態のセッションを発行する。
func (s *Server) handleVerifyEmail() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token")

		ctx := c.Request.Context()
		request, err := s.queries.GetEmailChangeRequest(ctx, token)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no user associated with that verification token"})
			return
		}
		user, err := s.queries.GetUserByID(ctx, request.UserID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no user associated with that verification token"})
			return
		}

		changed := request.NewEmail != "" && request.NewEmail != user.Email
		if changed {
			if err := s.queries.UpdateEmail(ctx, user.UID, request.NewEmail); err != nil {
				log.Printf("メールアドレス更新に失敗: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
				return
			}
			user.Email = request.NewEmail
		}
		if err := s.queries.ConfirmUser(ctx, user.UID); err != nil {
			log.Printf("確認日時の更新に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		if err := s.queries.DeleteEmailChangeRequestsByUser(ctx, user.ID); err != nil {
			log.Printf("変更リクエストの削除に失敗: %v", err)
		}

		if err := s.issueSession(c, identity{user: user}, ""); err != nil {
			log.Printf("セッション発行に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		if changed {
			s.recordEvent(ctx, user.UID, event.TypeEmailChanged, nil)
		}
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	}
}
