package gateway

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/gatekeeper/internal/gateway/db"
	"github.com/nao1215/gatekeeper/pkg/event"
)

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	// Email はメールアドレス。
	Email string `json:"email" binding:"required,email"`
	// Password はパスワード。
	Password string `json:"password" binding:"required"`
}

// handleLogin はメールアドレスとパスワードでログインするハンドラを返す。
//
// どのフィールドが誤っていたかを漏らさないため、未知のメールアドレスと
// パスワード不一致は同一のメッセージで拒否する。ログインメタデータの
// 更新は参照と同じトランザクションで行う。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "email and password are required"})
			return
		}

		ctx := c.Request.Context()
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			log.Printf("トランザクション開始に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
			return
		}
		defer tx.Rollback() //nolint:errcheck

		q := s.queries.WithTx(tx)
		user, err := q.GetUserByEmail(ctx, req.Email)
		if err != nil || !verifyPassword(user.Password, req.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid username or password"})
			return
		}
		if !user.ConfirmedAt.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "The account has not been verified"})
			return
		}

		if err := q.UpdateLoginInfo(ctx, user.UID); err != nil {
			log.Printf("ログイン情報の更新に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
			return
		}
		if err := tx.Commit(); err != nil {
			log.Printf("トランザクションのコミットに失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
			return
		}

		if err := s.issueSession(c, identity{user: user}, ""); err != nil {
			log.Printf("セッション発行に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
			return
		}

		s.recordEvent(ctx, user.UID, event.TypeLoginSucceeded, event.LoginData{Email: user.Email})
		c.JSON(http.StatusOK, gin.H{"message": "Successfully logged in"})
	}
}

// handleLogout は現在のセッションを破棄するハンドラを返す。
// セッションの有無にかかわらず常に200を返す。
func (s *Server) handleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		if ident, _, ok := s.currentIdentity(c); ok && !ident.anonymous {
			s.recordEvent(c.Request.Context(), ident.user.UID, event.TypeLoggedOut, nil)
		}
		s.clearSession(c)
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	}
}

// registerRequest はユーザー登録リクエストのJSON構造。
type registerRequest struct {
	// Email はメールアドレス。
	Email string `json:"email" binding:"required,email"`
	// Password1 はパスワード。
	Password1 string `json:"password1" binding:"required"`
	// Password2 は確認用パスワード。Password1と一致しなければならない。
	Password2 string `json:"password2" binding:"required"`
	// GivenName は名。省略可能。
	GivenName string `json:"given_name"`
	// FamilyName は姓。省略可能。
	FamilyName string `json:"family_name"`
}

// handleRegister は新規ユーザーを登録するハンドラを返す。
// メールアドレスが登録済みの場合は409を返す。確認メールの送信は
// 外部の責務のため、確認用URLをログに出力するに留める。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "a valid email and two matching passwords are required"})
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

		ctx := c.Request.Context()
		if _, err := s.queries.GetUserByEmail(ctx, req.Email); err == nil {
			c.JSON(http.StatusConflict, gin.H{
				"error": fmt.Sprintf("An account is already registered for %s", req.Email),
			})
			return
		} else if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("ユーザー参照に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		hashed, err := hashPassword(req.Password1)
		if err != nil {
			log.Printf("パスワードハッシュ化に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		user, err := s.queries.CreateUser(ctx, db.CreateUserParams{
			UID:        uuid.New().String(),
			Email:      req.Email,
			Password:   hashed,
			GivenName:  req.GivenName,
			FamilyName: req.FamilyName,
		})
		if err != nil {
			if db.IsUniqueViolation(err) {
				c.JSON(http.StatusConflict, gin.H{
					"error": fmt.Sprintf("An account is already registered for %s", req.Email),
				})
				return
			}
			log.Printf("ユーザー作成に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		// メール確認用のワンタイムトークンを払い出す。
		// 配送は外部コラボレータの責務なのでURLをログに残すだけにする。
		token := genToken(20)
		if err := s.queries.CreateEmailChangeRequest(ctx, token, user.ID, user.Email); err != nil {
			log.Printf("確認トークンの作成に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		log.Printf("確認用URL: /verify/%s (email=%s)", token, user.Email)

		s.recordEvent(ctx, user.UID, event.TypeUserRegistered, event.RegisteredData{Email: user.Email})
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	}
}

// handleCSRF はCSRFトークンを払い出すハンドラを返す。
func (s *Server) handleCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := genToken(16)
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie("csrf_token", token, 3600, "/", "", false, false)
		c.JSON(http.StatusOK, gin.H{"csrf": token})
	}
}

// handleStatus はヘルスチェック用エンドポイントのハンドラを返す。
func (s *Server) handleStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"app": s.cfg.appName, "status": "online"})
	}
}

// validatePassword はパスワードの強度要件を検査する。
// 8文字以上で、大文字と数字をそれぞれ1つ以上含まなければならない。
func validatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("Password must be at least 8 characters long")
	}

	var hasUpper, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasDigit {
		return errors.New("Password must contain at least one uppercase letter and one digit")
	}
	return nil
}

// hashPassword はパスワードをbcryptでハッシュ化する。
func hashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}

// verifyPassword はパスワードをハッシュと照合する。
// 匿名ブートストラップユーザーのように空ハッシュを持つレコードは
// 常に照合に失敗する。
func verifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
