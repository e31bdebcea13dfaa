package auth

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/shahnawazAlam3641/geekZone/internal/config"
	"github.com/shahnawazAlam3641/geekZone/internal/httpx"
	"github.com/shahnawazAlam3641/geekZone/internal/otp"
	"github.com/shahnawazAlam3641/geekZone/internal/utils"
)

type Service struct {
	DB        *sql.DB
	JWTSecret string
	JWTTTLMin int
	OTP       otp.Service
}

type registerReq struct {
	Username string `json:"username" binding:"required,min=3,max=30"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type verifyReq struct {
	Email string `json:"email" binding:"required,email"`
	OTP   string `json:"otp" binding:"required"`
}

type loginReq struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func RegisterPublic(rg *gin.RouterGroup, db *sql.DB, cfg config.Config, mail otp.Sender) {
	s := Service{
		DB:        db,
		JWTSecret: cfg.JWTSecret,
		JWTTTLMin: cfg.JWTTTLMin,
		OTP: otp.Service{
			DB:     db,
			Digits: cfg.OTPDigits,
			TTL:    time.Duration(cfg.OTPTTLSec) * time.Second,
			Mail:   mail,
		},
	}

	rg.POST("/auth/register", s.register)
	rg.POST("/auth/verify", s.verify)
	rg.POST("/auth/login", s.login)
	rg.POST("/auth/logout", s.logout)
}

func RegisterProtected(rg *gin.RouterGroup, db *sql.DB) {
	s := Service{DB: db}
	rg.GET("/auth/me", s.me)
}

func (s Service) register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			httpx.Err(c, http.StatusBadRequest, utils.ValidationErr(validationErrors))
			return
		}
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}

	var count int
	_ = s.DB.QueryRow(`SELECT COUNT(1) FROM users WHERE username=? OR email=?`, req.Username, req.Email).Scan(&count)
	if count > 0 {
		httpx.Err(c, http.StatusConflict, "username or email already exists")
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "registration failed")
		return
	}

	id := uuid.NewString()
	_, err = s.DB.Exec(
		`INSERT INTO users (id, username, email, password_hash) VALUES (?, ?, ?, ?)`,
		id, req.Username, req.Email, hash)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "registration failed")
		return
	}

	if _, err := s.OTP.Generate(req.Email, "signup"); err != nil {
		slog.Error("otp send failed", "email", req.Email, "err", err)
		// Account exists; the client can request a resend.
	}

	httpx.OK(c, gin.H{"user_id": id, "message": "verification code sent"})
}

func (s Service) verify(c *gin.Context) {
	var req verifyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			httpx.Err(c, http.StatusBadRequest, utils.ValidationErr(validationErrors))
			return
		}
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}

	ok, err := s.OTP.Verify(req.Email, "signup", req.OTP)
	if err != nil || !ok {
		httpx.Err(c, http.StatusUnauthorized, "invalid otp")
		return
	}

	if _, err := s.DB.Exec(`UPDATE users SET is_verified=1 WHERE email=?`, req.Email); err != nil {
		httpx.Err(c, http.StatusInternalServerError, "verification failed")
		return
	}
	httpx.OK(c, gin.H{"message": "account verified"})
}

func (s Service) login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			httpx.Err(c, http.StatusBadRequest, utils.ValidationErr(validationErrors))
			return
		}
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}

	var (
		id, username, hash string
		verified           bool
	)
	err := s.DB.QueryRow(
		`SELECT id, username, password_hash, is_verified FROM users WHERE email=?`,
		req.Email).Scan(&id, &username, &hash, &verified)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !CheckPassword(hash, req.Password)) {
		httpx.Err(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "login failed")
		return
	}

	token, err := NewToken(s.JWTSecret, id, s.JWTTTLMin)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "login failed")
		return
	}

	// Cookie for the browser client, token in the body for everything else.
	c.SetCookie(CookieName, token, s.JWTTTLMin*60, "/", "", false, true)
	httpx.OK(c, gin.H{
		"token": token,
		"user": gin.H{
			"id":          id,
			"username":    username,
			"email":       req.Email,
			"is_verified": verified,
		},
	})
}

func (s Service) logout(c *gin.Context) {
	c.SetCookie(CookieName, "", -1, "/", "", false, true)
	httpx.OK(c, gin.H{"message": "logged out"})
}

func (s Service) me(c *gin.Context) {
	uid := MustUserID(c)
	if uid == "" {
		httpx.Err(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	row := s.DB.QueryRow(
		`SELECT id, username, email, COALESCE(profile_picture, ''), COALESCE(bio, ''), is_verified, created_at
		 FROM users WHERE id=?`, uid)

	var (
		id, username, email, pic, bio string
		verified                      bool
		created                       time.Time
	)
	if err := row.Scan(&id, &username, &email, &pic, &bio, &verified, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httpx.Err(c, http.StatusNotFound, "user not found")
		} else {
			slog.Error("me lookup failed", "user", uid, "err", err)
			httpx.Err(c, http.StatusInternalServerError, "database error")
		}
		return
	}

	httpx.OK(c, gin.H{
		"id":              id,
		"username":        username,
		"email":           email,
		"profile_picture": pic,
		"bio":             bio,
		"is_verified":     verified,
		"created_at":      created.UTC().Format(time.RFC3339),
	})
}
