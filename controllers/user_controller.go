package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/otabeknarz/11tutors-backend/config"
	"github.com/otabeknarz/11tutors-backend/middleware"
	"github.com/otabeknarz/11tutors-backend/services"
	"github.com/otabeknarz/11tutors-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo?alt=json"

// NewGoogleOAuth - nil, если Google вход не настроен
func NewGoogleOAuth(cfg *config.Config) *oauth2.Config {
	if cfg.GoogleClientID == "" {
		return nil
	}
	return &oauth2.Config{
		RedirectURL:  cfg.GoogleRedirect,
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleSecret,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}
}

type googleUserInfo struct {
	Id    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type UserController struct {
	users       *services.UserService
	RDB         *redis.Client
	oauth       *oauth2.Config
	userInfoURL string
}

func NewUserController(users *services.UserService, rdb *redis.Client, oauth *oauth2.Config) *UserController {
	return &UserController{users: users, RDB: rdb, oauth: oauth, userInfoURL: googleUserInfoURL}
}

// POST /api/auth/users
func (uc *UserController) Register(c *gin.Context) {
	var req services.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный запрос", "details": err.Error()})
		return
	}
	user, err := uc.users.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Register")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Письмо для подтверждения отправлено на " + user.Email,
		"data":    user,
	})
}

// GET /api/auth/verify-email?token=
func (uc *UserController) VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token обязателен"})
		return
	}
	user, err := uc.users.VerifyEmail(c.Request.Context(), token)
	if err != nil {
		respondError(c, err, "VerifyEmail")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Email подтвержден", "data": user})
}

// POST /api/auth/verify-email/resend
func (uc *UserController) ResendVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email обязателен"})
		return
	}
	if err := uc.users.ResendVerification(c.Request.Context(), req.Email); err != nil {
		respondError(c, err, "ResendVerification")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Письмо отправлено"})
}

// POST /api/auth/token
func (uc *UserController) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный запрос", "details": err.Error()})
		return
	}
	tokens, err := uc.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err, "Login")
		return
	}
	c.JSON(http.StatusOK, tokens)
}

// POST /api/auth/token/refresh
func (uc *UserController) Refresh(c *gin.Context) {
	var req struct {
		Refresh string `json:"refresh" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh обязателен"})
		return
	}
	tokens, err := uc.users.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		respondError(c, err, "Refresh")
		return
	}
	c.JSON(http.StatusOK, tokens)
}

// GET /api/auth/me
func (uc *UserController) Me(c *gin.Context) {
	user, err := uc.users.Get(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		respondError(c, err, "Me")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": user})
}

// POST /api/auth/logout - refresh токен в теле необязателен
func (uc *UserController) Logout(c *gin.Context) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	_ = c.ShouldBindJSON(&req)
	access, _ := middleware.BearerToken(c)
	if err := uc.users.Logout(c.Request.Context(), access, req.Refresh); err != nil {
		respondError(c, err, "Logout")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Вы вышли из системы"})
}

func oauthStateKey(state string) string {
	return "oauth:google:state:" + state
}

// GET /api/auth/google
func (uc *UserController) GoogleLogin(c *gin.Context) {
	if uc.oauth == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google вход не настроен"})
		return
	}
	state, err := utils.GenerateSessionID()
	if err != nil {
		respondError(c, err, "GoogleLogin")
		return
	}
	if uc.RDB != nil {
		uc.RDB.Set(c.Request.Context(), oauthStateKey(state), 1, 10*time.Minute)
	}
	c.Redirect(http.StatusFound, uc.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline))
}

// GET /api/auth/google/callback
func (uc *UserController) GoogleCallback(c *gin.Context) {
	if uc.oauth == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google вход не настроен"})
		return
	}
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code not found"})
		return
	}
	ctx := c.Request.Context()
	if uc.RDB != nil {
		n, err := uc.RDB.Del(ctx, oauthStateKey(c.Query("state"))).Result()
		if err != nil || n == 0 {
			utils.LogSecurity("google oauth: unknown state", c.ClientIP(), err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
			return
		}
	}

	info, err := uc.fetchGoogleUser(ctx, code)
	if err != nil {
		utils.LogError(err, "GoogleCallback")
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to get user info", "details": err.Error()})
		return
	}

	tokens, user, err := uc.users.GoogleLogin(ctx, info.Id, info.Email, info.Name)
	if err != nil {
		respondError(c, err, "GoogleCallback")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access":             tokens.Access,
		"refresh":            tokens.Refresh,
		"refresh_expires_at": tokens.RefreshExpiry,
		"user":               user,
	})
}

func (uc *UserController) fetchGoogleUser(ctx context.Context, code string) (*googleUserInfo, error) {
	token, err := uc.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	resp, err := uc.oauth.Client(ctx, token).Get(uc.userInfoURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}
	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	return &info, nil
}

// POST /api/auth/onboarding
func (uc *UserController) SaveOnboarding(c *gin.Context) {
	var req struct {
		UniversityID *uint `json:"university_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный запрос", "details": err.Error()})
		return
	}
	answer, err := uc.users.SaveOnboarding(c.Request.Context(), c.GetString("user_id"), req.UniversityID)
	if err != nil {
		respondError(c, err, "SaveOnboarding")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": answer})
}

// GET /api/auth/onboarding
func (uc *UserController) ListOnboarding(c *gin.Context) {
	answers, err := uc.users.ListOnboarding(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		respondError(c, err, "ListOnboarding")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": answers})
}
