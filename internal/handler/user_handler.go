package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"yatube/internal/middleware"
	"yatube/internal/service"
)

type UserHandler struct {
	svc       *service.UserService
	loginURL  string
	cookieTTL time.Duration
}

// RegisterReq 注册请求体
type RegisterReq struct {
	Username string `form:"username" json:"username"`
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

type LoginReq struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
	Next     string `form:"next" json:"next"`
}

type ChangePasswordReq struct {
	OldPassword string `form:"old_password" json:"old_password"`
	NewPassword string `form:"new_password" json:"new_password"`
}

func NewUserHandler(svc *service.UserService, loginURL string, cookieTTL time.Duration) *UserHandler {
	return &UserHandler{
		svc:       svc,
		loginURL:  loginURL,
		cookieTTL: cookieTTL,
	}
}

// Register 注册接口，成功后跳转登录页
func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterReq
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid params"})
		return
	}

	if _, err := h.svc.Register(c.Request.Context(), req.Username, req.Email, req.Password); err != nil {
		renderError(c, h.loginURL, err)
		return
	}

	c.Redirect(http.StatusFound, h.loginURL)
}

// Login 登录接口；带 next 时写 cookie 并跳转
func (h *UserHandler) Login(c *gin.Context) {
	var req LoginReq
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid params"})
		return
	}
	if req.Next == "" {
		req.Next = c.Query("next")
	}

	token, err := h.svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		renderError(c, h.loginURL, err)
		return
	}
	h.setTokenCookie(c, token.AccessToken)

	if safeNext(req.Next) {
		c.Redirect(http.StatusFound, req.Next)
		return
	}
	c.JSON(http.StatusOK, token)
}

func (h *UserHandler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), middleware.UserID(c)); err != nil {
		renderError(c, h.loginURL, err)
		return
	}
	h.setTokenCookie(c, "")
	c.JSON(http.StatusOK, gin.H{"msg": "ok"})
}

// TokenRefresh 利用refresh来更新access
func (h *UserHandler) TokenRefresh(c *gin.Context) {
	var req struct {
		RefreshToken string `form:"refresh_token" json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid params"})
		return
	}

	token, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		renderError(c, h.loginURL, err)
		return
	}
	h.setTokenCookie(c, token.AccessToken)
	c.JSON(http.StatusOK, token)
}

// ChangePassword 修改密码后需要重新登录
func (h *UserHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordReq
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid params"})
		return
	}

	if err := h.svc.ChangePassword(c.Request.Context(), middleware.UserID(c), req.OldPassword, req.NewPassword); err != nil {
		renderError(c, h.loginURL, err)
		return
	}
	h.setTokenCookie(c, "")
	c.JSON(http.StatusOK, gin.H{"msg": "change password successfully"})
}

// DeleteUser 管理员删除用户
func (h *UserHandler) DeleteUser(c *gin.Context) {
	if err := h.svc.DeleteUser(c.Request.Context(), c.Param("username")); err != nil {
		renderError(c, h.loginURL, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// setTokenCookie token 为空时清除 cookie
func (h *UserHandler) setTokenCookie(c *gin.Context, token string) {
	maxAge := int(h.cookieTTL / time.Second)
	if token == "" {
		maxAge = -1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, token, maxAge, "/", "", false, true)
}

// safeNext 只允许站内跳转
func safeNext(next string) bool {
	return strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") && !strings.HasPrefix(next, "/\\")
}

