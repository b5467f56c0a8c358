package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"yatube/internal/middleware"
	"yatube/internal/service"
)

type FollowHandler struct {
	svc      *service.FollowService
	feed     *service.FeedService
	loginURL string
}

func NewFollowHandler(svc *service.FollowService, feed *service.FeedService, loginURL string) *FollowHandler {
	return &FollowHandler{svc: svc, feed: feed, loginURL: loginURL}
}

// FollowIndex 关注作者的帖子
func (h *FollowHandler) FollowIndex(c *gin.Context) {
	page, err := h.feed.Follow(c.Request.Context(), middleware.UserID(c), pageParam(c))
	if err != nil {
		renderError(c, h.loginURL, err)
		return
	}
	c.JSON(http.StatusOK, pageView(page))
}

// Follow 关注接口
func (h *FollowHandler) Follow(c *gin.Context) {
	username := c.Param("username")
	if _, err := h.svc.Follow(c.Request.Context(), middleware.UserID(c), username); err != nil {
		renderError(c, h.loginURL, err)
		return
	}
	c.Redirect(http.StatusFound, profileURL(username))
}

// Unfollow 取消关注，未关注时直接跳转
func (h *FollowHandler) Unfollow(c *gin.Context) {
	username := c.Param("username")
	if err := h.svc.Unfollow(c.Request.Context(), middleware.UserID(c), username); err != nil {
		renderError(c, h.loginURL, err)
		return
	}
	c.Redirect(http.StatusFound, profileURL(username))
}

// ListFollowings 获取关注者列表
func (h *FollowHandler) ListFollowings(c *gin.Context) {
	cursor, _ := strconv.ParseUint(c.Query("cursor"), 10, 64)
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, next, err := h.svc.ListFollowings(c.Request.Context(), c.Param("username"), cursor, limit)
	if err != nil {
		renderError(c, h.loginURL, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": rows, "next_cursor": next})
}

// ListFollowers 获取粉丝列表
func (h *FollowHandler) ListFollowers(c *gin.Context) {
	cursor, _ := strconv.ParseUint(c.Query("cursor"), 10, 64)
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, next, err := h.svc.ListFollowers(c.Request.Context(), c.Param("username"), cursor, limit)
	if err != nil {
		renderError(c, h.loginURL, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": rows, "next_cursor": next})
}
