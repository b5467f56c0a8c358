package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"yatube/internal/middleware"
	"yatube/internal/pkg"
	"yatube/internal/service"
)

type paginatorView struct {
	Number      int   `json:"number"`
	NumPages    int   `json:"num_pages"`
	Count       int64 `json:"count"`
	HasPrevious bool  `json:"has_previous"`
	HasNext     bool  `json:"has_next"`
}

func pageView(p service.PostPage) gin.H {
	return gin.H{
		"page": p.Items,
		"paginator": paginatorView{
			Number:      p.Number,
			NumPages:    p.NumPages,
			Count:       p.Total,
			HasPrevious: p.HasPrevious,
			HasNext:     p.HasNext,
		},
	}
}

func pageParam(c *gin.Context) int {
	return pkg.ParsePage(c.Query("page"))
}

func postIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("post_id"), 10, 64)
	return id, err == nil
}

// renderError 按错误类型返回 400/401/404/409，或跳转登录页
func renderError(c *gin.Context, loginURL string, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"form": gin.H{"errors": verr.Fields}})
	case errors.Is(err, service.ErrNotFound):
		notFound(c)
	case errors.Is(err, service.ErrUnauthenticated):
		c.Redirect(http.StatusFound, middleware.LoginRedirect(loginURL, c.Request.URL.RequestURI()))
	case errors.Is(err, service.ErrReferentialIntegrity):
		c.JSON(http.StatusConflict, gin.H{"msg": err.Error()})
	case errors.Is(err, service.ErrPermission):
		c.JSON(http.StatusForbidden, gin.H{"msg": "forbidden"})
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrTokenRevoked),
		errors.Is(err, pkg.ErrRefreshInvalid),
		errors.Is(err, pkg.ErrRefreshExpired),
		errors.Is(err, pkg.ErrTokenInvalid),
		errors.Is(err, pkg.ErrTokenExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"msg": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "internal error"})
	}
}

// NotFound 404 页面
func NotFound(c *gin.Context) {
	notFound(c)
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"path": c.Request.URL.Path})
}

func profileURL(username string) string {
	return "/" + username + "/"
}

func postURL(username string, postID uint64) string {
	return "/" + username + "/" + strconv.FormatUint(postID, 10) + "/"
}
