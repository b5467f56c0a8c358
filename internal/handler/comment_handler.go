package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"yatube/internal/middleware"
	"yatube/internal/service"
)

type CommentHandler struct {
	svc      *service.CommentService
	loginURL string
}

type commentForm struct {
	Text string `form:"text" json:"text"`
}

func NewCommentHandler(svc *service.CommentService, loginURL string) *CommentHandler {
	return &CommentHandler{svc: svc, loginURL: loginURL}
}

// AddComment 评论作者是当前登录用户，成功后跳转到帖子详情
func (h *CommentHandler) AddComment(c *gin.Context) {
	username := c.Param("username")
	postID, ok := postIDParam(c)
	if !ok {
		notFound(c)
		return
	}
	var f commentForm
	if err := c.ShouldBind(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid params"})
		return
	}
	if _, err := h.svc.AddComment(c.Request.Context(), middleware.UserID(c), username, postID, f.Text); err != nil {
		renderError(c, h.loginURL, err)
		return
	}
	c.Redirect(http.StatusFound, postURL(username, postID))
}
