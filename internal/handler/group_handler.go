package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"yatube/internal/service"
)

type GroupHandler struct {
	svc      *service.GroupService
	loginURL string
}

type GroupCreateReq struct {
	Title       string `form:"title" json:"title"`
	Slug        string `form:"slug" json:"slug"`
	Description string `form:"description" json:"description"`
}

func NewGroupHandler(svc *service.GroupService, loginURL string) *GroupHandler {
	return &GroupHandler{svc: svc, loginURL: loginURL}
}

func (h *GroupHandler) Create(c *gin.Context) {
	var req GroupCreateReq
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid params"})
		return
	}

	group, err := h.svc.CreateGroup(c.Request.Context(), service.GroupInput{
		Title:       req.Title,
		Slug:        req.Slug,
		Description: req.Description,
	})
	if err != nil {
		renderError(c, h.loginURL, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"group": group})
}

func (h *GroupHandler) List(c *gin.Context) {
	list, err := h.svc.ListGroups(c.Request.Context())
	if err != nil {
		renderError(c, h.loginURL, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": list})
}

// Delete 仍有帖子时返回 409
func (h *GroupHandler) Delete(c *gin.Context) {
	if err := h.svc.DeleteGroup(c.Request.Context(), c.Param("slug")); err != nil {
		renderError(c, h.loginURL, err)
		return
	}
	c.Status(http.StatusNoContent)
}
