package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"yatube/internal/middleware"
	"yatube/internal/model"
	"yatube/internal/service"
)

type PostHandler struct {
	feed     *service.FeedService
	posts    *service.PostService
	groups   *service.GroupService
	follows  *service.FollowService
	loginURL string
}

// postForm 新建/编辑帖子表单，image 通过 multipart 上传
type postForm struct {
	Text       string `form:"text" json:"text"`
	Group      string `form:"group" json:"group"`
	ClearImage bool   `form:"image-clear" json:"image_clear"`
}

func NewPostHandler(feed *service.FeedService, posts *service.PostService, groups *service.GroupService, follows *service.FollowService, loginURL string) *PostHandler {
	return &PostHandler{
		feed:     feed,
		posts:    posts,
		groups:   groups,
		follows:  follows,
		loginURL: loginURL,
	}
}

// Index 首页
func (h *PostHandler) Index(c *gin.Context) {
	page, err := h.feed.Index(c.Request.Context(), pageParam(c))
	if err != nil {
		renderError(c, h.loginURL, err)
		return
	}
	c.JSON(http.StatusOK, pageView(page))
}

// GroupPosts 社区帖子列表
func (h *PostHandler) GroupPosts(c *gin.Context) {
	group, page, err := h.feed.Group(c.Request.Context(), c.Param("slug"), pageParam(c))
	if err != nil {
		renderError(c, h.loginURL, err)
		return
	}
	view := pageView(page)
	view["group"] = group
	c.JSON(http.StatusOK, view)
}

// Profile 用户主页
func (h *PostHandler) Profile(c *gin.Context) {
	ctx := c.Request.Context()
	author, page, err := h.feed.Profile(ctx, c.Param("username"), pageParam(c))
	if err != nil {
		renderError(c, h.loginURL, err)
		return
	}
	following, err := h.follows.IsFollowing(ctx, middleware.UserID(c), author.ID)
	if err != nil {
		renderError(c, h.loginURL, err)
		return
	}
	view := pageView(page)
	view["author"] = author
	view["posts_count"] = page.Total
	view["follower_count"] = author.FollowerCount
	view["following_count"] = author.FollowingCount
	view["following"] = following
	c.JSON(http.StatusOK, view)
}

// PostView 帖子详情与评论
func (h *PostHandler) PostView(c *gin.Context) {
	postID, ok := postIDParam(c)
	if !ok {
		notFound(c)
		return
	}
	post, comments, err := h.posts.PostWithComments(c.Request.Context(), c.Param("username"), postID)
	if err != nil {
		renderError(c, h.loginURL, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"post":     post,
		"author":   post.Author,
		"comments": comments,
		"form":     gin.H{"fields": []string{"text"}},
	})
}

// NewPostForm 新建帖子表单
func (h *PostHandler) NewPostForm(c *gin.Context) {
	h.renderForm(c, http.StatusOK, nil, nil)
}

// CreatePost 新建帖子，成功后跳转到首页
func (h *PostHandler) CreatePost(c *gin.Context) {
	id := middleware.Identity(c)
	in, err := bindPostForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid params"})
		return
	}
	defer closeImage(in)
	if _, err = h.posts.CreatePost(c.Request.Context(), id.ID, in); err != nil {
		h.renderPostError(c, nil, err)
		return
	}
	c.Redirect(http.StatusFound, "/")
}

// EditPostForm 编辑表单，非作者跳转到帖子详情
func (h *PostHandler) EditPostForm(c *gin.Context) {
	username := c.Param("username")
	postID, ok := postIDParam(c)
	if !ok {
		notFound(c)
		return
	}
	post, err := h.posts.GetPost(c.Request.Context(), username, postID)
	if err != nil {
		renderError(c, h.loginURL, err)
		return
	}
	if post.AuthorID != middleware.UserID(c) {
		c.Redirect(http.StatusFound, postURL(username, postID))
		return
	}
	h.renderForm(c, http.StatusOK, post, nil)
}

// EditPost 编辑帖子，pub_date 不变
func (h *PostHandler) EditPost(c *gin.Context) {
	username := c.Param("username")
	postID, ok := postIDParam(c)
	if !ok {
		notFound(c)
		return
	}
	in, err := bindPostForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid params"})
		return
	}
	defer closeImage(in)
	post, err := h.posts.UpdatePost(c.Request.Context(), middleware.UserID(c), username, postID, in)
	if err != nil {
		if errors.Is(err, service.ErrPermission) {
			c.Redirect(http.StatusFound, postURL(username, postID))
			return
		}
		h.renderPostError(c, post, err)
		return
	}
	c.Redirect(http.StatusFound, postURL(username, postID))
}

// DeletePost 管理员删除帖子
func (h *PostHandler) DeletePost(c *gin.Context) {
	postID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		notFound(c)
		return
	}
	if err = h.posts.DeletePost(c.Request.Context(), postID); err != nil {
		renderError(c, h.loginURL, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PostHandler) renderPostError(c *gin.Context, post *model.Post, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		h.renderForm(c, http.StatusBadRequest, post, verr.Fields)
		return
	}
	renderError(c, h.loginURL, err)
}

func (h *PostHandler) renderForm(c *gin.Context, status int, post *model.Post, errs map[string]string) {
	groups, err := h.groups.ListGroups(c.Request.Context())
	if err != nil {
		renderError(c, h.loginURL, err)
		return
	}
	form := gin.H{"groups": groups}
	if errs != nil {
		form["errors"] = errs
	}
	view := gin.H{"form": form, "is_edit": post != nil}
	if post != nil {
		view["post"] = post
	}
	c.JSON(status, view)
}

// bindPostForm 解析表单；group 不是数字时按不存在的社区处理
func bindPostForm(c *gin.Context) (service.PostInput, error) {
	var f postForm
	if err := c.ShouldBind(&f); err != nil {
		return service.PostInput{}, err
	}
	in := service.PostInput{Text: f.Text, ClearImage: f.ClearImage}
	if f.Group != "" {
		id, _ := strconv.ParseUint(f.Group, 10, 64)
		in.GroupID = &id
	}

	fh, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return in, nil
		}
		return in, err
	}
	file, err := fh.Open()
	if err != nil {
		return in, err
	}
	in.Image = file
	return in, nil
}

func closeImage(in service.PostInput) {
	if cl, ok := in.Image.(io.Closer); ok {
		_ = cl.Close()
	}
}
