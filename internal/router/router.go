package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"yatube/internal/handler"
	"yatube/internal/middleware"
	"yatube/internal/service"
)

// Deps 路由需要的服务
type Deps struct {
	Feed     *service.FeedService
	Posts    *service.PostService
	Comments *service.CommentService
	Groups   *service.GroupService
	Follows  *service.FollowService
	Users    *service.UserService

	Log       *zap.Logger
	LoginURL  string
	MediaRoot string
	// CookieTTL access_token cookie 的有效期，与 access token 一致
	CookieTTL time.Duration
}

func InitRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logger(d.Log), middleware.Recovery(d.Log))
	r.Use(middleware.AuthMiddleware(d.Users))
	r.NoRoute(handler.NotFound)

	loginURL := d.LoginURL
	if loginURL == "" {
		loginURL = "/auth/login/"
	}
	loginRequired := middleware.LoginRequired(loginURL)

	post := handler.NewPostHandler(d.Feed, d.Posts, d.Groups, d.Follows, loginURL)
	comment := handler.NewCommentHandler(d.Comments, loginURL)
	follow := handler.NewFollowHandler(d.Follows, d.Feed, loginURL)
	group := handler.NewGroupHandler(d.Groups, loginURL)
	user := handler.NewUserHandler(d.Users, loginURL, d.CookieTTL)

	if d.MediaRoot != "" {
		r.Static("/media", d.MediaRoot)
	}

	// 账号相关接口
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/signup/", user.Register)
		authGroup.POST("/login/", user.Login)
		authGroup.POST("/token/refresh/", user.TokenRefresh)
		authGroup.POST("/logout/", loginRequired, user.Logout)
		authGroup.POST("/password_change/", loginRequired, user.ChangePassword)
	}

	// 管理接口
	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.AdminRequired())
	{
		adminGroup.GET("/groups/", group.List)
		adminGroup.POST("/groups/", group.Create)
		adminGroup.DELETE("/groups/:slug/", group.Delete)
		adminGroup.DELETE("/posts/:id/", post.DeletePost)
		adminGroup.DELETE("/users/:username/", user.DeleteUser)
	}

	// 帖子相关接口
	r.GET("/", post.Index)
	r.GET("/group/:slug/", post.GroupPosts)
	r.GET("/new/", loginRequired, post.NewPostForm)
	r.POST("/new/", loginRequired, post.CreatePost)
	r.GET("/follow/", loginRequired, follow.FollowIndex)

	// 用户主页下的接口
	profile := r.Group("/:username")
	{
		profile.GET("/", post.Profile)
		profile.GET("/follow/", loginRequired, follow.Follow)
		profile.GET("/unfollow/", loginRequired, follow.Unfollow)
		profile.GET("/followers/", follow.ListFollowers)
		profile.GET("/following/", follow.ListFollowings)
		profile.GET("/:post_id/", post.PostView)
		profile.GET("/:post_id/edit/", loginRequired, post.EditPostForm)
		profile.POST("/:post_id/edit/", loginRequired, post.EditPost)
		profile.POST("/:post_id/comment", loginRequired, comment.AddComment)
	}

	return r
}
