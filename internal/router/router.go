package router

import (
	"huixiang/internal/handlers"
	"huixiang/internal/middleware"
	"huixiang/internal/services"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 挂载全部路由。调用前需要已经挂好 sessions 中间件。
func RegisterRoutes(r *gin.Engine, svc *services.Services) {
	// Handlers
	authHandler := handlers.NewAuthHandler(svc)
	guestbookHandler := handlers.NewGuestbookHandler(svc)
	voteHandler := handlers.NewVoteHandler(svc)
	announcementHandler := handlers.NewAnnouncementHandler(svc)
	feedbackHandler := handlers.NewFeedbackHandler(svc)
	chatHandler := handlers.NewChatHandler(svc)
	notificationHandler := handlers.NewNotificationHandler(svc)
	adminHandler := handlers.NewAdminHandler(svc)

	r.Use(middleware.LoadIdentity(svc.Identity))

	// 账号
	auth := r.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/logout", authHandler.Logout)
		auth.GET("/google/login", authHandler.GoogleLogin)
		auth.GET("/google/callback", authHandler.GoogleCallback)
	}

	api := r.Group("/api")

	// 公共路由，身份可选
	api.GET("/me", notificationHandler.Me)
	api.GET("/guestbook", guestbookHandler.List)                // 留言列表
	api.GET("/guestbook/reactions", guestbookHandler.Reactions) // 批量读取点赞统计
	api.GET("/guestbook/:id", guestbookHandler.Detail)          // 留言详情，可带评论
	api.GET("/announcements", announcementHandler.List)         // 公告列表
	api.GET("/announcements/reactions", announcementHandler.Reactions)
	api.POST("/feedback", feedbackHandler.Submit) // 站点反馈，按 IP 限流

	// 需要身份（登录用户或访客 key）
	identified := api.Group("")
	identified.Use(middleware.IdentityRequired())
	{
		identified.GET("/me/posts", notificationHandler.Posts)
		identified.GET("/me/notifications", notificationHandler.List)

		identified.POST("/guestbook", guestbookHandler.Create)
		identified.DELETE("/guestbook/:id", guestbookHandler.Delete)
		identified.PUT("/guestbook/:id/reaction", voteHandler.Set)
		identified.DELETE("/guestbook/:id/reaction", voteHandler.Clear)
		identified.POST("/guestbook/react", voteHandler.Legacy) // 旧版 1/-1/0 接口

		identified.POST("/announcements/reactions", announcementHandler.React)

		identified.GET("/chat/sessions", chatHandler.Sessions)
		identified.GET("/chat/sessions/:id/messages", chatHandler.History)
		identified.POST("/chat/messages", chatHandler.Append)
	}

	// 需要登录
	authorized := api.Group("")
	authorized.Use(middleware.AuthRequired())
	{
		authorized.PATCH("/me/profile", notificationHandler.UpdateProfile)
	}

	// 管理员
	admin := api.Group("")
	admin.Use(middleware.AdminRequired())
	{
		admin.POST("/guestbook/:id/restore", guestbookHandler.Restore)
		admin.POST("/announcements", announcementHandler.Create)

		admin.GET("/admin/posts", adminHandler.ListPosts)
		admin.PATCH("/admin/posts", adminHandler.SetDeleted)
		admin.GET("/admin/posts/:id", adminHandler.GetPost)
		admin.GET("/admin/users", adminHandler.ListUsers)
		admin.POST("/admin/stats/refresh", adminHandler.RefreshStats)
		admin.GET("/admin/feedback", adminHandler.ListContact)
		admin.GET("/admin/chats", adminHandler.ListChats)
		admin.GET("/admin/chats/:id", adminHandler.GetChat)
	}
}
