package main

import (
	"huixiang/internal/config"
	"huixiang/internal/db"
	"huixiang/internal/logger"
	"huixiang/internal/router"
	"huixiang/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.For(nil).WithError(err).Fatal("load config")
	}
	logger.Configure(cfg.Log.Level, cfg.Log.Format)
	if cfg.AdminEmail == "" {
		logger.For(nil).Warn("ADMIN_EMAIL 未配置，管理功能不可用")
	}

	gin.SetMode(cfg.Server.Mode)

	gdb, err := db.Init(cfg.DatabaseURL)
	if err != nil {
		logger.For(nil).WithError(err).Fatal("init database")
	}

	svc := services.New(gdb, cfg)

	r := gin.New()
	// 不在列表里的对端发来的 X-Forwarded-For 一律忽略，限流按真实来源计数
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.For(nil).WithError(err).Fatal("invalid server.trusted_proxies")
	}
	r.Use(logger.Middleware(), gin.Recovery())

	// Setup Sessions
	store := cookie.NewStore([]byte(cfg.Session.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 30 * 24 * 3600, HttpOnly: true})
	r.Use(sessions.Sessions(cfg.Session.Name, store))

	router.RegisterRoutes(r, svc)

	logger.For(nil).WithField("port", cfg.Server.Port).Info("server starting")
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		logger.For(nil).WithError(err).Fatal("server stopped")
	}
}
