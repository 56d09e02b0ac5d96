package v1

import (
	"proxyman/api/v1/auth"
	"proxyman/api/v1/certificates"
	"proxyman/api/v1/middleware"
	"proxyman/api/v1/proxyhosts"
	"proxyman/internal/certstore"
	"proxyman/internal/certsvc"
	"proxyman/internal/config"
	"proxyman/internal/httpx"
	"proxyman/internal/nginx"
	"proxyman/internal/scheduler"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRouter sets up the API v1 routes
func SetupRouter(r *gin.Engine, db *gorm.DB, cfg *config.Config,
	svc *certsvc.Service, sched *scheduler.Scheduler,
	sync *nginx.Sync, store *certstore.Store) {
	v1 := r.Group("/api/v1")
	{
		// Public routes (no authentication required)
		v1.GET("/ping", pingHandler)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", auth.LoginHandler(db, cfg))
		}

		// Protected routes (authentication required)
		protected := v1.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/me", meHandler)

			hostsHandler := proxyhosts.NewHandler(db, sync, store)
			hostsGroup := protected.Group("/proxy-hosts")
			{
				hostsGroup.GET("", hostsHandler.List)
				hostsGroup.GET("/:id", hostsHandler.Get)
				hostsGroup.POST("/create", hostsHandler.Create)
				hostsGroup.POST("/update", hostsHandler.Update)
				hostsGroup.POST("/delete", hostsHandler.Delete)
			}

			certsHandler := certificates.NewHandler(db, svc, sched)
			hostsGroup.GET("/:id/ssl-status", certsHandler.SSLStatus)
			certsGroup := protected.Group("/certificates")
			{
				certsGroup.GET("", certsHandler.List)
				certsGroup.POST("/request", certsHandler.Request)
				certsGroup.POST("/renew", certsHandler.Renew)
				certsGroup.POST("/revoke", certsHandler.Revoke)
				certsGroup.POST("/delete", certsHandler.Delete)
				certsGroup.GET("/expiring", certsHandler.Expiring)
				certsGroup.GET("/renewal-stats", certsHandler.RenewalStats)
				certsGroup.POST("/force-renewal-check", certsHandler.ForceRenewalCheck)
			}
		}
	}
}

// pingHandler handles the ping request using unified response
func pingHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"pong": true,
	})
}

// meHandler returns current user information
func meHandler(c *gin.Context) {
	uid, _ := c.Get("uid")
	username, _ := c.Get("username")
	role, _ := c.Get("role")

	httpx.OK(c, gin.H{
		"uid":      uid,
		"username": username,
		"role":     role,
	})
}
