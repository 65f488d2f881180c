package controllers

import (
	"net/http"

	"traceback/middlewares"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initializeRoutes() {

	s.Router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": "traceback", "status": "ok"})
	})

	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.Router.Group("/api/v1")
	{
		// Install attribution routes (SDK + browser agent, API key required)
		private := v1.Group("", middlewares.APIKeyMiddleware(s.DB))
		{
			private.POST("/preinstall/save-link", s.PreInstallSaveLink)
			private.POST("/postinstall/search-link", s.PostInstallSearchLink)
		}

		// Campaign resolution (called by the installed app on open)
		v1.GET("/campaign", s.GetCampaign)

		// Campaign link management
		links := v1.Group("/links",
			middlewares.AdminRateLimitMiddleware(),
			middlewares.APIKeyMiddleware(s.DB),
		)
		{
			links.POST("", s.CreateDynamicLink)
			links.GET("", s.GetDynamicLinks)
			links.GET("/:id", s.GetDynamicLink)
			links.GET("/:id/analytics", s.GetDynamicLinkAnalytics)
			links.DELETE("/:id", s.DeleteDynamicLink)
		}
	}
}
