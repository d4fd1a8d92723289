package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes mounts every endpoint. Visitor-scoped routes get the
// visitor cookie middleware; health and metrics do not.
func RegisterRoutes(router *gin.Engine, h *Handlers) {
	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	scoped := router.Group("/", h.visitors.Middleware(h.logger))

	onboarding := scoped.Group("/onboarding")
	onboarding.GET("/steps/:step", h.ViewStep)
	pages := onboarding.Group("/pages/:page")
	pages.POST("/input", h.StepInput)
	pages.POST("/fields", h.StepField)
	pages.POST("/submit", h.SubmitStep)
	pages.POST("/back", h.StepBack)
	pages.POST("/lifecycle", h.StepLifecycle)

	auth := scoped.Group("/auth")
	auth.GET("/login", h.ViewLogin)
	auth.GET("/session", h.Session)
	auth.POST("/logout", h.Logout)
	login := auth.Group("/pages/:page")
	login.POST("/input", h.LoginInput)
	login.POST("/fields", h.LoginField)
	login.POST("/submit", h.Login)
	login.POST("/lifecycle", h.LoginLifecycle)
	login.POST("/events", h.LoginInteraction)
}
