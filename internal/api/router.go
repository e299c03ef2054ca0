// Package api wires the HTTP routes and middleware.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nemf/photo-review/internal/config"
	"github.com/nemf/photo-review/internal/handlers"
	"github.com/nemf/photo-review/internal/logger"
	"github.com/nemf/photo-review/internal/users"
)

// NewRouter builds the gin engine with the full route table. Everything
// under /api and /images requires basic auth; /health does not.
func NewRouter(h *handlers.Handler, reg *users.Registry, cfg config.ServerConfig, log logger.Logger) *gin.Engine {
	router := gin.New()

	router.Use(RecoveryMiddleware(log))
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(cfg.CORSOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := router.Group("/", BasicAuth(reg))

	api := authed.Group("/api")
	api.GET("/whoami", h.Whoami)
	api.GET("/status", h.Status)
	api.GET("/images", h.ListImages)
	api.GET("/next-unreviewed", h.NextUnreviewed)

	image := api.Group("/image")
	image.GET("/:filename", h.GetImage)
	image.POST("/:filename/heartbeat", h.Heartbeat)
	image.POST("/:filename/release", h.Release)
	image.POST("/:filename/review", h.Review)

	api.GET("/navigation/:filename", h.Navigation)
	api.GET("/adjacent/:filename", h.Adjacent)
	api.POST("/link/:filename", h.Link)
	api.POST("/unlink/:filename", h.Unlink)

	lookup := api.Group("/lookup")
	lookup.GET("/location", h.LookupLocation)
	lookup.GET("/name", h.LookupName)
	lookup.GET("/foray_date", h.LookupForayDate)
	lookup.GET("/existing_observations", h.LookupExistingObservations)
	lookup.GET("/field_slip_observation", h.LookupFieldSlipObservation)

	api.GET("/verify_mo_id", h.VerifyMOID)

	api.GET("/settings", h.GetSettings)
	api.POST("/settings", h.UpdateSettings)

	mo := api.Group("/mo")
	mo.POST("/add_to_existing", h.MOAddToExisting)
	mo.POST("/create_new", h.MOCreateNew)

	authed.GET("/images/:filename", h.ServeImage)

	return router
}
