package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"ipad-status-backend/config"
	"ipad-status-backend/internal/mw"
	"ipad-status-backend/internal/store"
)

// NewRouter creates and configures a new Gin router. s may be nil, in which
// case only the live status routes are registered.
func NewRouter(cfg *config.Config, reader StatusReader, s store.Store, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(reader, cfg.Catalog.DeviceIDs, s, webpushOptions, cfg.Catalog.Location())

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)

	r.GET("/", GetIndex)

	// Legacy path kept for older front ends.
	r.GET("/data/", rateLimiter, handler.GetStatus)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/status", handler.GetStatus)
		api.GET("/devices", handler.GetDevices)

		if s != nil {
			api.GET("/devices/:id/history", handler.GetDeviceHistory)
			api.GET("/polls", handler.GetPolls)

			api.GET("/subscriptions", handler.GetSubscription)
			api.PUT("/subscriptions", handler.PutSubscription)
			api.DELETE("/subscriptions", handler.DeleteSubscription)
			api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
		}
	}

	return r
}
