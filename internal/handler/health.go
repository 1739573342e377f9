package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/jlongo78/joe-ritchey-machining/internal/worker"
)

// BreakerReporter lists feed circuit breaker states by target.
type BreakerReporter interface {
	BreakerStates() map[string]string
}

// Health returns a JSON health check response.
// Checks DB and Redis connectivity; never exposes credentials or internals.
// Open feed breakers and dead-lettered jobs are reported but do not make the
// service unhealthy.
func Health(db *gorm.DB, rdb *redis.Client, feeds BreakerReporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		dbStatus := "connected"
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(ctx) != nil {
			dbStatus = "error"
		}

		redisStatus := "connected"
		if rdb.Ping(ctx).Err() != nil {
			redisStatus = "error"
		}

		status := http.StatusOK
		if dbStatus != "connected" || redisStatus != "connected" {
			status = http.StatusServiceUnavailable
		}

		openFeeds := []string{}
		if feeds != nil {
			for name, state := range feeds.BreakerStates() {
				if state != "closed" {
					openFeeds = append(openFeeds, name+":"+state)
				}
			}
		}

		body := gin.H{
			"ok":         status == http.StatusOK,
			"db":         dbStatus,
			"redis":      redisStatus,
			"open_feeds": openFeeds,
		}
		if redisStatus == "connected" {
			if dlq, err := worker.DLQLengths(ctx, rdb); err == nil {
				body["dead_letters"] = dlq
			}
		}
		c.JSON(status, body)
	}
}
