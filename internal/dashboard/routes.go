package dashboard

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/JekaCAP/homework-assistant-bot/internal/apperr"
	"github.com/JekaCAP/homework-assistant-bot/internal/submission"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, db *gorm.DB, pollInterval time.Duration) {
	router.GET("/healthz", handleHealth(db))

	api := router.Group("/api")
	api.GET("/stats", handleStats(db))
	api.GET("/pending", handlePending(db))
	api.GET("/submissions/:id", handleSubmission(db))
	api.GET("/rating", handleRating(db))
	api.GET("/events", handleSSE(db, pollInterval))
}

func handleHealth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleStats(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := submission.CollectStats(db)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, toStatsView(st))
	}
}

func handlePending(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := queryLimit(c)
		if !ok {
			return
		}
		total, err := submission.CountPending(db)
		if err != nil {
			fail(c, err)
			return
		}
		subs, err := submission.Pending(db, limit)
		if err != nil {
			fail(c, err)
			return
		}
		items := make([]SubmissionView, len(subs))
		for i := range subs {
			items[i] = toSubmissionView(&subs[i])
		}
		c.JSON(http.StatusOK, gin.H{"total": total, "items": items})
	}
}

func handleSubmission(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil || id == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid submission id"})
			return
		}
		sub, err := submission.Load(db, uint(id))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, toSubmissionView(sub))
	}
}

func handleRating(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := queryLimit(c)
		if !ok {
			return
		}
		order := submission.ByScore
		switch c.DefaultQuery("order", "score") {
		case "score":
		case "submissions":
			order = submission.BySubmissions
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "order must be score or submissions"})
			return
		}
		var courseID uint64
		if v := c.Query("course"); v != "" {
			var err error
			if courseID, err = strconv.ParseUint(v, 10, 64); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
				return
			}
		}
		rows, err := submission.Rating(db, order, uint(courseID), limit)
		if err != nil {
			fail(c, err)
			return
		}
		items := make([]RatingView, len(rows))
		for i, r := range rows {
			items[i] = toRatingView(i+1, r)
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

// queryLimit parses ?limit=, writing a 400 on bad input.
func queryLimit(c *gin.Context) (int, bool) {
	v := c.Query("limit")
	if v == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, true
}

func fail(c *gin.Context, err error) {
	if apperr.IsNotFound(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
