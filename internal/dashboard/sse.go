package dashboard

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/JekaCAP/homework-assistant-bot/internal/models"
	"github.com/JekaCAP/homework-assistant-bot/internal/submission"
)

// queueEvent reports the review queue depth.
type queueEvent struct {
	Pending int64 `json:"pending"`
}

// handleSSE streams new submissions and queue-depth changes.
func handleSSE(db *gorm.DB, pollInterval time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		c.SSEvent("connected", gin.H{"type": "connected"})

		// Only submissions created after the client connected are pushed.
		var lastSeenID uint
		var latest models.Submission
		if err := db.Order("id DESC").Limit(1).Find(&latest).Error; err == nil {
			lastSeenID = latest.ID
		}
		pending, _ := submission.CountPending(db)
		c.SSEvent("queue", queueEvent{Pending: pending})
		c.Writer.Flush()

		ctx := c.Request.Context()
		ticker := time.NewTicker(pollInterval)
		heartbeat := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				c.SSEvent("heartbeat", gin.H{"timestamp": time.Now().UTC().Format(time.RFC3339)})
				c.Writer.Flush()
			case <-ticker.C:
				var fresh []models.Submission
				if err := db.Preload("Student").Preload("Assignment.Course").
					Where("id > ?", lastSeenID).Order("id ASC").
					Find(&fresh).Error; err != nil {
					continue
				}
				for i := range fresh {
					c.SSEvent("submission", toSubmissionView(&fresh[i]))
					lastSeenID = fresh[i].ID
				}
				if n, err := submission.CountPending(db); err == nil && n != pending {
					pending = n
					c.SSEvent("queue", queueEvent{Pending: pending})
				}
				c.Writer.Flush()
			}
		}
	}
}
