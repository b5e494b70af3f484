package controllers

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/vnkhanh/dating-server/pkg/errors"
	"github.com/vnkhanh/dating-server/realtime"
	"github.com/vnkhanh/dating-server/services"
)

const defaultHeartbeat = 25 * time.Second

// openFunc starts a live query that reports through fn.
type openFunc[T any] func(fn services.Snapshot[T]) (*realtime.Subscription, error)

// streamSnapshots relays every snapshot of a live query as a Server-Sent
// Event until the client goes away, then disposes of the subscription.
// A slow client only ever gets the newest snapshot.
func streamSnapshots[T any](c *gin.Context, event string, heartbeat time.Duration, open openFunc[T]) {
	updates := make(chan T, 1)
	failures := make(chan error, 1)

	sub, err := open(func(items T, err error) {
		if err != nil {
			select {
			case failures <- err:
			default:
			}
			return
		}
		for {
			select {
			case updates <- items:
				return
			default:
				select {
				case <-updates:
				default:
				}
			}
		}
	})
	if err != nil {
		respondError(c, err)
		return
	}
	defer sub.Close()

	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	sseHeaders(c)
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-sub.Done():
			return false
		case items := <-updates:
			c.SSEvent(event, items)
		case err := <-failures:
			c.SSEvent("error", gin.H{"message": apperrors.PublicMessage(err)})
		case <-ticker.C:
			_, _ = io.WriteString(w, ": ping\n\n")
		}
		return true
	})
}

func sseHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
}
