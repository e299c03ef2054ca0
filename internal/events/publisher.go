// Package events publishes review lifecycle events to Redis Streams.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nemf/photo-review/internal/logger"
)

// StreamName is the Redis stream review events are appended to.
const StreamName = "photo-review:events"

// asyncPublishTimeout is the context timeout for async publish operations.
const asyncPublishTimeout = 5 * time.Second

// EventType identifies what happened to an image.
type EventType string

const (
	// EventReviewFinalized fires when a reviewer records a terminal status.
	EventReviewFinalized EventType = "review.finalized"
	// EventImagesLinked fires when two images are joined into a group.
	EventImagesLinked EventType = "images.linked"
	// EventImagesUnlinked fires when an edge is removed.
	EventImagesUnlinked EventType = "images.unlinked"
	// EventUploadCompleted fires when an image lands on Mushroom Observer.
	EventUploadCompleted EventType = "upload.completed"
)

// ReviewEvent is the payload appended to the stream.
type ReviewEvent struct {
	EventID   uuid.UUID `json:"event_id"`
	EventType EventType `json:"event_type"`
	Image     string    `json:"image"`
	User      string    `json:"user"`
	Timestamp time.Time `json:"timestamp"`
	// Related carries linked or propagated image keys when relevant.
	Related []string `json:"related,omitempty"`
	// Status is set on review.finalized events.
	Status string `json:"status,omitempty"`
}

// Publisher publishes review events to Redis Streams. A nil Publisher is
// a valid no-op, so callers never need to guard the disabled case.
type Publisher struct {
	client *redis.Client
	log    logger.Logger
}

// NewPublisher creates a publisher. Returns nil if client is nil.
func NewPublisher(client *redis.Client, log logger.Logger) *Publisher {
	if client == nil {
		return nil
	}
	return &Publisher{client: client, log: log}
}

// Publish appends an event to the stream.
func (p *Publisher) Publish(ctx context.Context, event ReviewEvent) error {
	if p == nil || p.client == nil {
		return nil
	}

	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	result := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName,
		Values: map[string]any{
			"event": string(payload),
		},
	})
	if publishErr := result.Err(); publishErr != nil {
		if p.log != nil {
			p.log.Error("Failed to publish event",
				logger.String("event_type", string(event.EventType)),
				logger.String("image", event.Image),
				logger.Error(publishErr),
			)
		}
		return fmt.Errorf("publish to stream: %w", publishErr)
	}

	if p.log != nil {
		p.log.Debug("Published review event",
			logger.String("event_type", string(event.EventType)),
			logger.String("image", event.Image),
			logger.String("stream_id", result.Val()),
		)
	}
	return nil
}

// PublishAsync publishes an event without blocking the request path.
// Errors are logged but not returned.
func (p *Publisher) PublishAsync(event ReviewEvent) {
	if p == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncPublishTimeout)
		defer cancel()

		if err := p.Publish(ctx, event); err != nil && p.log != nil {
			p.log.Error("Async publish failed",
				logger.String("event_type", string(event.EventType)),
				logger.String("image", event.Image),
				logger.Error(err),
			)
		}
	}()
}
