// Package sse implements Server-Sent Events for pushing tag and capture
// changes to connected clients.
package sse

import (
	"time"

	"github.com/tangleapp/tangle-server/internal/domain"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventTagCreated represents a tag creation event.
	EventTagCreated EventType = "tag.created"
	// EventTagUpdated represents a tag rename, recolor or move event.
	EventTagUpdated EventType = "tag.updated"
	// EventTagDeleted represents a tag deletion event.
	EventTagDeleted EventType = "tag.deleted"

	// EventCaptureCreated represents a capture creation event.
	EventCaptureCreated EventType = "capture.created"
	// EventCaptureUpdated represents a capture update event.
	EventCaptureUpdated EventType = "capture.updated"
	// EventCaptureDeleted represents a capture deletion event.
	EventCaptureDeleted EventType = "capture.deleted"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// When set, the event is only delivered to clients of this user.
	// Empty string means "broadcast to all".
	UserID string `json:"-"`
}

// TagEventData is the data payload for tag events.
type TagEventData struct {
	Tag *domain.Tag `json:"tag"`
}

// TagDeletedEventData is the data payload for tag delete events.
type TagDeletedEventData struct {
	DeletedAt time.Time `json:"deleted_at"`
	TagID     string    `json:"tag_id"`
}

// CaptureEventData is the data payload for capture events.
type CaptureEventData struct {
	Capture *domain.Capture `json:"capture"`
}

// CaptureDeletedEventData is the data payload for capture delete events.
type CaptureDeletedEventData struct {
	DeletedAt time.Time `json:"deleted_at"`
	CaptureID string    `json:"capture_id"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewTagCreatedEvent creates a tag created event scoped to the tag's owner.
func NewTagCreatedEvent(tag *domain.Tag) Event {
	return Event{
		Type:      EventTagCreated,
		Timestamp: time.Now(),
		UserID:    tag.OwnerID,
		Data:      TagEventData{Tag: tag},
	}
}

// NewTagUpdatedEvent creates a tag updated event scoped to the tag's owner.
func NewTagUpdatedEvent(tag *domain.Tag) Event {
	return Event{
		Type:      EventTagUpdated,
		Timestamp: time.Now(),
		UserID:    tag.OwnerID,
		Data:      TagEventData{Tag: tag},
	}
}

// NewTagDeletedEvent creates a tag deleted event scoped to the owner.
func NewTagDeletedEvent(ownerID, tagID string) Event {
	now := time.Now()
	return Event{
		Type:      EventTagDeleted,
		Timestamp: now,
		UserID:    ownerID,
		Data:      TagDeletedEventData{TagID: tagID, DeletedAt: now},
	}
}

// NewCaptureCreatedEvent creates a capture created event scoped to the owner.
func NewCaptureCreatedEvent(capture *domain.Capture) Event {
	return Event{
		Type:      EventCaptureCreated,
		Timestamp: time.Now(),
		UserID:    capture.OwnerID,
		Data:      CaptureEventData{Capture: capture},
	}
}

// NewCaptureUpdatedEvent creates a capture updated event scoped to the owner.
func NewCaptureUpdatedEvent(capture *domain.Capture) Event {
	return Event{
		Type:      EventCaptureUpdated,
		Timestamp: time.Now(),
		UserID:    capture.OwnerID,
		Data:      CaptureEventData{Capture: capture},
	}
}

// NewCaptureDeletedEvent creates a capture deleted event scoped to the owner.
func NewCaptureDeletedEvent(ownerID, captureID string) Event {
	now := time.Now()
	return Event{
		Type:      EventCaptureDeleted,
		Timestamp: now,
		UserID:    ownerID,
		Data:      CaptureDeletedEventData{CaptureID: captureID, DeletedAt: now},
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	now := time.Now()
	return Event{
		Type:      EventHeartbeat,
		Timestamp: now,
		Data:      HeartbeatEventData{ServerTime: now},
	}
}
