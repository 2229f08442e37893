package publisher

import (
	"errors"
	"time"

	kit "postbot/internal/transport"
)

// Bus event types emitted by the engine.
const (
	EventPublished = "post.published"
	EventRetry     = "post.retry"
	EventExpired   = "post.expired"
)

// Outcome is the payload carried on engine bus events.
type Outcome struct {
	PostID    int64
	Title     string
	Attempt   int
	NextTry   time.Time // set on EventRetry
	MessageID int       // set on EventPublished
	Err       string    // set on EventRetry / EventExpired when delivery failed
}

var (
	ErrPastTime         = errors.New("publish time is in the past")
	ErrAlreadyPublished = errors.New("post is already published")
	ErrNotRunning       = errors.New("publisher is not running")
)

// Config controls the engine. Zero values fall back to the documented defaults.
type Config struct {
	Enabled bool

	// SweepInterval is how often the reconciliation sweep re-reads due posts.
	SweepInterval time.Duration // default 60s
	// RetryDelay is the backoff after a failed delivery attempt.
	RetryDelay time.Duration // default 5m
	// GracePeriod is how long a post may sit overdue in "scheduled" before
	// cleanup returns it to draft.
	GracePeriod time.Duration // default 10m
	// CleanupEvery is how often the stale-post cleanup runs.
	CleanupEvery time.Duration // default 5m
	// BatchSize caps posts handled per sweep pass.
	BatchSize int // default 10
	// MaxAttempts bounds delivery attempts per scheduling; 0 means retry
	// until the grace period expires the post.
	MaxAttempts int
	// SendTimeout bounds a single delivery attempt.
	SendTimeout time.Duration // default 30s

	// Channel is the destination chat for published posts.
	Channel kit.ChatTarget
}

func (c Config) withDefaults() Config {
	if c.SweepInterval <= 0 {
		c.SweepInterval = 60 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Minute
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 10 * time.Minute
	}
	if c.CleanupEvery <= 0 {
		c.CleanupEvery = 5 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	return c
}

// PendingPost is a row of the pending-schedule listing.
type PendingPost struct {
	ID        int64
	Title     string
	PublishAt time.Time
}
