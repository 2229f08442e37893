package storage

import (
	"context"
	"errors"
	"time"

	kit "postbot/internal/transport"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Status is the lifecycle state of a post. "published" is terminal.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusPublished Status = "published"
)

// Post is a unit of publishable material.
//
// Invariant: PublishAt is non-nil iff Status is StatusScheduled. Writers keep
// it by always updating status and publish_at in a single statement.
type Post struct {
	ID        int64
	Title     string
	Keywords  string
	Body      string
	MediaKind kit.MediaKind
	MediaRef  string
	Status    Status
	PublishAt *time.Time
	Format    string // selling, collection, info, promo
	CreatedBy int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Event is one append-only engagement record (publish, click, view, ...).
type Event struct {
	ID        int64
	PostID    int64
	Action    string
	ActorID   int64 // 0 when the action has no specific actor
	Note      string
	CreatedAt time.Time
}

const (
	ActionPublish = "publish"
	ActionClick   = "click"
	ActionExpire  = "expire"
)

// User is an operator account seen by the bot.
type User struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// PostClicks pairs a post with its click count for top-post summaries.
type PostClicks struct {
	PostID int64
	Title  string
	Clicks int
}

// Config configures storage.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Store is the persistence API consumed by the engine, router and analytics.
type Store interface {
	// Posts.
	CreatePost(ctx context.Context, p *Post) error
	GetPost(ctx context.Context, id int64) (*Post, error)
	UpdatePostContent(ctx context.Context, id int64, title, keywords, body string) error
	SetPostMedia(ctx context.Context, id int64, kind kit.MediaKind, ref string) error
	DeletePost(ctx context.Context, id int64) (bool, error)

	// Status transitions. MarkScheduled refuses to touch published posts;
	// MarkPublished and ResetToDraft apply only to scheduled posts. All three
	// report whether a row actually changed.
	MarkScheduled(ctx context.Context, id int64, at time.Time) (bool, error)
	MarkPublished(ctx context.Context, id int64) (bool, error)
	ResetToDraft(ctx context.Context, id int64) (bool, error)

	// Queries.
	ListPostsByStatus(ctx context.Context, status Status, limit int) ([]Post, error)
	// ListDuePosts returns scheduled posts with publish_at <= before,
	// oldest first.
	ListDuePosts(ctx context.Context, before time.Time, limit int) ([]Post, error)

	// Events (append-only).
	AppendEvent(ctx context.Context, e Event) error
	ListEventsByPost(ctx context.Context, postID int64) ([]Event, error)
	ListEventsSince(ctx context.Context, since time.Time, limit int) ([]Event, error)
	CountEvents(ctx context.Context, action string, since time.Time) (int, error)
	TopPostsByClicks(ctx context.Context, since time.Time, limit int) ([]PostClicks, error)
	CountPostsByFormat(ctx context.Context, since time.Time) (map[string]int, error)

	// Users.
	UpsertUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, telegramID int64) (*User, error)

	Close() error
}
