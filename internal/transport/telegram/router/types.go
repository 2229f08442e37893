package router

import (
	"context"
	"time"

	"postbot/internal/config"
	"postbot/internal/services/analytics"
	"postbot/internal/services/publisher"
	"postbot/internal/storage"
	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
)

// PublisherPort is the slice of the publication engine the router drives.
type PublisherPort interface {
	Schedule(ctx context.Context, postID int64, at time.Time) error
	Reschedule(ctx context.Context, postID int64, at time.Time) error
	Cancel(ctx context.Context, postID int64) (bool, error)
	PublishNow(ctx context.Context, postID int64) error
	ListPending(ctx context.Context) ([]publisher.PendingPost, error)
}

// GeneratorPort produces and edits post texts.
type GeneratorPort interface {
	GeneratePost(ctx context.Context, format, keywords, details string) (string, error)
	ImproveText(ctx context.Context, original, instructions string) (string, error)
}

// AnalyticsPort serves stats and exports.
type AnalyticsPort interface {
	Summarize(ctx context.Context, window time.Duration) (*analytics.Summary, error)
	ExportPosts(ctx context.Context) (kit.Document, error)
	ExportEvents(ctx context.Context, window time.Duration) (kit.Document, error)
	RecordClick(ctx context.Context, postID, actorID int64) error
}

// Services bundles everything handlers may touch.
type Services struct {
	Store     storage.Store
	Publisher PublisherPort
	Generator GeneratorPort
	Analytics AnalyticsPort
}

// Request carries one update through the middleware chain into a handler.
type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string   // matched command, or "cb:scope:action"
	Args    []string // positional args after the command
	Payload string   // callback payload (raw string)
	ReqID   string

	Adapter  kit.Adapter
	Config   *config.Config
	Logger   logx.Logger
	Services *Services
	Session  *Session
}

// Command is a top-level slash command.
type Command struct {
	Name        string // without the leading slash
	Description string
	Timeout     time.Duration
	Handle      HandlerFunc
}

// CallbackRoute handles inline-button callbacks with data "scope:action:payload".
type CallbackRoute struct {
	Scope   string
	Action  string
	Timeout time.Duration
	Handle  func(ctx context.Context, req *Request, payload string) error
}
