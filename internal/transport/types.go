package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
	UpdateMedia    UpdateKind = "media"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
	Media    *MediaUpload
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	FromName     string
	Text         string
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

// MediaUpload is an inbound photo/video/animation attached by the operator
// while drafting a post. Ref is the platform file handle, reusable on send.
type MediaUpload struct {
	ChatID  int64
	FromID  int64
	Kind    MediaKind
	Ref     string
	Caption string
}

// MediaKind is a closed set of media variants a post can carry.
type MediaKind string

const (
	MediaNone      MediaKind = ""
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaAnimation MediaKind = "animation"
)

// Valid reports whether k is one of the known kinds (including none).
func (k MediaKind) Valid() bool {
	switch k {
	case MediaNone, MediaPhoto, MediaVideo, MediaAnimation:
		return true
	}
	return false
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Document is a file payload sent as an attachment (e.g. CSV exports).
type Document struct {
	Name    string
	Data    []byte
	Caption string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	// SendMedia delivers text plus media of the given kind. MediaNone is
	// equivalent to SendText; there is deliberately a single entry point so
	// call sites never branch on the kind themselves.
	SendMedia(ctx context.Context, to ChatTarget, kind MediaKind, ref, caption string, opt *SendOptions) (MessageRef, error)
	SendDocument(ctx context.Context, to ChatTarget, doc Document) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface adapters can implement to
// update platform-specific command menus (e.g. the Telegram "/" list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
