package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/ridebot/internal/events"
	"github.com/example/ridebot/internal/messenger"
	"github.com/example/ridebot/internal/observability"
)

// Notifier delivers outbound messages and trip events on a best-effort
// basis. Failures are logged and counted, never returned: the turn that
// caused a notification has already been committed.
type Notifier struct {
	sender    messenger.Sender
	publisher events.Publisher
	logger    *slog.Logger
}

func New(sender messenger.Sender, publisher events.Publisher, logger *slog.Logger) *Notifier {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Notifier{sender: sender, publisher: publisher, logger: logger}
}

// Send returns the new message id and whether delivery succeeded.
func (n *Notifier) Send(ctx context.Context, chatID int64, msg messenger.Message) (int, bool) {
	id, err := n.sender.Send(ctx, chatID, msg)
	if err != nil {
		observability.NotificationsFailed.Inc()
		n.logger.Warn("send failed", "chat_id", chatID, "error", err)
		return 0, false
	}
	return id, true
}

// Edit rewrites an earlier message in place. A vanished message is expected
// (users delete chats) and only logged at debug level.
func (n *Notifier) Edit(ctx context.Context, chatID int64, messageID int, msg messenger.Message) bool {
	err := n.sender.Edit(ctx, chatID, messageID, msg)
	switch {
	case err == nil:
		return true
	case errors.Is(err, messenger.ErrMessageNotFound):
		n.logger.Debug("edit target gone", "chat_id", chatID, "message_id", messageID)
	default:
		observability.NotificationsFailed.Inc()
		n.logger.Warn("edit failed", "chat_id", chatID, "message_id", messageID, "error", err)
	}
	return false
}

// Handle returns the chat's public username for display, or "" when the
// transport does not know one.
func (n *Notifier) Handle(ctx context.Context, chatID int64) string {
	name, err := n.sender.Username(ctx, chatID)
	if err != nil {
		n.logger.Debug("username lookup failed", "chat_id", chatID, "error", err)
		return ""
	}
	return name
}

func (n *Notifier) Publish(ctx context.Context, ev events.Event) {
	if err := n.publisher.Publish(ctx, ev); err != nil {
		observability.EventsPublishFailed.Inc()
		n.logger.Warn("event publish failed", "kind", ev.Kind, "trip_id", ev.TripID, "error", err)
	}
}
