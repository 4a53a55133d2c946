package notifier

import (
	"log/slog"

	"github.com/amishk599/vacancybot/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes finished announcements to the given logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each announcement via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the announcement. Returns nil (stdout logging does not fail).
func (n *LogNotifier) Notify(a model.Announcement) error {
	args := []any{"request_id", a.RequestID, "user", a.UserID, "fallback", a.Fallback, "chars", len([]rune(a.Text))}
	if a.SourceURL != "" {
		args = append(args, "source_url", a.SourceURL)
	}
	n.logger.Info("announcement ready", args...)
	n.logger.Debug("announcement text", "request_id", a.RequestID, "text", a.Text)
	return nil
}

// NopNotifier discards announcements.
type NopNotifier struct{}

// Notify does nothing.
func (NopNotifier) Notify(model.Announcement) error { return nil }
