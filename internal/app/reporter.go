package app

import (
	"context"
	"html"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/ports"
)

// LogReporter écrit chaque rapport dans zerolog et, si un canal de logs est
// configuré, le recopie via le transport.
type LogReporter struct {
	logger    zerolog.Logger
	messenger ports.Messenger
	chatID    int64
}

func NewLogReporter(logger zerolog.Logger, messenger ports.Messenger, logChannel int64) *LogReporter {
	return &LogReporter{logger: logger, messenger: messenger, chatID: logChannel}
}

func (r *LogReporter) Report(ctx context.Context, severity ports.Severity, message string, forward bool) {
	var evt *zerolog.Event
	switch severity {
	case ports.SeverityError:
		evt = r.logger.Error()
	case ports.SeverityWarning:
		evt = r.logger.Warn()
	default:
		evt = r.logger.Info()
	}
	evt.Str("severity", string(severity)).Msg(message)

	if !forward || r.messenger == nil || r.chatID == 0 {
		return
	}
	text := "<b>[" + string(severity) + "]</b> <code>" + html.EscapeString(message) + "</code>"
	if _, err := r.messenger.SendMessage(ctx, r.chatID, text); err != nil {
		// Pas de boucle: l'échec du canal de logs reste local.
		r.logger.Warn().Err(err).Int64("chat_id", r.chatID).Msg("failed to forward report")
	}
}

func report(ctx context.Context, r ports.Reporter, severity ports.Severity, message string, forward bool) {
	if r == nil {
		return
	}
	r.Report(ctx, severity, message, forward)
}
