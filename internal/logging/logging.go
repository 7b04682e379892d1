// Package logging construit le logger racine : console lisible sur un
// terminal, JSON sinon.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New crée le logger de l'application et le pose comme logger global.
// Un niveau invalide retombe sur info.
func New(level, app string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}
	}
	logger := NewWithWriter(out, level, app)
	log.Logger = logger
	return logger
}

func NewWithWriter(w io.Writer, level, app string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("app", app).Logger()
}
