package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New constrói o logger base. format "text" usa o console writer do zerolog;
// qualquer outro valor produz JSON. Nível inválido cai em info.
func New(level, format string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	out := io.Writer(NewRedactWriter(w))
	if format == "text" {
		cw := zerolog.NewConsoleWriter()
		cw.Out = out
		out = cw
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
