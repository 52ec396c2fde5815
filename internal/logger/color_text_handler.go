package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// ColorTextHandler wraps slog.TextHandler to colorize the level token and,
// when a "program" attribute is present, tag the line with it -- the
// supervisor's own log lines almost always carry a program name, and
// picking it out at a glance matters more here than in a generic handler.
type ColorTextHandler struct {
	*slog.TextHandler
	showTime bool
}

// NewColorTextHandler creates a new ColorTextHandler. showTime controls
// whether the record's timestamp is kept; interactive terminal sessions
// tend to want it stripped since the shell/tmux scrollback already carries
// a time axis.
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, showTime bool) *ColorTextHandler {
	return &ColorTextHandler{
		TextHandler: slog.NewTextHandler(w, opts),
		showTime:    showTime,
	}
}

// Handle implements slog.Handler.
func (h *ColorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	color, label := levelStyle(r.Level)

	var program string
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "program" && program == "" {
			program = a.Value.String()
		}
		return true
	})

	msg := r.Message
	if program != "" {
		msg = fmt.Sprintf("\033[1m[%s]\033[0m %s", program, msg)
	}
	r.Message = fmt.Sprintf("%s%-5s\033[0m %s", color, label, msg)

	if !h.showTime {
		r.Time = time.Time{}
	}

	return h.TextHandler.Handle(ctx, r)
}

// WithAttrs and WithGroup must rewrap the derived handler: the embedded
// *slog.TextHandler's own With* methods return a plain *slog.TextHandler,
// so without overriding these, a single slog.Logger.With call anywhere in
// the chain would silently drop coloring for every record logged after it.
func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ColorTextHandler{
		TextHandler: h.TextHandler.WithAttrs(attrs).(*slog.TextHandler),
		showTime:    h.showTime,
	}
}

func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	return &ColorTextHandler{
		TextHandler: h.TextHandler.WithGroup(name).(*slog.TextHandler),
		showTime:    h.showTime,
	}
}

func levelStyle(l slog.Level) (color, label string) {
	switch {
	case l >= slog.LevelError:
		return "\033[1;31m", "ERROR"
	case l >= slog.LevelWarn:
		return "\033[1;33m", "WARN"
	case l >= slog.LevelInfo:
		return "\033[1;32m", "INFO"
	default:
		return "\033[36m", "DEBUG"
	}
}
