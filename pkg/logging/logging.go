package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger sends informative messages to stdout in a compact bracketed format
// and errors to stderr as JSON.
type Logger struct {
	InfoLog  *slog.Logger
	ErrorLog *slog.Logger
}

func NewLogger() Logger {
	return Logger{
		InfoLog:  slog.New(NewHandler(os.Stdout, slog.LevelDebug)),
		ErrorLog: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}
}

func (l Logger) Info(message string, module string) {
	l.InfoLog.Info(message, "module", module)
}

func (l Logger) Error(message string) {
	l.ErrorLog.Error(message)
}

// Handler writes one line per record:
//
//	[2006/01/02 15:04:05] [value]... message
//
// Attribute keys and groups are dropped, only the values are kept.
type Handler struct {
	out   io.Writer
	level slog.Leveler
	attrs []string
	mu    *sync.Mutex
}

func NewHandler(out io.Writer, level slog.Leveler) *Handler {
	return &Handler{out: out, level: level, mu: &sync.Mutex{}}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	values := make([]string, len(h.attrs), len(h.attrs)+len(attrs))
	copy(values, h.attrs)
	for _, a := range attrs {
		values = append(values, "["+a.Value.String()+"]")
	}
	return &Handler{out: h.out, level: h.level, attrs: values, mu: h.mu}
}

func (h *Handler) WithGroup(string) slog.Handler {
	return h
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var line strings.Builder
	line.WriteString(r.Time.Format("[2006/01/02 15:04:05]"))
	for _, value := range h.attrs {
		line.WriteString(" " + value)
	}
	r.Attrs(func(a slog.Attr) bool {
		line.WriteString(" [" + a.Value.String() + "]")
		return true
	})
	line.WriteString(" " + r.Message + "\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, line.String())
	return err
}
