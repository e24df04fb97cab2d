package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ServiceName identifies this program in OTel and Graylog records.
const ServiceName = "copsim-car"

// Options select the outputs of a SlogManager. Nil outputs are skipped.
type Options struct {
	// Console defaults to os.Stderr; stdout is left to the track view.
	Console io.Writer
	File    io.Writer
	Level   string
	// Provider enables the OTel handler.
	Provider *sdklog.LoggerProvider
	// Graylog enables a GELF handler.
	Graylog *gelf.Writer
	// Context adds dynamic attributes, such as the run id, to every record.
	Context ContextProvider
}

// SlogManager manages slog-based logging with optional OTel and Graylog
// outputs.
type SlogManager struct {
	logger *slog.Logger

	logProvider *sdklog.LoggerProvider
	graylog     *gelf.Writer
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// ParseLevel converts a string log level to slog.Level. Unknown levels are
// INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func handlerOptions(lvl slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}
}

// Setup builds the logger and makes it the slog default.
func (m *SlogManager) Setup(opts Options) *slog.Logger {
	lvl := ParseLevel(opts.Level)
	m.logProvider = opts.Provider
	m.graylog = opts.Graylog
	handlerOpts := handlerOptions(lvl)

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	handlers := []slog.Handler{slog.NewTextHandler(console, handlerOpts)}
	if opts.File != nil {
		handlers = append(handlers, slog.NewTextHandler(opts.File, handlerOpts))
	}
	if opts.Provider != nil {
		handlers = append(handlers, otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(opts.Provider)))
	}
	if opts.Graylog != nil {
		// one JSON line per record becomes the GELF short message
		handlers = append(handlers, slog.NewJSONHandler(opts.Graylog, handlerOpts))
	}

	var handler slog.Handler = NewMultiHandler(handlers...)
	if opts.Context != nil {
		handler = NewContextHandler(handler, opts.Context)
	}

	m.logger = slog.New(handler)
	slog.SetDefault(m.logger)
	m.logger.Info("Logging initialized", "level", lvl.String())
	return m.logger
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}

// Close flushes and releases the remote outputs.
func (m *SlogManager) Close(ctx context.Context) error {
	err := m.Flush(ctx)
	if m.graylog != nil {
		if cerr := m.graylog.Close(); err == nil {
			err = cerr
		}
		m.graylog = nil
	}
	return err
}

// NewGraylogWriter connects a GELF UDP writer to addr, tagging messages
// with facility.
func NewGraylogWriter(addr, facility string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, err
	}
	if facility != "" {
		w.Facility = facility
	}
	return w, nil
}
