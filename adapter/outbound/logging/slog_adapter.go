package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ajkula/plistener/config"
	"github.com/ajkula/plistener/domain/port/outbound"
)

// one queued entry, written by the drain goroutine
type logEntry struct {
	level slog.Level
	msg   string
	args  []any
	time  time.Time
}

// implements the Logger interface using Go's structured logging (slog)
// with asynchronous processing so file events are never blocked on output
type SlogAdapter struct {
	logger    *slog.Logger
	entries   chan logEntry
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	slogLevel *slog.LevelVar
	closer    io.Closer
	once      sync.Once
}

// creates a logger writing where config.Logging.Output says
func NewSlogAdapter(cfg *config.Config) outbound.Logger {
	out, closer, err := openOutput(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log output, using stderr: %v\n", err)
		out, closer = os.Stderr, nil
	}

	adapter := NewSlogAdapterWithWriter(cfg, out)
	adapter.closer = closer
	return adapter
}

// creates a logger writing to w
func NewSlogAdapterWithWriter(cfg *config.Config, w io.Writer) *SlogAdapter {
	ctx, cancel := context.WithCancel(context.Background())

	levelVar := &slog.LevelVar{}
	levelVar.Set(parseSlogLevel(levelOf(cfg)))

	handlerOpts := &slog.HandlerOptions{
		Level: levelVar,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Logging.Format) == "text" {
		handler = slog.NewTextHandler(w, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(w, handlerOpts)
	}

	size := cfg.Logging.ChannelSize
	if size < 0 {
		size = 0
	}

	adapter := &SlogAdapter{
		logger:    slog.New(handler).With("app", "plistener"),
		entries:   make(chan logEntry, size),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		slogLevel: levelVar,
	}

	go adapter.processLogs()

	return adapter
}

// logging.level wins, general.logLevel is the fallback
func levelOf(cfg *config.Config) string {
	if cfg.Logging.Level != "" {
		return cfg.Logging.Level
	}
	return cfg.General.LogLevel
}

func openOutput(cfg *config.Config) (io.Writer, io.Closer, error) {
	switch strings.ToLower(cfg.Logging.Output) {
	case "stderr":
		return os.Stderr, nil, nil
	case "file":
		f, err := os.OpenFile(cfg.Logging.FilePath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, err
		}
		return f, f, nil
	default:
		return os.Stdout, nil, nil
	}
}

// changes the level at runtime
func (s *SlogAdapter) UpdateLevel(level string) {
	s.slogLevel.Set(parseSlogLevel(level))
	s.Info("Log level updated", "level", s.slogLevel.Level().String())
}

// drains the queue until Shutdown, then flushes what is left
func (s *SlogAdapter) processLogs() {
	defer close(s.done)

	for {
		select {
		case entry := <-s.entries:
			s.write(entry)
		case <-s.ctx.Done():
			for {
				select {
				case entry := <-s.entries:
					s.write(entry)
				default:
					return
				}
			}
		}
	}
}

// unknown levels fall back to info
func parseSlogLevel(level string) slog.Level {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return parsed
}

func (s *SlogAdapter) write(entry logEntry) {
	record := slog.NewRecord(entry.time, entry.level, entry.msg, 0)
	record.Add(entry.args...)
	_ = s.logger.Handler().Handle(context.Background(), record)
}

func (s *SlogAdapter) enabled(level slog.Level) bool {
	return level >= s.slogLevel.Level()
}

// queues an entry; a full queue drops it rather than blocking the caller
func (s *SlogAdapter) enqueue(level slog.Level, msg string, args []any) {
	if !s.enabled(level) || s.ctx.Err() != nil {
		return
	}

	select {
	case s.entries <- logEntry{level: level, msg: msg, args: args, time: time.Now()}:
	default:
	}
}

func (s *SlogAdapter) Error(msg string, args ...any) {
	s.enqueue(slog.LevelError, msg, args)
}

func (s *SlogAdapter) Warn(msg string, args ...any) {
	s.enqueue(slog.LevelWarn, msg, args)
}

func (s *SlogAdapter) Info(msg string, args ...any) {
	s.enqueue(slog.LevelInfo, msg, args)
}

func (s *SlogAdapter) Debug(msg string, args ...any) {
	s.enqueue(slog.LevelDebug, msg, args)
}

// Shutdown flushes queued entries and closes a file output. Safe to call twice.
func (s *SlogAdapter) Shutdown() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		if s.closer != nil {
			s.closer.Close()
		}
	})
}
