package cron

import (
	"fmt"
	"io"
	"strings"
	"time"

	statemachine "github.com/goliatone/go-statemachine"
	"github.com/goliatone/go-statemachine/runner"
)

// LogLevel controls how much of the cron library's own logging is kept.
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelDebug
)

// Parser selects the cron expression dialect.
type Parser int

const (
	DefaultParser Parser = iota
	StandardParser
	SecondsParser
)

type Option func(*Scheduler)

func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.location = loc
	}
}

func WithLogger(logger statemachine.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithLogWriter sends cron library logs to writer when no logger is set.
func WithLogWriter(writer io.Writer) Option {
	return func(s *Scheduler) {
		s.logWriter = writer
	}
}

func WithLogLevel(level LogLevel) Option {
	return func(s *Scheduler) {
		s.logLevel = level
	}
}

// WithErrorHandler receives failed deliveries and recovered job panics.
func WithErrorHandler(handler func(error)) Option {
	return func(s *Scheduler) {
		s.errorHandler = handler
	}
}

func WithParser(p Parser) Option {
	return func(s *Scheduler) {
		s.parser = p
	}
}

// JobOptions bound a single scheduled job. Retries apply to one firing;
// a recurring job starts over on its next tick.
type JobOptions struct {
	Expression    string
	MaxRetries    int
	Timeout       time.Duration
	Deadline      time.Time
	RetryStrategy runner.RetryStrategy
}

func (o JobOptions) runnerOptions(name string, s *Scheduler) []runner.Option {
	opts := []runner.Option{
		runner.WithName(name),
		runner.WithMaxRetries(o.MaxRetries),
		runner.WithLogger(s.logger),
	}
	if o.Timeout > 0 {
		opts = append(opts, runner.WithTimeout(o.Timeout))
	}
	if !o.Deadline.IsZero() {
		opts = append(opts, runner.WithDeadline(o.Deadline))
	}
	if o.RetryStrategy != nil {
		opts = append(opts, runner.WithRetryStrategy(o.RetryStrategy))
	}
	return opts
}

// loggerAdapter feeds robfig/cron logs into a statemachine.Logger.
type loggerAdapter struct {
	logger statemachine.Logger
	level  LogLevel
}

func (l *loggerAdapter) Info(msg string, keysAndValues ...any) {
	if l.level >= LogLevelInfo {
		l.logger.Debug("cron: %s%s", msg, pairs(keysAndValues))
	}
}

func (l *loggerAdapter) Error(err error, msg string, keysAndValues ...any) {
	if l.level >= LogLevelError {
		l.logger.Error("cron: %s%s: %v", msg, pairs(keysAndValues), err)
	}
}

// errorHandlerAdapter routes recovered job panics to the error handler.
type errorHandlerAdapter struct {
	handler func(error)
}

func (e *errorHandlerAdapter) Info(string, ...any) {}

func (e *errorHandlerAdapter) Error(err error, msg string, _ ...any) {
	if e.handler == nil {
		return
	}
	if err == nil {
		err = fmt.Errorf("%s", msg)
	}
	e.handler(err)
}

func pairs(kv []any) string {
	if len(kv) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	return b.String()
}
