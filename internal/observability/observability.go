// Package observability wires the process-wide slog default to either a
// plain text handler or an OpenTelemetry log pipeline emitting JSON records.
package observability

import (
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Instrument installs the default slog logger. format is "text" or "json";
// records below level are dropped.
func Instrument(level slog.Level, format string) error {
	switch format {
	case "text":
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		slog.SetDefault(slog.New(handler))
		return nil
	case "json":
		exporter, err := stdoutlog.New(stdoutlog.WithWriter(os.Stderr))
		if err != nil {
			return fmt.Errorf("creating log exporter: %w", err)
		}
		processor := minsev.NewLogProcessor(sdklog.NewSimpleProcessor(exporter), severity(level))
		provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))
		global.SetLoggerProvider(provider)
		slog.SetDefault(otelslog.NewLogger("kimi", otelslog.WithLoggerProvider(provider)))
		return nil
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
}

func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
