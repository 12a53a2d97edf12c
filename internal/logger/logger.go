// Copyright 2023 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger wraps log/slog with the five severities the personality
// and its command-line entry point use: TRACE, DEBUG, INFO, WARNING,
// ERROR. Output is either a single-line text format or JSON, optionally
// rotated to a file via lumberjack.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jacobsa/libos/internal/cfg"
)

// Severity levels, spaced like slog's own so TRACE can sit below DEBUG and
// OFF above ERROR.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(12)
)

type loggerFactory struct {
	file            *os.File
	sysWriter       io.Writer
	format          string
	level           string
	logRotateConfig cfg.LogRotateConfig
}

var defaultLoggerFactory = &loggerFactory{
	format: "text",
	level:  cfg.INFO,
}

var defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, programLevelFor(cfg.INFO), ""))

func programLevelFor(level string) *slog.LevelVar {
	v := new(slog.LevelVar)
	setLoggingLevel(level, v)
	return v
}

func setLoggingLevel(level string, v *slog.LevelVar) {
	switch level {
	case cfg.TRACE:
		v.Set(LevelTrace)
	case cfg.DEBUG:
		v.Set(LevelDebug)
	case cfg.INFO:
		v.Set(LevelInfo)
	case cfg.WARNING:
		v.Set(LevelWarn)
	case cfg.ERROR:
		v.Set(LevelError)
	default:
		v.Set(LevelOff)
	}
}

func (f *loggerFactory) writer() io.Writer {
	if f.file != nil {
		return &lumberjack.Logger{
			Filename:   f.file.Name(),
			MaxSize:    f.logRotateConfig.MaxFileSizeMB,
			MaxBackups: f.logRotateConfig.BackupFileCount,
			Compress:   f.logRotateConfig.Compress,
		}
	}
	if f.sysWriter != nil {
		return f.sysWriter
	}
	return os.Stderr
}

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	if f.format == "text" {
		return &textHandler{w: w, level: level, prefix: prefix}
	}
	return &jsonHandler{w: w, level: level, prefix: prefix}
}

func severityName(l slog.Level) string {
	switch {
	case l < LevelDebug:
		return "TRACE"
	case l < LevelInfo:
		return "DEBUG"
	case l < LevelWarn:
		return "INFO"
	case l < LevelError:
		return "WARNING"
	default:
		return "ERROR"
	}
}

// textHandler renders time="..." severity=X message="...".
type textHandler struct {
	w      io.Writer
	level  *slog.LevelVar
	prefix string
}

func (h *textHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.level.Level() }

func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	_, err := fmt.Fprintf(h.w, "time=%q severity=%s message=%q\n",
		r.Time.Format("2006/01/02 15:04:05.000000"), severityName(r.Level), h.prefix+r.Message)
	return err
}

func (h *textHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *textHandler) WithGroup(_ string) slog.Handler      { return h }

// jsonHandler renders {"timestamp":{"seconds":N,"nanos":N},"severity":"X","message":"..."}.
type jsonHandler struct {
	w      io.Writer
	level  *slog.LevelVar
	prefix string
}

func (h *jsonHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.level.Level() }

func (h *jsonHandler) Handle(_ context.Context, r slog.Record) error {
	_, err := fmt.Fprintf(h.w, "{\"timestamp\":{\"seconds\":%d,\"nanos\":%d},\"severity\":\"%s\",\"message\":\"%s\"}\n",
		r.Time.Unix(), r.Time.Nanosecond(), severityName(r.Level), h.prefix+r.Message)
	return err
}

func (h *jsonHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *jsonHandler) WithGroup(_ string) slog.Handler      { return h }

// SetLogFormat switches the default logger between "text" and "json" (any
// other value, including empty, behaves as "json").
func SetLogFormat(format string) {
	defaultLoggerFactory.format = format
	v := programLevelFor(defaultLoggerFactory.level)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(defaultLoggerFactory.writer(), v, ""))
}

// InitLogFile points the default logger at a rotated file sink.
func InitLogFile(logConfig cfg.LoggingConfig) error {
	f, err := os.OpenFile(string(logConfig.FilePath), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("logger: opening log file: %w", err)
	}

	defaultLoggerFactory = &loggerFactory{
		file:            f,
		format:          logConfig.Format,
		level:           logConfig.Severity,
		logRotateConfig: logConfig.LogRotateConfig,
	}
	v := programLevelFor(logConfig.Severity)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(defaultLoggerFactory.writer(), v, ""))
	return nil
}

func Tracef(format string, args ...any) { defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, args...)) }
func Debugf(format string, args ...any) { defaultLogger.Debug(fmt.Sprintf(format, args...)) }
func Infof(format string, args ...any)  { defaultLogger.Info(fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...any)  { defaultLogger.Warn(fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...any) { defaultLogger.Error(fmt.Sprintf(format, args...)) }
