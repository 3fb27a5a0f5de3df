// Copyright 2015 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

// Package log provides the structured, leveled logging used throughout this
// repository: log.Info("message", "key", value, "key2", value2, ...). It is
// deliberately small; it exists so every other package can depend on the
// same logging convention the rest of this corpus uses instead of reaching
// for fmt.Printf or the standard library's unstructured log package.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Lvl is the level of a log record.
type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) String() string {
	switch l {
	case LvlCrit:
		return "CRIT"
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DEBUG"
	case LvlTrace:
		return "TRACE"
	default:
		return "UNKNOWN"
	}
}

var levelColor = map[Lvl]*color.Color{
	LvlCrit:  color.New(color.FgMagenta, color.Bold),
	LvlError: color.New(color.FgRed),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgWhite),
}

// Logger emits leveled, structured records, optionally decorated with a
// fixed set of context key-value pairs (see New).
type Logger interface {
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
	New(ctx ...interface{}) Logger
}

type logger struct {
	ctx []interface{}
}

var (
	mu       sync.Mutex
	out      io.Writer = colorable.NewColorableStdout()
	useColor           = isatty.IsTerminal(os.Stdout.Fd())
	minLevel           = LvlInfo
)

// SetLevel bounds the records that reach the writer; records more verbose
// than minLevel are dropped. Default is LvlInfo.
func SetLevel(l Lvl) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = l
}

// SetOutput redirects where formatted records are written. Tests use this
// to capture output instead of writing to the terminal.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// Root returns the logger with no bound context, the one the package-level
// Trace/Debug/Info/Warn/Error/Crit helpers write through.
func Root() Logger { return &logger{} }

// New returns a Logger that prefixes every record with ctx, in addition to
// whatever context the caller supplies per call. Mirrors the convention the
// rest of this corpus uses for per-peer loggers: log.New("peer", id[:8]).
func New(ctx ...interface{}) Logger {
	return &logger{ctx: ctx}
}

func (l *logger) New(ctx ...interface{}) Logger {
	merged := make([]interface{}, 0, len(l.ctx)+len(ctx))
	merged = append(merged, l.ctx...)
	merged = append(merged, ctx...)
	return &logger{ctx: merged}
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.write(LvlTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.write(LvlDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.write(LvlInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.write(LvlWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.write(LvlError, msg, ctx) }
func (l *logger) Crit(msg string, ctx ...interface{})  { l.write(LvlCrit, msg, ctx) }

func (l *logger) write(lvl Lvl, msg string, ctx []interface{}) {
	if lvl > minLevel {
		return
	}
	mu.Lock()
	defer mu.Unlock()

	line := format(lvl, msg, append(append([]interface{}{}, l.ctx...), ctx...))
	fmt.Fprint(out, line)
}

func format(lvl Lvl, msg string, ctx []interface{}) string {
	ts := time.Now().Format("2006-01-02T15:04:05-0700")
	label := lvl.String()
	if useColor {
		if c, ok := levelColor[lvl]; ok {
			label = c.Sprintf("%-5s", label)
		}
	}
	line := fmt.Sprintf("%s [%s] %s", ts, label, msg)
	for i := 0; i+1 < len(ctx); i += 2 {
		line += fmt.Sprintf(" %v=%v", ctx[i], ctx[i+1])
	}
	if lvl <= LvlError {
		if caller := callerFrame(); caller != "" {
			line += " caller=" + caller
		}
	}
	return line + "\n"
}

// callerFrame reports the file:line of the call site that reached a
// Crit/Error record, walking past this package's own frames. Only paid for
// on the noisy-enough-to-matter levels.
func callerFrame() string {
	for _, c := range stack.Trace().TrimRuntime() {
		if fmt.Sprintf("%+k", c) == "github.com/probeum/node/log" {
			continue
		}
		frame := fmt.Sprintf("%+v", c)
		if frame == "" {
			continue
		}
		return frame
	}
	return ""
}

// Package-level helpers writing through Root(), matching the convention
// used across the rest of this repository (log.Info("msg", "k", v)).
func Trace(msg string, ctx ...interface{}) { Root().Trace(msg, ctx...) }
func Debug(msg string, ctx ...interface{}) { Root().Debug(msg, ctx...) }
func Info(msg string, ctx ...interface{})  { Root().Info(msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { Root().Warn(msg, ctx...) }
func Error(msg string, ctx ...interface{}) { Root().Error(msg, ctx...) }
func Crit(msg string, ctx ...interface{})  { Root().Crit(msg, ctx...) }
