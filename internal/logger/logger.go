// Package logger writes request-scoped structured lines as JSON through
// log/slog, with secrets masked.
package logger

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"reflect"
	"sort"
	"strings"
	"sync/atomic"
)

// Fields are attached to a log line as top-level attributes.
type Fields map[string]any

const mask = "******"

// Keys are compared lower-cased with '-' and '_' removed.
var sensitiveKeys = map[string]struct{}{
	"otp":           {},
	"code":          {},
	"otpcode":       {},
	"idnumber":      {},
	"password":      {},
	"passwordhash":  {},
	"accesstoken":   {},
	"authorization": {},
}

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(New(os.Stderr))
}

// New returns a JSON slog.Logger writing to w that masks sensitive attributes.
func New(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{ReplaceAttr: redactAttr}))
}

// SetOutput sends lines to w and returns a func that restores the previous logger.
func SetOutput(w io.Writer) (restore func()) {
	prev := current.Swap(New(w))
	return func() { current.Store(prev) }
}

// Info logs message with fields.
func Info(message string, fields Fields) {
	current.Load().Info(message, attrs(fields)...)
}

// Error logs message with fields and err.
func Error(message string, err error, fields Fields) {
	args := attrs(fields)
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
	}
	current.Load().Error(message, args...)
}

// Redact returns a JSON-shaped copy of v with sensitive keys masked at any depth.
// Values that cannot be marshalled become "<unavailable>".
func Redact(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return "<unavailable>"
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return "<unavailable>"
	}
	return redactValue(data)
}

func attrs(fields Fields) []any {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, slog.Any(k, fields[k]))
	}
	return out
}

func redactAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && (a.Key == slog.TimeKey || a.Key == slog.LevelKey || a.Key == slog.MessageKey) {
		return a
	}
	if sensitive(a.Key) {
		return slog.String(a.Key, mask)
	}
	if a.Value.Kind() == slog.KindAny && nested(a.Value.Any()) {
		return slog.Any(a.Key, Redact(a.Value.Any()))
	}
	return a
}

// nested reports whether v can hold keyed values that need masking.
func nested(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Pointer:
		return true
	}
	return false
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			if sensitive(k) {
				out[k] = mask
				continue
			}
			out[k] = redactValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = redactValue(inner)
		}
		return out
	default:
		return v
	}
}

func sensitive(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	k = strings.NewReplacer("-", "", "_", "").Replace(k)
	_, ok := sensitiveKeys[k]
	return ok
}
