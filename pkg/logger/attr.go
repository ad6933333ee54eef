package logger

import (
	"log/slog"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
// If id is nil or empty, it returns an empty Attr.
func UserID(id any) slog.Attr {
	if id == nil || id == "" {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

// RequestID records the request identifier under the key "request_id".
func RequestID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("request_id", id)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// Handler records the handler name under the key "handler".
func Handler(name string) slog.Attr {
	return slog.String("handler", name)
}

// Provider records an identity or billing provider name under the key "provider".
func Provider(name string) slog.Attr {
	return slog.String("provider", name)
}

// RouteKind records the classification of a request path under the key "route_kind".
func RouteKind(kind string) slog.Attr {
	return slog.String("route_kind", kind)
}

// Path records a request path under the key "path".
func Path(p string) slog.Attr {
	return slog.String("path", p)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Redacted records at most keep leading characters of a secret value
// (auth codes, tokens) followed by "...". Shorter values are fully masked.
func Redacted(key, value string, keep int) slog.Attr {
	if keep <= 0 || len(value) <= keep {
		return slog.String(key, "***")
	}
	return slog.String(key, value[:keep]+"...")
}
