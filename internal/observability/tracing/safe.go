package tracing

import (
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

var blockedAttributeKeys = map[attribute.Key]struct{}{
	"enrollment_key": {},
	"authorization":  {},
	"password":       {},
	"token":          {},
}

// SafeAttributes drops attributes that may carry credentials.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, blocked := blockedAttributeKeys[attr.Key]; blocked {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError returns a copy of err whose message is safe to export. Messages
// mentioning keys or tokens are replaced.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"enrollment_key", "bearer ", "password"} {
		if strings.Contains(msg, marker) {
			return errors.New("redacted error")
		}
	}
	return errors.New(err.Error())
}
