// Package video validates playback events posted by the embedded
// player. Events arrive as cross-origin messages and are untrusted
// until the origin matches the allow-list and the payload parses into
// one of the known shapes.
package video

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// Event types
const (
	EventProgress = "progress"
	EventEnded    = "ended"
)

var (
	ErrUntrustedOrigin = errors.New("video: untrusted origin")
	ErrUnknownEvent    = errors.New("video: unknown event type")
	ErrBadPayload      = errors.New("video: malformed payload")
)

// Event is a validated player message.
type Event struct {
	Type     string `json:"type"`
	CourseID string `json:"course_id"`
	// Position and Duration in whole seconds; Percent derived 0..100.
	Position int `json:"position"`
	Duration int `json:"duration"`
	Percent  int `json:"percent"`
}

// Validator checks player messages against a trusted-origin allow-list.
type Validator struct {
	origins map[string]struct{}
}

// NewValidator normalizes and records the trusted origins
// (scheme://host[:port], no path).
func NewValidator(trustedOrigins ...string) *Validator {
	v := &Validator{origins: make(map[string]struct{}, len(trustedOrigins))}
	for _, o := range trustedOrigins {
		if norm, ok := normalizeOrigin(o); ok {
			v.origins[norm] = struct{}{}
		}
	}
	return v
}

// Validate parses a raw message from origin into a typed Event.
// Untrusted origins are rejected before the payload is even parsed.
func (v *Validator) Validate(origin string, payload []byte) (Event, error) {
	norm, ok := normalizeOrigin(origin)
	if !ok {
		return Event{}, ErrUntrustedOrigin
	}
	if _, ok = v.origins[norm]; !ok {
		return Event{}, ErrUntrustedOrigin
	}

	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return Event{}, errors.Wrap(ErrBadPayload, err.Error())
	}
	if evt.CourseID == "" {
		return Event{}, ErrBadPayload
	}

	switch evt.Type {
	case EventProgress:
		if evt.Duration <= 0 || evt.Position < 0 || evt.Position > evt.Duration {
			return Event{}, ErrBadPayload
		}
		evt.Percent = evt.Position * 100 / evt.Duration
	case EventEnded:
		evt.Percent = 100
		if evt.Duration > 0 {
			evt.Position = evt.Duration
		}
	default:
		return Event{}, ErrUnknownEvent
	}
	return evt, nil
}

func normalizeOrigin(origin string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), true
}
