package video

import (
	"testing"

	"github.com/pkg/errors"
)

func TestValidate(t *testing.T) {
	v := NewValidator("https://player.example.com", "HTTPS://cdn.example.com/")

	tests := []struct {
		name    string
		origin  string
		payload string
		wantErr error
		want    Event
	}{
		{
			name:    "progress from trusted origin",
			origin:  "https://player.example.com",
			payload: `{"type":"progress","course_id":"c1","position":30,"duration":120}`,
			want:    Event{Type: EventProgress, CourseID: "c1", Position: 30, Duration: 120, Percent: 25},
		},
		{
			name:    "origin matching is case-insensitive",
			origin:  "https://CDN.example.com",
			payload: `{"type":"ended","course_id":"c1","duration":120}`,
			want:    Event{Type: EventEnded, CourseID: "c1", Position: 120, Duration: 120, Percent: 100},
		},
		{
			name:    "untrusted origin rejected before parsing",
			origin:  "https://evil.example.net",
			payload: `not even json`,
			wantErr: ErrUntrustedOrigin,
		},
		{
			name:    "untrusted subdomain",
			origin:  "https://player.example.com.evil.net",
			payload: `{"type":"ended","course_id":"c1"}`,
			wantErr: ErrUntrustedOrigin,
		},
		{
			name:    "unknown event type",
			origin:  "https://player.example.com",
			payload: `{"type":"seek","course_id":"c1"}`,
			wantErr: ErrUnknownEvent,
		},
		{
			name:    "missing course",
			origin:  "https://player.example.com",
			payload: `{"type":"ended"}`,
			wantErr: ErrBadPayload,
		},
		{
			name:    "position past duration",
			origin:  "https://player.example.com",
			payload: `{"type":"progress","course_id":"c1","position":200,"duration":120}`,
			wantErr: ErrBadPayload,
		},
		{
			name:    "malformed json",
			origin:  "https://player.example.com",
			payload: `{"type":`,
			wantErr: ErrBadPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Validate(tt.origin, []byte(tt.payload))
			if tt.wantErr != nil {
				if errors.Cause(err) != tt.wantErr {
					t.Fatalf("expected %v; got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("expected %+v; got %+v", tt.want, got)
			}
		})
	}
}
