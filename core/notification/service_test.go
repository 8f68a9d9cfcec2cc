package notification

import (
	"context"
	"testing"

	"github.com/elimulabs/elimu/core"
	"github.com/elimulabs/elimu/core/user"
)

type memRepo struct {
	rows []Notification
}

func (r *memRepo) CreateNotification(_ context.Context, n Notification, _ ...core.DBExecutor) (Notification, error) {
	r.rows = append(r.rows, n)
	return n, nil
}

func (r *memRepo) QueryNotificationsByUser(_ context.Context, userID string, unreadOnly bool, _ ...core.DBExecutor) ([]Notification, error) {
	var out []Notification
	for _, n := range r.rows {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (r *memRepo) MarkNotificationsRead(_ context.Context, userID string, ids []string, _ ...core.DBExecutor) error {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	for i, n := range r.rows {
		if n.UserID == userID && wanted[n.ID] {
			r.rows[i].Read = true
		}
	}
	return nil
}

func (r *memRepo) MarkAllNotificationsRead(_ context.Context, userID string, _ ...core.DBExecutor) error {
	for i, n := range r.rows {
		if n.UserID == userID {
			r.rows[i].Read = true
		}
	}
	return nil
}

type memDirectory map[string]user.User

func (d memDirectory) GetByID(_ context.Context, id string) (user.User, error) {
	if usr, ok := d[id]; ok {
		return usr, nil
	}
	return user.User{}, user.ErrNotFound
}

type memMailer struct {
	sent []*core.EmailMessage
}

func (m *memMailer) SendMessages(messages ...*core.EmailMessage) {
	m.sent = append(m.sent, messages...)
}

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func newTestService(repo *memRepo) (Service, *memMailer) {
	directory := memDirectory{
		"u1": {ID: "u1", Name: "Alice", Email: "alice@example.com"},
		"u2": {ID: "u2", Name: "Bob", Email: "bob@example.com"},
	}
	mailer := &memMailer{}
	return NewService(repo, directory, mailer, nopLogger{}), mailer
}

func TestNotify(t *testing.T) {
	repo := &memRepo{}
	svc, mailer := newTestService(repo)
	ctx := context.Background()

	n, err := svc.Notify(ctx, "u1", KindStreak, "  7-day streak!  ", "Keep it up")
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if n.ID == "" {
		t.Error("Notify() should assign an ID")
	}
	if n.Title != "7-day streak!" {
		t.Errorf("Notify() title = %q; want trimmed", n.Title)
	}
	if n.Read {
		t.Error("new notifications should start unread")
	}
	if len(mailer.sent) != 0 {
		t.Errorf("streak nudges should stay in-app; got %d emails", len(mailer.sent))
	}
}

func TestNotifyEmailsCourseAndReferralKinds(t *testing.T) {
	repo := &memRepo{}
	svc, mailer := newTestService(repo)
	ctx := context.Background()

	if _, err := svc.Notify(ctx, "u1", KindCourse, "Course completed: Intro to Go", "Well done"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if _, err := svc.Notify(ctx, "u2", KindReferral, "Referral completed", "You earned 100 points"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if len(mailer.sent) != 2 {
		t.Fatalf("expected 2 emails; got %d", len(mailer.sent))
	}
	msg := mailer.sent[0]
	if len(msg.To) != 1 || msg.To[0].Address != "alice@example.com" {
		t.Errorf("first email to %v; want alice@example.com", msg.To)
	}
	if msg.Subject != "Course completed: Intro to Go" || msg.BodyStr != "Well done" {
		t.Errorf("unexpected email content: %q / %q", msg.Subject, msg.BodyStr)
	}

	// unresolvable recipients only skip delivery, never fail the notify
	if _, err := svc.Notify(ctx, "ghost", KindCourse, "t", "b"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if len(mailer.sent) != 2 {
		t.Errorf("expected no email for unknown user; got %d", len(mailer.sent))
	}
}

func TestMarkRead(t *testing.T) {
	repo := &memRepo{}
	svc, _ := newTestService(repo)
	ctx := context.Background()

	var ids []string
	for _, kind := range []string{KindStreak, KindReferral, KindCourse} {
		n, err := svc.Notify(ctx, "u1", kind, "t", "b")
		if err != nil {
			t.Fatalf("Notify() error = %v", err)
		}
		ids = append(ids, n.ID)
	}
	if _, err := svc.Notify(ctx, "u2", KindCourse, "t", "b"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	// empty ID set is a no-op, not an error
	if err := svc.MarkRead(ctx, "u1", nil); err != nil {
		t.Fatalf("MarkRead(nil) error = %v", err)
	}

	// marking someone else's notification must not flip it
	if err := svc.MarkRead(ctx, "u2", ids[:1]); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	unread, err := svc.QueryByUser(ctx, "u1", true)
	if err != nil {
		t.Fatalf("QueryByUser() error = %v", err)
	}
	if len(unread) != 3 {
		t.Errorf("unread = %d; want 3", len(unread))
	}

	if err := svc.MarkRead(ctx, "u1", ids[:2]); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	unread, _ = svc.QueryByUser(ctx, "u1", true)
	if len(unread) != 1 {
		t.Errorf("unread after MarkRead = %d; want 1", len(unread))
	}

	if err := svc.MarkAllRead(ctx, "u1"); err != nil {
		t.Fatalf("MarkAllRead() error = %v", err)
	}
	unread, _ = svc.QueryByUser(ctx, "u1", true)
	if len(unread) != 0 {
		t.Errorf("unread after MarkAllRead = %d; want 0", len(unread))
	}

	// the other user's row is untouched
	u2, _ := svc.QueryByUser(ctx, "u2", true)
	if len(u2) != 1 {
		t.Errorf("u2 unread = %d; want 1", len(u2))
	}
}
