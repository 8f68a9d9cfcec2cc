package notification

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/elimulabs/elimu/core"
	"github.com/elimulabs/elimu/core/user"
)

var ErrNotFound = errors.New("notification not found")

// emailKinds are also delivered to the user's inbox; streaks and other
// nudges stay in-app only.
var emailKinds = map[string]bool{
	KindReferral: true,
	KindCourse:   true,
}

type (
	Repository interface {
		CreateNotification(ctx context.Context, n Notification, exec ...core.DBExecutor) (Notification, error)
		QueryNotificationsByUser(ctx context.Context, userID string, unreadOnly bool, exec ...core.DBExecutor) ([]Notification, error)
		// MarkNotificationsRead flags the given IDs read for userID;
		// IDs belonging to someone else are ignored.
		MarkNotificationsRead(ctx context.Context, userID string, ids []string, exec ...core.DBExecutor) error
		MarkAllNotificationsRead(ctx context.Context, userID string, exec ...core.DBExecutor) error
	}

	// Directory resolves the account behind a notification for email
	// delivery. Satisfied by the user service.
	Directory interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service interface {
		Notify(ctx context.Context, userID, kind, title, body string) (Notification, error)
		QueryByUser(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error)
		MarkRead(ctx context.Context, userID string, ids []string) error
		MarkAllRead(ctx context.Context, userID string) error
	}

	service struct {
		repo      Repository
		directory Directory
		mailSvc   core.EmailService
		logger    core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, directory Directory, mailSvc core.EmailService, logger core.Logger) Service {
	return &service{repo: repo, directory: directory, mailSvc: mailSvc, logger: logger}
}

func (svc *service) Notify(ctx context.Context, userID, kind, title, body string) (Notification, error) {
	n := Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Kind:      kind,
		Title:     core.CleanString(title),
		Body:      core.CleanString(body),
		CreatedAt: time.Now().UTC(),
	}
	n, err := svc.repo.CreateNotification(ctx, n)
	if err != nil {
		return Notification{}, err
	}

	if emailKinds[n.Kind] {
		svc.sendMail(ctx, n)
	}
	return n, nil
}

// sendMail mirrors an e-mailable notification to the user's inbox.
// Delivery is best-effort; the in-app record already exists.
func (svc *service) sendMail(ctx context.Context, n Notification) {
	usr, err := svc.directory.GetByID(ctx, n.UserID)
	if err != nil {
		svc.logger.Error("notification: resolving recipient", err)
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: n.Title,
		BodyStr: n.Body,
	})
}

func (svc *service) QueryByUser(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error) {
	return svc.repo.QueryNotificationsByUser(ctx, userID, unreadOnly)
}

func (svc *service) MarkRead(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return svc.repo.MarkNotificationsRead(ctx, userID, ids)
}

func (svc *service) MarkAllRead(ctx context.Context, userID string) error {
	return svc.repo.MarkAllNotificationsRead(ctx, userID)
}
