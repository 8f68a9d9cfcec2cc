package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"

	"github.com/elimulabs/elimu/apps/api/echo/helpers"
	"github.com/elimulabs/elimu/core"
	"github.com/elimulabs/elimu/core/course"
	"github.com/elimulabs/elimu/core/gamify"
	"github.com/elimulabs/elimu/core/leaderboard"
	"github.com/elimulabs/elimu/core/notification"
	"github.com/elimulabs/elimu/core/referral"
	"github.com/elimulabs/elimu/core/user"
	"github.com/elimulabs/elimu/core/wallet"
)

var (
	appName                   = "Elimu"
	secretKey                 = []byte("secret")
	jwtExpirationDelta        = 10 * time.Minute
	jwtRefreshExpirationDelta = 4 * time.Hour

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func initApp() (*echo.Echo, *echo.Group, echo.MiddlewareFunc) {
	app := echo.New()
	app.Pre(middleware.RemoveTrailingSlash())
	app.HTTPErrorHandler = helpers.NewAppHTTPErrorHandler(nopLogger{}, func() {})
	v1 := app.Group("/v1")
	jwt := helpers.ConfigureAuth(appName, secretKey, jwtExpirationDelta, jwtRefreshExpirationDelta)
	return app, v1, jwt
}

func getToken(t *testing.T, usr user.User) string {
	claims := helpers.GetUserClaims(usr)
	token, err := helpers.GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

// ------------------------------------------------------------------
// in-memory service fakes
// ------------------------------------------------------------------

type fakeUserSvc struct {
	mu    sync.Mutex
	users map[string]user.User
}

var _ user.Service = (*fakeUserSvc)(nil)

func newFakeUserSvc(users ...user.User) *fakeUserSvc {
	svc := &fakeUserSvc{users: make(map[string]user.User)}
	for _, usr := range users {
		svc.users[usr.ID] = usr
	}
	return svc
}

func (svc *fakeUserSvc) CheckUniqueness(uname, email string, exclUsers ...user.User) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
outer:
	for _, usr := range svc.users {
		for _, excl := range exclUsers {
			if usr.ID == excl.ID {
				continue outer
			}
		}
		if (uname != "" && usr.Username == uname) || (email != "" && usr.Email == email) {
			return core.NewValidationError(user.ErrUserExists,
				core.FieldError{Field: "username", Error: user.ErrUserExists.Error()},
				core.FieldError{Field: "email", Error: user.ErrUserExists.Error()},
			)
		}
	}
	return nil
}

func (svc *fakeUserSvc) Create(ctx context.Context, nu user.NewUser) (user.User, error) {
	usr := user.User{
		ID:       uuid.New().String(),
		Name:     nu.Name,
		Username: nu.Username,
		Email:    nu.Email,
		IsActive: true,
		Roles:    nu.Roles,
	}
	if len(usr.Roles) == 0 {
		usr.Roles = []string{user.RoleLearner}
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return user.User{}, err
	}
	svc.mu.Lock()
	svc.users[usr.ID] = usr
	svc.mu.Unlock()
	return usr, nil
}

func (svc *fakeUserSvc) Query(ctx context.Context, filter *user.QueryFilter) ([]user.User, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	users := make([]user.User, 0, len(svc.users))
	for _, usr := range svc.users {
		users = append(users, usr)
	}
	return users, nil
}

func (svc *fakeUserSvc) GetByID(ctx context.Context, id string) (user.User, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if usr, ok := svc.users[id]; ok {
		return usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (svc *fakeUserSvc) GetByEmail(ctx context.Context, email string) (user.User, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	for _, usr := range svc.users {
		if usr.Email == email {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (svc *fakeUserSvc) GetByUsernameOrEmail(ctx context.Context, uname string) (user.User, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	for _, usr := range svc.users {
		if usr.Username == uname || usr.Email == uname {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (svc *fakeUserSvc) Update(ctx context.Context, id string, uu user.UpdateUser) (user.User, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	usr, ok := svc.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	usr.Name = uu.Name
	usr.Username = uu.Username
	usr.Email = uu.Email
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Roles != nil {
		usr.Roles = uu.Roles
	}
	svc.users[id] = usr
	return usr, nil
}

func (svc *fakeUserSvc) RecordLogin(ctx context.Context, usr user.User) error { return nil }

func (svc *fakeUserSvc) RequestPasswordReset(ctx context.Context, email string) error {
	_, err := svc.GetByEmail(ctx, email)
	return err
}

func (svc *fakeUserSvc) ResetPassword(ctx context.Context, rp user.ResetUserPassword) error {
	return nil
}

func (svc *fakeUserSvc) Delete(ctx context.Context, ids ...string) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	for _, id := range ids {
		delete(svc.users, id)
	}
	return nil
}

type fakeGamifySvc struct {
	mu       sync.Mutex
	profiles map[string]gamify.Profile
	checkIn  gamify.CheckInResult
}

var _ gamify.Service = (*fakeGamifySvc)(nil)

func newFakeGamifySvc() *fakeGamifySvc {
	return &fakeGamifySvc{profiles: make(map[string]gamify.Profile)}
}

func (svc *fakeGamifySvc) EnsureProfile(ctx context.Context, userID string) (gamify.Profile, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if p, ok := svc.profiles[userID]; ok {
		return p, nil
	}
	p := gamify.Profile{UserID: userID, Level: 1, ReferralCode: gamify.NewReferralCode()}
	svc.profiles[userID] = p
	return p, nil
}

func (svc *fakeGamifySvc) Get(ctx context.Context, userID string) (gamify.Profile, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if p, ok := svc.profiles[userID]; ok {
		return p, nil
	}
	return gamify.Profile{}, gamify.ErrNotFound
}

func (svc *fakeGamifySvc) GetByReferralCode(ctx context.Context, code string) (gamify.Profile, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	for _, p := range svc.profiles {
		if p.ReferralCode == code {
			return p, nil
		}
	}
	return gamify.Profile{}, gamify.ErrNotFound
}

func (svc *fakeGamifySvc) ResolveReferralCode(ctx context.Context, code string) (string, error) {
	p, err := svc.GetByReferralCode(ctx, code)
	if err != nil {
		return "", err
	}
	return p.UserID, nil
}

func (svc *fakeGamifySvc) DailyCheckIn(ctx context.Context, userID string) (gamify.CheckInResult, error) {
	return svc.checkIn, nil
}

func (svc *fakeGamifySvc) AwardXP(ctx context.Context, userID string, xp, points int, reason string) (gamify.Profile, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	p := svc.profiles[userID]
	p.UserID = userID
	p.XP += xp
	p.RewardPoints += points
	svc.profiles[userID] = p
	return p, nil
}

type fakeReferralSvc struct {
	applyResult referral.ApplyResult
	applyErr    error
	summary     referral.Summary

	appliedCodes []string
}

var _ referral.Service = (*fakeReferralSvc)(nil)

func (svc *fakeReferralSvc) Apply(ctx context.Context, code, userID string) (referral.ApplyResult, error) {
	if svc.applyErr != nil {
		return referral.ApplyResult{}, svc.applyErr
	}
	svc.appliedCodes = append(svc.appliedCodes, code)
	return svc.applyResult, nil
}

func (svc *fakeReferralSvc) Summarize(ctx context.Context, userID, code string) (referral.Summary, error) {
	return svc.summary, nil
}

type fakeWalletSvc struct {
	mu      sync.Mutex
	balance map[string]int
	history map[string][]wallet.Transaction
}

var _ wallet.Service = (*fakeWalletSvc)(nil)

func newFakeWalletSvc() *fakeWalletSvc {
	return &fakeWalletSvc{balance: make(map[string]int), history: make(map[string][]wallet.Transaction)}
}

func (svc *fakeWalletSvc) Record(ctx context.Context, userID string, amount int, description string) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.balance[userID] += amount
	svc.history[userID] = append(svc.history[userID], wallet.Transaction{
		ID:          uuid.New().String(),
		UserID:      userID,
		Amount:      amount,
		Kind:        wallet.KindForAmount(amount),
		Description: description,
	})
	return nil
}

func (svc *fakeWalletSvc) Spend(ctx context.Context, userID string, amount int, description string) error {
	svc.mu.Lock()
	if svc.balance[userID] < amount {
		svc.mu.Unlock()
		return wallet.ErrInsufficientPoints
	}
	svc.mu.Unlock()
	return svc.Record(ctx, userID, -amount, description)
}

func (svc *fakeWalletSvc) History(ctx context.Context, userID string, limit int) ([]wallet.Transaction, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	txns := svc.history[userID]
	if len(txns) > limit {
		txns = txns[len(txns)-limit:]
	}
	return txns, nil
}

func (svc *fakeWalletSvc) Balance(ctx context.Context, userID string) (int, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.balance[userID], nil
}

type fakeLeaderboardSvc struct {
	entries []leaderboard.Entry
}

var _ leaderboard.Service = (*fakeLeaderboardSvc)(nil)

func (svc *fakeLeaderboardSvc) Top(ctx context.Context, limit int) ([]leaderboard.Entry, error) {
	if len(svc.entries) > limit {
		return svc.entries[:limit], nil
	}
	return svc.entries, nil
}

func (svc *fakeLeaderboardSvc) RankOf(ctx context.Context, userID string) (int, bool, error) {
	for _, e := range svc.entries {
		if e.UserID == userID {
			return e.Rank, true, nil
		}
	}
	return 0, false, nil
}

func (svc *fakeLeaderboardSvc) Refresh(ctx context.Context) error { return nil }

func (svc *fakeLeaderboardSvc) Run(ctx context.Context, sub leaderboard.Subscriber) error { return nil }

type fakeNotificationSvc struct {
	mu    sync.Mutex
	sent  []notification.Notification
	byIDs map[string][]string // userID -> ids marked read
}

var _ notification.Service = (*fakeNotificationSvc)(nil)

func newFakeNotificationSvc() *fakeNotificationSvc {
	return &fakeNotificationSvc{byIDs: make(map[string][]string)}
}

func (svc *fakeNotificationSvc) Notify(ctx context.Context, userID, kind, title, body string) (notification.Notification, error) {
	notif := notification.Notification{
		ID:     uuid.New().String(),
		UserID: userID,
		Kind:   kind,
		Title:  title,
		Body:   body,
	}
	svc.mu.Lock()
	svc.sent = append(svc.sent, notif)
	svc.mu.Unlock()
	return notif, nil
}

func (svc *fakeNotificationSvc) QueryByUser(ctx context.Context, userID string, unreadOnly bool) ([]notification.Notification, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	var notifs []notification.Notification
	for _, n := range svc.sent {
		if n.UserID == userID && (!unreadOnly || !n.Read) {
			notifs = append(notifs, n)
		}
	}
	return notifs, nil
}

func (svc *fakeNotificationSvc) MarkRead(ctx context.Context, userID string, ids []string) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.byIDs[userID] = append(svc.byIDs[userID], ids...)
	for i, n := range svc.sent {
		for _, id := range ids {
			if n.UserID == userID && n.ID == id {
				svc.sent[i].Read = true
			}
		}
	}
	return nil
}

func (svc *fakeNotificationSvc) MarkAllRead(ctx context.Context, userID string) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	for i, n := range svc.sent {
		if n.UserID == userID {
			svc.sent[i].Read = true
		}
	}
	return nil
}

type fakeCourseSvc struct {
	mu          sync.Mutex
	courses     map[string]course.Course
	enrollments map[string]course.Enrollment // userID|courseID
	completed   []string
	quizPasses  []string
	analytics   course.Analytics
}

var _ course.Service = (*fakeCourseSvc)(nil)

func newFakeCourseSvc(courses ...course.Course) *fakeCourseSvc {
	svc := &fakeCourseSvc{
		courses:     make(map[string]course.Course),
		enrollments: make(map[string]course.Enrollment),
	}
	for _, crs := range courses {
		svc.courses[crs.ID] = crs
	}
	return svc
}

func enrollKey(userID, courseID string) string { return userID + "|" + courseID }

func (svc *fakeCourseSvc) Create(ctx context.Context, nc course.NewCourse) (course.Course, error) {
	if err := core.Validate.StructCtx(ctx, nc); err != nil {
		return course.Course{}, err
	}
	crs := nc.Course()
	crs.ID = uuid.New().String()
	svc.mu.Lock()
	svc.courses[crs.ID] = crs
	svc.mu.Unlock()
	return crs, nil
}

func (svc *fakeCourseSvc) Browse(ctx context.Context, ordering []core.DBOrdering) ([]course.Course, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	courses := make([]course.Course, 0, len(svc.courses))
	for _, crs := range svc.courses {
		courses = append(courses, crs)
	}
	return courses, nil
}

func (svc *fakeCourseSvc) Get(ctx context.Context, id string) (course.Course, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if crs, ok := svc.courses[id]; ok {
		return crs, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (svc *fakeCourseSvc) Enroll(ctx context.Context, userID, courseID string) (course.Enrollment, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if _, ok := svc.courses[courseID]; !ok {
		return course.Enrollment{}, course.ErrNotFound
	}
	key := enrollKey(userID, courseID)
	if _, ok := svc.enrollments[key]; ok {
		return course.Enrollment{}, course.ErrAlreadyEnrolled
	}
	enr := course.Enrollment{ID: uuid.New().String(), UserID: userID, CourseID: courseID}
	svc.enrollments[key] = enr
	return enr, nil
}

func (svc *fakeCourseSvc) MyEnrollments(ctx context.Context, userID string) ([]course.Enrollment, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	var enrs []course.Enrollment
	for _, enr := range svc.enrollments {
		if enr.UserID == userID {
			enrs = append(enrs, enr)
		}
	}
	return enrs, nil
}

func (svc *fakeCourseSvc) UpdateProgress(ctx context.Context, userID, courseID string, progress int) (course.Enrollment, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	key := enrollKey(userID, courseID)
	enr, ok := svc.enrollments[key]
	if !ok {
		return course.Enrollment{}, course.ErrNotEnrolled
	}
	if enr.IsCompleted() {
		return course.Enrollment{}, course.ErrAlreadyCompleted
	}
	if progress > enr.Progress {
		enr.Progress = progress
	}
	if enr.Progress >= 100 {
		enr.CompletedAt.SetValid(time.Now().UTC())
		svc.completed = append(svc.completed, key)
	}
	svc.enrollments[key] = enr
	return enr, nil
}

func (svc *fakeCourseSvc) PassQuiz(ctx context.Context, userID, courseID string) (course.Enrollment, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	key := enrollKey(userID, courseID)
	enr, ok := svc.enrollments[key]
	if !ok {
		return course.Enrollment{}, course.ErrNotEnrolled
	}
	if !enr.QuizPassed() {
		enr.QuizPassedAt.SetValid(time.Now().UTC())
		svc.enrollments[key] = enr
		svc.quizPasses = append(svc.quizPasses, key)
	}
	return enr, nil
}

func (svc *fakeCourseSvc) Complete(ctx context.Context, userID, courseID string) (course.Enrollment, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	key := enrollKey(userID, courseID)
	enr, ok := svc.enrollments[key]
	if !ok {
		return course.Enrollment{}, course.ErrNotEnrolled
	}
	if enr.IsCompleted() {
		return course.Enrollment{}, course.ErrAlreadyCompleted
	}
	enr.Progress = 100
	enr.CompletedAt.SetValid(time.Now().UTC())
	svc.enrollments[key] = enr
	svc.completed = append(svc.completed, key)
	return enr, nil
}

func (svc *fakeCourseSvc) Certificate(ctx context.Context, userID, courseID string) (course.Certificate, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	enr, ok := svc.enrollments[enrollKey(userID, courseID)]
	if !ok || !enr.IsCompleted() {
		return course.Certificate{}, course.ErrNotEnrolled
	}
	crs := svc.courses[courseID]
	return course.Certificate{
		ID:          course.CertificateID(courseID, enr.CompletedAt.Time),
		UserID:      userID,
		CourseID:    courseID,
		CourseTitle: crs.Title,
		CompletedAt: enr.CompletedAt.Time,
	}, nil
}

func (svc *fakeCourseSvc) Stats(ctx context.Context) (course.Analytics, error) {
	return svc.analytics, nil
}
