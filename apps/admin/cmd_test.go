package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/elimulabs/elimu/core"
	"github.com/elimulabs/elimu/core/gamify"
	"github.com/elimulabs/elimu/core/user"
)

func setup(t *testing.T) (*commandLine, *memUserRepo, *memGamifySvc) {
	t.Helper()

	usrRepo := &memUserRepo{users: make(map[string]user.User)}
	gamifySvc := &memGamifySvc{profiles: make(map[string]gamify.Profile)}
	cli := &commandLine{
		usrRepo:   usrRepo,
		gamifySvc: gamifySvc,
	}
	return cli, usrRepo, gamifySvc
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, _ := setup(t)

	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s requires VERSION", command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create requires NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to requires VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create requires NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			checkCLIErr(t, cli.run(args), tt)
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, usrRepo, _ := setup(t)

	usr := usrRepo.addUser(t, "awe", "awe@test.cd")

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "mdr"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		var pwd string
		if ext, ok := tt.extra.(extra); ok {
			pwd = ext.pwd
		}
		readPasswordFunc = func(fd int) ([]byte, error) { return []byte(pwd), nil }

		t.Run(tt.name, func(t *testing.T) {
			checkCLIErr(t, cli.run(args), tt)

			if tt.wantErr == nil && tt.wantErrStr == "" {
				updated, err := usrRepo.GetUserByUsernameOrEmail(context.Background(), usr.Username)
				if err != nil {
					t.Fatalf("GetUserByUsernameOrEmail() failed: %v", err)
				}
				if err := updated.CheckPassword(pwd); err != nil {
					t.Errorf("CheckPassword(%q) failed: %v", pwd, err)
				}
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, usrRepo, gamifySvc := setup(t)

	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("LordOfTheRings"), nil }

	t.Run("creates a learner with a profile", func(t *testing.T) {
		err := cli.run([]string{"admin", "adduser", "-username", "newbie", "-email", "newbie@test.cd"})
		if err != nil {
			t.Fatalf("cli.run() unexpected error = %v", err)
		}

		usr, err := usrRepo.GetUserByUsernameOrEmail(context.Background(), "newbie")
		if err != nil {
			t.Fatalf("user was not created: %v", err)
		}
		if !usr.IsLearner() || usr.IsAdmin() {
			t.Errorf("roles = %v; want learner only", usr.Roles)
		}
		if _, ok := gamifySvc.profiles[usr.ID]; !ok {
			t.Error("profile was not created")
		}
	})

	t.Run("promotes an existing user to admin", func(t *testing.T) {
		err := cli.run([]string{"admin", "adduser", "-username", "newbie", "-email", "newbie@test.cd", "-admin"})
		if err != nil {
			t.Fatalf("cli.run() unexpected error = %v", err)
		}

		usr, _ := usrRepo.GetUserByUsernameOrEmail(context.Background(), "newbie")
		if !usr.IsAdmin() {
			t.Errorf("roles = %v; want admin", usr.Roles)
		}
		if len(usrRepo.users) != 1 {
			t.Errorf("user count = %d; want 1 (update, not create)", len(usrRepo.users))
		}
	})

	t.Run("missing email", func(t *testing.T) {
		err := cli.run([]string{"admin", "adduser", "-username", "nomail"})
		if err != errHelp {
			t.Errorf("cli.run() error = %v, wantErr %v", err, errHelp)
		}
	})
}

func Test_commandLine_awardXP(t *testing.T) {
	cli, usrRepo, gamifySvc := setup(t)

	usr := usrRepo.addUser(t, "awe", "awe@test.cd")

	tests := []cliTest{
		{name: "no username", args: []string{"awardxp", "-xp", "50"}, wantErr: errHelp},
		{name: "no xp", args: []string{"awardxp", "-username", "awe"}, wantErr: errHelp},
		{name: "user not found", args: []string{"awardxp", "-username", "lol", "-xp", "50"}, wantErr: user.ErrNotFound},
		{name: "award", args: []string{"awardxp", "-username", "awe", "-xp", "50", "-points", "10"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			checkCLIErr(t, cli.run(args), tt)
		})
	}

	p := gamifySvc.profiles[usr.ID]
	if p.XP != 50 {
		t.Errorf("XP = %d; want 50", p.XP)
	}
	if p.RewardPoints != 10 {
		t.Errorf("RewardPoints = %d; want 10", p.RewardPoints)
	}
}

func checkCLIErr(t *testing.T, err error, tt cliTest) {
	t.Helper()
	if err != nil {
		if tt.wantErr != nil {
			if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		} else if tt.wantErrStr != "" {
			if err.Error() != tt.wantErrStr {
				t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
			}
		} else {
			t.Errorf("cli.run() unexpected error = %v", err)
		}
	} else if tt.wantErr != nil || tt.wantErrStr != "" {
		t.Errorf("cli.run() error = nil, want %v%s", tt.wantErr, tt.wantErrStr)
	}
}

// in-memory doubles

type memUserRepo struct {
	users map[string]user.User
}

var _ user.Repository = (*memUserRepo)(nil)

func (repo *memUserRepo) addUser(t *testing.T, uname, email string) user.User {
	t.Helper()
	usr := user.User{
		ID:       uuid.New().String(),
		Name:     uname,
		Username: uname,
		Email:    email,
		IsActive: true,
		Roles:    []string{user.RoleLearner},
	}
	repo.users[usr.ID] = usr
	return usr
}

func (repo *memUserRepo) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	return nil
}

func (repo *memUserRepo) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	repo.users[usr.ID] = usr
	return usr, nil
}

func (repo *memUserRepo) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	users := make([]user.User, 0, len(repo.users))
	for _, usr := range repo.users {
		users = append(users, usr)
	}
	return users, nil
}

func (repo *memUserRepo) GetUserByID(ctx context.Context, id string, exec ...core.DBExecutor) (user.User, error) {
	if usr, ok := repo.users[id]; ok {
		return usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *memUserRepo) GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (user.User, error) {
	for _, usr := range repo.users {
		if usr.Email == email {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *memUserRepo) GetUserByUsernameOrEmail(ctx context.Context, username string, exec ...core.DBExecutor) (user.User, error) {
	for _, usr := range repo.users {
		if usr.Username == username || usr.Email == username {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *memUserRepo) UpdateUser(ctx context.Context, usr user.User, isActive *bool, exec ...core.DBExecutor) (user.User, error) {
	orig, ok := repo.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if isActive != nil {
		orig.IsActive = *isActive
	}
	orig.Roles = usr.Roles
	orig.PasswordHash = usr.PasswordHash
	orig.UpdatedAt = usr.UpdatedAt
	repo.users[usr.ID] = orig
	return orig, nil
}

func (repo *memUserRepo) SetLastLogin(ctx context.Context, id string, tm time.Time, exec ...core.DBExecutor) error {
	return nil
}

func (repo *memUserRepo) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	for _, id := range ids {
		delete(repo.users, id)
	}
	return nil
}

type memGamifySvc struct {
	profiles map[string]gamify.Profile
}

var _ gamify.Service = (*memGamifySvc)(nil)

func (svc *memGamifySvc) EnsureProfile(ctx context.Context, userID string) (gamify.Profile, error) {
	if p, ok := svc.profiles[userID]; ok {
		return p, nil
	}
	p := gamify.Profile{UserID: userID, Level: 1, ReferralCode: gamify.NewReferralCode()}
	svc.profiles[userID] = p
	return p, nil
}

func (svc *memGamifySvc) Get(ctx context.Context, userID string) (gamify.Profile, error) {
	if p, ok := svc.profiles[userID]; ok {
		return p, nil
	}
	return gamify.Profile{}, gamify.ErrNotFound
}

func (svc *memGamifySvc) GetByReferralCode(ctx context.Context, code string) (gamify.Profile, error) {
	for _, p := range svc.profiles {
		if p.ReferralCode == code {
			return p, nil
		}
	}
	return gamify.Profile{}, gamify.ErrNotFound
}

func (svc *memGamifySvc) ResolveReferralCode(ctx context.Context, code string) (string, error) {
	p, err := svc.GetByReferralCode(ctx, code)
	if err != nil {
		return "", err
	}
	return p.UserID, nil
}

func (svc *memGamifySvc) DailyCheckIn(ctx context.Context, userID string) (gamify.CheckInResult, error) {
	return gamify.CheckInResult{}, nil
}

func (svc *memGamifySvc) AwardXP(ctx context.Context, userID string, xp, points int, reason string) (gamify.Profile, error) {
	p, ok := svc.profiles[userID]
	if !ok {
		return gamify.Profile{}, gamify.ErrNotFound
	}
	p.XP += xp
	p.RewardPoints += points
	svc.profiles[userID] = p
	return p, nil
}
