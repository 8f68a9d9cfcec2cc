package main

import (
	"context"
	"time"

	"github.com/elimulabs/elimu/core"
	"github.com/elimulabs/elimu/core/user"
)

// addUser updates or creates a user.User, then makes sure its
// gamification profile exists.
func (cli *commandLine) addUser(uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	now := time.Now().UTC()
	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(ctx, uname)
	if err != nil {
		if err != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Name:      uname,
			Username:  uname,
			Email:     email,
			Roles:     []string{user.RoleLearner},
			CreatedAt: now,
		}
	}
	if isAdmin {
		usr.Roles = user.AllRoles
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}

	if usr.ID == "" {
		if usr, err = cli.usrRepo.CreateUser(ctx, usr); err != nil {
			return err
		}
	} else {
		isActive := true
		if usr, err = cli.usrRepo.UpdateUser(ctx, usr, &isActive); err != nil {
			return err
		}
	}

	_, err = cli.gamifySvc.EnsureProfile(ctx, usr.ID)
	return err
}
