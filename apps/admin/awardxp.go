package main

import (
	"context"

	"github.com/elimulabs/elimu/core"
)

// awardXP grants a manual XP (and optionally points) adjustment,
// creating the profile on the fly for accounts that never logged in.
func (cli *commandLine) awardXP(uname string, xp, points int, reason string) error {
	ctx := context.Background()
	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(ctx, core.CleanString(uname, true /* lower */))
	if err != nil {
		return err
	}
	if _, err := cli.gamifySvc.EnsureProfile(ctx, usr.ID); err != nil {
		return err
	}
	_, err = cli.gamifySvc.AwardXP(ctx, usr.ID, xp, points, reason)
	return err
}
