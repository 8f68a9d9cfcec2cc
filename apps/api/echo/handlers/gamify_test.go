package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elimulabs/elimu/core/gamify"
	"github.com/elimulabs/elimu/core/notification"
	"github.com/elimulabs/elimu/core/user"
)

func setupGamifyAPI(t *testing.T) (*fakeGamifySvc, *fakeNotificationSvc, http.Handler) {
	t.Helper()

	app, v1, jwt := initApp()
	gamifySvc := newFakeGamifySvc()
	notifSvc := newFakeNotificationSvc()
	RegisterGamifyAPI(v1, jwt, gamifySvc, notifSvc, nopLogger{})
	return gamifySvc, notifSvc, app
}

func TestGamifyProfile(t *testing.T) {
	usr := user.User{ID: "u1", Username: "awesome", Roles: []string{user.RoleLearner}}
	_, _, app := setupGamifyAPI(t)

	req, rec := newAuthRequest(http.MethodGet, "/v1/gamify/profile", getToken(t, usr))
	app.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var profile gamify.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, "u1", profile.UserID)
	assert.Equal(t, 1, profile.Level)
	assert.NotEmpty(t, profile.ReferralCode)
}

func TestGamifyCheckIn(t *testing.T) {
	usr := user.User{ID: "u1", Username: "awesome", Roles: []string{user.RoleLearner}}

	t.Run("credited check-in", func(t *testing.T) {
		gamifySvc, notifSvc, app := setupGamifyAPI(t)
		gamifySvc.checkIn = gamify.CheckInResult{
			Credited:    true,
			Streak:      2,
			BonusXP:     gamify.LoginBonusXP,
			BonusPoints: gamify.LoginBonusPoints,
		}

		req, rec := newAuthRequest(http.MethodPost, "/v1/gamify/check-in", getToken(t, usr))
		app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res gamify.CheckInResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.True(t, res.Credited)
		assert.Equal(t, gamify.LoginBonusXP, res.BonusXP)

		// 2 days is not a milestone
		assert.Empty(t, notifSvc.sent)
	})

	t.Run("milestone streak notifies", func(t *testing.T) {
		gamifySvc, notifSvc, app := setupGamifyAPI(t)
		gamifySvc.checkIn = gamify.CheckInResult{Credited: true, Streak: 7}

		req, rec := newAuthRequest(http.MethodPost, "/v1/gamify/check-in", getToken(t, usr))
		app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, notifSvc.sent, 1)
		assert.Equal(t, notification.KindStreak, notifSvc.sent[0].Kind)
		assert.Equal(t, "u1", notifSvc.sent[0].UserID)
	})

	t.Run("second check-in of the day stays quiet", func(t *testing.T) {
		gamifySvc, notifSvc, app := setupGamifyAPI(t)
		gamifySvc.checkIn = gamify.CheckInResult{Credited: false, Streak: 7}

		req, rec := newAuthRequest(http.MethodPost, "/v1/gamify/check-in", getToken(t, usr))
		app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, notifSvc.sent)
	})
}
