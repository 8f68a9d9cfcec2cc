package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elimulabs/elimu/core/leaderboard"
	"github.com/elimulabs/elimu/core/user"
)

func setupLeaderboardAPI(t *testing.T) http.Handler {
	t.Helper()

	app, v1, jwt := initApp()
	svc := &fakeLeaderboardSvc{entries: []leaderboard.Entry{
		{Rank: 1, UserID: "u1", Username: "awesome", XP: 2500, Level: 3, Streak: 9},
		{Rank: 2, UserID: "u2", Username: "runnerup", XP: 1800, Level: 2, Streak: 4},
		{Rank: 3, UserID: "u3", Username: "third", XP: 900, Level: 1, Streak: 1},
	}}
	RegisterLeaderboardAPI(v1, jwt, svc)
	return app
}

func TestLeaderboardTop(t *testing.T) {
	usr := user.User{ID: "u9", Username: "viewer", Roles: []string{user.RoleLearner}}
	app := setupLeaderboardAPI(t)

	t.Run("full board", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/leaderboard", getToken(t, usr))
		app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var entries []leaderboard.Entry
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
		require.Len(t, entries, 3)
		assert.Equal(t, 1, entries[0].Rank)
		assert.Equal(t, "awesome", entries[0].Username)
	})

	t.Run("limit is honored", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/leaderboard?limit=2", getToken(t, usr))
		app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var entries []leaderboard.Entry
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
		assert.Len(t, entries, 2)
	})
}

func TestLeaderboardMyRank(t *testing.T) {
	app := setupLeaderboardAPI(t)

	t.Run("ranked user", func(t *testing.T) {
		usr := user.User{ID: "u2", Username: "runnerup", Roles: []string{user.RoleLearner}}
		req, rec := newAuthRequest(http.MethodGet, "/v1/leaderboard/me", getToken(t, usr))
		app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp MyRankResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Ranked)
		assert.Equal(t, 2, resp.Rank)
	})

	t.Run("user outside the board", func(t *testing.T) {
		usr := user.User{ID: "u9", Username: "viewer", Roles: []string{user.RoleLearner}}
		req, rec := newAuthRequest(http.MethodGet, "/v1/leaderboard/me", getToken(t, usr))
		app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp MyRankResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Ranked)
		assert.Zero(t, resp.Rank)
	})
}
