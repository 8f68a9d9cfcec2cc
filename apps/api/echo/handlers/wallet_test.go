package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elimulabs/elimu/core/user"
	"github.com/elimulabs/elimu/core/wallet"
)

func setupWalletAPI(t *testing.T) (*fakeWalletSvc, http.Handler) {
	t.Helper()

	app, v1, jwt := initApp()
	walletSvc := newFakeWalletSvc()
	RegisterWalletAPI(v1, jwt, walletSvc)
	return walletSvc, app
}

func TestWalletBalance(t *testing.T) {
	usr := user.User{ID: "u1", Username: "awesome", Roles: []string{user.RoleLearner}}

	walletSvc, app := setupWalletAPI(t)
	require.NoError(t, walletSvc.Record(nil, "u1", 150, "daily login bonus"))

	req, rec := newAuthRequest(http.MethodGet, "/v1/wallet", getToken(t, usr))
	app.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp BalanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 150, resp.Balance)
}

func TestWalletHistory(t *testing.T) {
	usr := user.User{ID: "u1", Username: "awesome", Roles: []string{user.RoleLearner}}

	walletSvc, app := setupWalletAPI(t)
	require.NoError(t, walletSvc.Record(nil, "u1", 100, "referral bonus"))
	require.NoError(t, walletSvc.Record(nil, "u1", -30, "avatar frame"))

	req, rec := newAuthRequest(http.MethodGet, "/v1/wallet/transactions", getToken(t, usr))
	app.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var txns []wallet.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txns))
	require.Len(t, txns, 2)
	assert.Equal(t, wallet.KindEarning, txns[0].Kind)
	assert.Equal(t, wallet.KindSpending, txns[1].Kind)
}

func TestWalletSpend(t *testing.T) {
	usr := user.User{ID: "u1", Username: "awesome", Roles: []string{user.RoleLearner}}

	t.Run("spend within balance", func(t *testing.T) {
		walletSvc, app := setupWalletAPI(t)
		require.NoError(t, walletSvc.Record(nil, "u1", 100, "referral bonus"))

		body := marchallObj(t, map[string]interface{}{"amount": 40, "description": "avatar frame"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/wallet/spend", getToken(t, usr), body)
		app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp BalanceResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 60, resp.Balance)
	})

	t.Run("overdraft is rejected", func(t *testing.T) {
		walletSvc, app := setupWalletAPI(t)
		require.NoError(t, walletSvc.Record(nil, "u1", 10, "daily login bonus"))

		body := marchallObj(t, map[string]interface{}{"amount": 40, "description": "avatar frame"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/wallet/spend", getToken(t, usr), body)
		app.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		balance, _ := walletSvc.Balance(nil, "u1")
		assert.Equal(t, 10, balance)
	})

	t.Run("amount must be positive", func(t *testing.T) {
		_, app := setupWalletAPI(t)

		body := marchallObj(t, map[string]interface{}{"amount": -5, "description": "nope"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/wallet/spend", getToken(t, usr), body)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
