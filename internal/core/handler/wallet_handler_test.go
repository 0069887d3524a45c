package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Nzyazin/walletd/internal/core/handler"
	"github.com/Nzyazin/walletd/internal/core/logger"
	"github.com/Nzyazin/walletd/internal/core/middleware"
	"github.com/Nzyazin/walletd/internal/core/models"
	"github.com/Nzyazin/walletd/internal/core/repository/memory"
	"github.com/Nzyazin/walletd/internal/core/response"
	"github.com/Nzyazin/walletd/internal/core/usecase"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokens map[string]models.Session

func (t tokens) Verify(token string) (models.Session, error) {
	s, ok := t[token]
	if !ok {
		return models.Session{}, errors.New("unknown token")
	}
	return s, nil
}

type testEnv struct {
	store  *memory.Store
	tokens tokens
	router *mux.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.NewNop()
	store := memory.NewStore()
	d := usecase.Deps{Store: store, Log: log}

	h := handler.NewWalletHandler(
		usecase.NewWalletUsecase(d),
		usecase.NewSavingsUsecase(d),
		usecase.NewCardUsecase(d),
		usecase.NewSnapshotUsecase(store, log),
		log,
	)

	env := &testEnv{store: store, tokens: tokens{}, router: mux.NewRouter()}
	api := env.router.PathPrefix("/functions/v1").Subrouter()
	api.Use(middleware.Authenticate(env.tokens, log))
	h.RegisterRoutes(api)
	return env
}

func (e *testEnv) user(name string) (models.Session, string) {
	s := models.Session{UserID: uuid.New(), Email: name + "@example.com"}
	e.store.PutProfile(models.Profile{UserID: s.UserID, FullName: name, Email: s.Email})
	token := "token-" + name
	e.tokens[token] = s
	return s, token
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, "/functions/v1"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) response.ErrorBody {
	t.Helper()
	var body response.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestDeposit(t *testing.T) {
	env := newTestEnv(t)
	alice, token := env.user("alice")
	w := env.store.PutWallet(models.Wallet{UserID: alice.UserID, CurrencyCode: "MWK", Balance: decimal.NewFromInt(50)})

	rec := env.do(http.MethodPost, "/wallet-deposit", token, map[string]interface{}{
		"walletId":      w.ID,
		"amount":        100,
		"currency":      "MWK",
		"paymentMethod": "mobile_money",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body handler.TransactionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	require.NotNil(t, body.Transaction)
	assert.Equal(t, models.TransactionDeposit, body.Transaction.Type)
	assert.True(t, body.Transaction.NewBalance.Equal(decimal.NewFromInt(150)))
	assert.Regexp(t, `^DEP-\d+-[0-9A-Z]{6}$`, body.Transaction.ReferenceNumber)

	got, _ := env.store.Wallet(w.ID)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(150)))
}

func TestAmountAcceptsStrings(t *testing.T) {
	env := newTestEnv(t)
	alice, token := env.user("alice")
	w := env.store.PutWallet(models.Wallet{UserID: alice.UserID, CurrencyCode: "USD"})

	rec := env.do(http.MethodPost, "/wallet-deposit", token,
		`{"walletId":"`+w.ID.String()+`","amount":"12.50","currency":"USD","paymentMethod":"card"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, _ := env.store.Wallet(w.ID)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("12.5")))
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	alice, token := env.user("alice")
	bob, _ := env.user("bob")
	w := env.store.PutWallet(models.Wallet{UserID: alice.UserID, CurrencyCode: "MWK", Balance: decimal.NewFromInt(100)})
	bobWallet := env.store.PutWallet(models.Wallet{UserID: bob.UserID, CurrencyCode: "MWK", Balance: decimal.NewFromInt(100)})
	bank := env.store.PutVillageBank(models.VillageBank{
		Name: "Chikwawa savers", CreatorID: bob.UserID, CurrencyCode: "MWK",
		TargetAmount: decimal.NewFromInt(10000), MaxMembers: 10, CurrentMembers: 1, IsActive: true,
	})

	tests := []struct {
		name   string
		token  string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{
			name:   "missing token",
			path:   "/wallet-deposit",
			body:   map[string]interface{}{"walletId": w.ID, "amount": 1, "currency": "MWK", "paymentMethod": "card"},
			status: http.StatusUnauthorized,
			code:   response.CodeUnauthorized,
		},
		{
			name:   "unknown token",
			token:  "forged",
			path:   "/wallet-deposit",
			body:   map[string]interface{}{"walletId": w.ID, "amount": 1, "currency": "MWK", "paymentMethod": "card"},
			status: http.StatusUnauthorized,
			code:   response.CodeUnauthorized,
		},
		{
			name:   "malformed body",
			token:  token,
			path:   "/wallet-deposit",
			body:   `{"walletId":`,
			status: http.StatusBadRequest,
			code:   response.CodeValidation,
		},
		{
			name:   "negative amount",
			token:  token,
			path:   "/wallet-deposit",
			body:   map[string]interface{}{"walletId": w.ID, "amount": -5, "currency": "MWK", "paymentMethod": "card"},
			status: http.StatusBadRequest,
			code:   response.CodeValidation,
		},
		{
			name:   "insufficient balance",
			token:  token,
			path:   "/wallet-withdraw",
			body:   map[string]interface{}{"walletId": w.ID, "amount": 500, "currency": "MWK", "withdrawalMethod": "bank"},
			status: http.StatusBadRequest,
			code:   response.CodeInsufficient,
		},
		{
			name:   "someone else's wallet",
			token:  token,
			path:   "/wallet-withdraw",
			body:   map[string]interface{}{"walletId": bobWallet.ID, "amount": 5, "currency": "MWK", "withdrawalMethod": "bank"},
			status: http.StatusBadRequest,
			code:   response.CodeNotFound,
		},
		{
			name:   "unknown recipient",
			token:  token,
			path:   "/wallet-send",
			body:   map[string]interface{}{"fromWalletId": w.ID, "toUserId": uuid.New(), "amount": 5, "currency": "MWK"},
			status: http.StatusBadRequest,
			code:   response.CodeNotFound,
		},
		{
			name:   "not a member",
			token:  token,
			path:   "/village-bank-contribute",
			body:   map[string]interface{}{"villageBankId": bank.ID, "walletId": w.ID, "amount": 5, "currency": "MWK"},
			status: http.StatusBadRequest,
			code:   response.CodePermissionDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decodeError(t, rec)
			assert.False(t, body.Success)
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}

	got, _ := env.store.Wallet(w.ID)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(100)))
}

func TestInternalErrorHidesCause(t *testing.T) {
	env := newTestEnv(t)
	alice, token := env.user("alice")
	w := env.store.PutWallet(models.Wallet{UserID: alice.UserID, CurrencyCode: "MWK", Balance: decimal.NewFromInt(100)})
	env.store.FailOn = func(op string) error {
		if op == "activity_logs.create" {
			return errors.New("connection reset by peer")
		}
		return nil
	}

	rec := env.do(http.MethodPost, "/wallet-withdraw", token, map[string]interface{}{
		"walletId": w.ID, "amount": 10, "currency": "MWK", "withdrawalMethod": "bank",
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, response.CodeInternal, body.Code)
	assert.NotContains(t, body.Error, "connection reset")

	got, _ := env.store.Wallet(w.ID)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(100)))
}

func TestCreateWalletAndCard(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user("alice")

	rec := env.do(http.MethodPost, "/wallet-create", token, map[string]interface{}{"currency": "USD"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var wallet handler.WalletResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wallet))
	require.NotNil(t, wallet.Wallet)
	assert.Equal(t, "USD", wallet.Wallet.CurrencyCode)

	rec = env.do(http.MethodPost, "/wallet-create", token, map[string]interface{}{"currency": "USD"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response.CodeValidation, decodeError(t, rec).Code)

	rec = env.do(http.MethodPost, "/cards-create", token, map[string]interface{}{
		"walletId": wallet.Wallet.ID, "cardType": "virtual",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var card handler.CardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &card))
	assert.True(t, card.Success)
	require.NotNil(t, card.Card)
	assert.Equal(t, wallet.Wallet.ID, card.Card.WalletID)
}

func TestGetUserData(t *testing.T) {
	env := newTestEnv(t)
	alice, token := env.user("alice")
	env.store.PutWallet(models.Wallet{UserID: alice.UserID, CurrencyCode: "MWK", Balance: decimal.NewFromInt(100)})

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := env.do(method, "/get-user-data?limit=5", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var body handler.UserDataResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Success)
		require.NotNil(t, body.Data)
		require.NotNil(t, body.Data.Profile)
		assert.Equal(t, "alice", body.Data.Profile.FullName)
		assert.Len(t, body.Data.Wallets, 1)
	}

	rec := env.do(http.MethodGet, "/get-user-data?limit=lots", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response.CodeValidation, decodeError(t, rec).Code)
}
