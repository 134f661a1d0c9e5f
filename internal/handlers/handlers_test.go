package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wager-ledger-backend/internal/config"
	"wager-ledger-backend/internal/services"
	"wager-ledger-backend/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubGateway struct {
	err   error
	calls int
}

func (g *stubGateway) CreateAddress(ctx context.Context, req services.AddressRequest) (*services.AddressResponse, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &services.AddressResponse{Address: "addr-" + req.OrderID}, nil
}

type testServer struct {
	engine  *gin.Engine
	signer  *services.Signer
	gateway *stubGateway
	hub     *WebSocketHub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.PlatformID = "42"
	cfg.SecretKey = "secret"

	kv := storage.NewMemory()
	hub := NewWebSocketHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	signer := services.NewSigner(cfg.PlatformID, cfg.SecretKey)
	gateway := &stubGateway{}
	players := services.NewPlayerStore(kv, hub)
	identity := services.NewIdentityResolver(players, cfg.StartingBalance)
	rounds := services.NewRoundLedger(kv, identity, hub, cfg.MaxBet)
	deposits := services.NewDepositLedger(cfg, kv, identity, gateway, signer, hub)

	router := &Router{
		Users:     NewUserHandler(identity, services.NewJournal(kv)),
		Games:     NewGameHandler(rounds, services.NewRateLimiter(kv, storage.DefaultRateLimitWindow)),
		Deposits:  NewDepositHandler(deposits),
		WebSocket: NewWebSocketHandler(players, hub),
	}

	return &testServer{
		engine:  router.Engine(),
		signer:  signer,
		gateway: gateway,
		hub:     hub,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *testServer) session(t *testing.T) string {
	t.Helper()
	w := s.do(t, http.MethodGet, "/api/session", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	return decode(t, w)["playerId"].(string)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"online"}`, w.Body.String())
}

func TestSession(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/session", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	playerID := body["playerId"].(string)
	assert.Equal(t, float64(100), body["balance"])
	assert.Nil(t, body["nickname"])
	assert.Nil(t, body["email"])

	w = s.do(t, http.MethodGet, "/api/session", nil, map[string]string{"X-Player-Id": playerID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, playerID, decode(t, w)["playerId"])

	w = s.do(t, http.MethodGet, "/api/session?playerId="+playerID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, playerID, decode(t, w)["playerId"])
}

func TestRegisterProfile(t *testing.T) {
	s := newTestServer(t)
	playerID := s.session(t)

	w := s.do(t, http.MethodPost, "/api/profile/register", gin.H{"playerId": playerID, "nickname": " morpheus ", "email": "m@zion.io"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "morpheus", body["nickname"])
	assert.Equal(t, "m@zion.io", body["email"])
	assert.Equal(t, float64(100), body["balance"])

	w = s.do(t, http.MethodPost, "/api/profile/register", gin.H{"playerId": playerID, "nickname": "  "}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeValidation, decode(t, w)["code"])

	w = s.do(t, http.MethodPost, "/api/profile/register", gin.H{"nickname": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeValidation, decode(t, w)["code"])
}

func TestBetFlow(t *testing.T) {
	s := newTestServer(t)
	playerID := s.session(t)

	w := s.do(t, http.MethodPost, "/api/bet/start", gin.H{"playerId": playerID, "bet": 10}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	start := decode(t, w)
	assert.Equal(t, float64(90), start["balance"])
	assert.Equal(t, playerID, start["playerId"])
	roundID := start["roundId"].(string)

	w = s.do(t, http.MethodPost, "/api/bet/finish", gin.H{"playerId": playerID, "roundId": roundID, "result": "won", "multiplier": 2}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"balance":110,"win":20}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/bet/finish", gin.H{"playerId": playerID, "roundId": roundID, "result": "won", "multiplier": 2}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"balance":110,"win":0}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/transactions?playerId="+playerID+"&limit=2", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	txs := decode(t, w)["transactions"].([]any)
	assert.Len(t, txs, 2)
}

func TestBetErrors(t *testing.T) {
	s := newTestServer(t)
	playerID := s.session(t)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"missing player", "/api/bet/start", gin.H{"bet": 10}, http.StatusBadRequest, CodeValidation},
		{"zero bet", "/api/bet/start", gin.H{"playerId": playerID, "bet": 0}, http.StatusBadRequest, CodeInvalidAmount},
		{"string bet", "/api/bet/start", `{"playerId":"` + playerID + `","bet":"abc"}`, http.StatusBadRequest, CodeValidation},
		{"overdraw", "/api/bet/start", gin.H{"playerId": playerID, "bet": 1000}, http.StatusBadRequest, CodeInsufficientFunds},
		{"unknown round", "/api/bet/finish", gin.H{"playerId": playerID, "roundId": "r_nope", "result": "won"}, http.StatusBadRequest, CodeRoundNotFound},
		{"missing round", "/api/bet/finish", gin.H{"playerId": playerID}, http.StatusBadRequest, CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, tt.path, tt.body, nil)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode(t, w)["code"])
		})
	}
}

func TestRequiredFieldMessages(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		path, body, message string
	}{
		{"/api/bet/start", `{"bet":1}`, "playerId is required"},
		{"/api/bet/start", `{"playerId":"   ","bet":1}`, "playerId is required"},
		{"/api/bet/finish", `{"result":"won"}`, "playerId and roundId are required"},
		{"/api/deposit/create", `{"amountFiat":5,"paymentId":10}`, "userId is required"},
		{"/api/profile/register", `{"playerId":"p_1"}`, "nickname is required"},
		{"/api/bet/start", `{"playerId":`, "Invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.path+" "+tt.body, func(t *testing.T) {
			w := s.do(t, http.MethodPost, tt.path, tt.body, nil)
			require.Equal(t, http.StatusBadRequest, w.Code)
			body := decode(t, w)
			assert.Equal(t, CodeValidation, body["code"])
			assert.Equal(t, tt.message, body["error"])
		})
	}
}

func TestBetRejectsSubMinorUnitStake(t *testing.T) {
	s := newTestServer(t)
	playerID := s.session(t)

	w := s.do(t, http.MethodPost, "/api/bet/start", `{"playerId":"`+playerID+`","bet":10.005}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeInvalidAmount, decode(t, w)["code"])

	w = s.do(t, http.MethodGet, "/api/session", nil, map[string]string{"X-Player-Id": playerID})
	assert.Equal(t, float64(100), decode(t, w)["balance"])
}

func TestSessionWithJournalKeyLikeID(t *testing.T) {
	s := newTestServer(t)
	playerID := s.session(t)

	w := s.do(t, http.MethodGet, "/api/session", nil, map[string]string{"X-Player-Id": playerID + ":transactions"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEqual(t, playerID, decode(t, w)["playerId"])
}

func TestFinishOwnershipMismatch(t *testing.T) {
	s := newTestServer(t)
	owner := s.session(t)
	intruder := s.session(t)

	w := s.do(t, http.MethodPost, "/api/bet/start", gin.H{"playerId": owner, "bet": 10}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	roundID := decode(t, w)["roundId"].(string)

	w = s.do(t, http.MethodPost, "/api/bet/finish", gin.H{"playerId": intruder, "roundId": roundID, "result": "won", "multiplier": 5}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeRoundOwnership, decode(t, w)["code"])
}

func TestStartBetRateLimited(t *testing.T) {
	s := newTestServer(t)
	playerID := s.session(t)
	headers := map[string]string{"X-Player-Id": playerID}

	for i := 0; i < startBetLimit; i++ {
		w := s.do(t, http.MethodPost, "/api/bet/start", gin.H{"playerId": playerID, "bet": 1}, headers)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := s.do(t, http.MethodPost, "/api/bet/start", gin.H{"playerId": playerID, "bet": 1}, headers)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, CodeRateLimited, decode(t, w)["code"])
}

func TestStartBetRateLimitFollowsBodyPlayer(t *testing.T) {
	s := newTestServer(t)
	playerID := s.session(t)

	accepted := 0
	for i := 0; i < startBetLimit+10; i++ {
		headers := map[string]string{"X-Player-Id": fmt.Sprintf("p_rotating_%d", i)}
		w := s.do(t, http.MethodPost, "/api/bet/start", gin.H{"playerId": playerID, "bet": 1}, headers)
		if w.Code == http.StatusOK {
			accepted++
		} else {
			assert.Equal(t, http.StatusTooManyRequests, w.Code)
		}
	}
	assert.Equal(t, startBetLimit, accepted)

	other := s.session(t)
	w := s.do(t, http.MethodPost, "/api/bet/start", gin.H{"playerId": other, "bet": 1}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDepositFlow(t *testing.T) {
	s := newTestServer(t)
	playerID := s.session(t)

	w := s.do(t, http.MethodPost, "/api/deposit/create", gin.H{"userId": playerID, "amountFiat": 50, "paymentId": "10"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := decode(t, w)
	orderID := created["orderId"].(string)
	assert.Equal(t, playerID, created["userId"])
	assert.Equal(t, "addr-"+orderID, created["address"])
	assert.Nil(t, created["destinationTag"])

	body := []byte(fmt.Sprintf(`{"orderId":%q,"status":"success"}`, orderID))
	sig := s.signer.SignRaw(body)

	for _, path := range []string{"/webhook/deposit", "/passimpay/webhook/deposit"} {
		w = s.do(t, http.MethodPost, path, body, map[string]string{services.SignatureHeader: sig})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/api/session", nil, map[string]string{"X-Player-Id": playerID})
	assert.Equal(t, float64(150), decode(t, w)["balance"])

	w = s.do(t, http.MethodGet, "/api/deposit/"+orderID+"?playerId="+playerID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "confirmed", decode(t, w)["status"])

	w = s.do(t, http.MethodGet, "/api/deposit/"+orderID, nil, map[string]string{"X-Player-Id": "p_other"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeOrderNotFound, decode(t, w)["code"])
}

func TestDepositCreateErrors(t *testing.T) {
	s := newTestServer(t)
	playerID := s.session(t)

	w := s.do(t, http.MethodPost, "/api/deposit/create", gin.H{"userId": playerID, "amountFiat": 50, "paymentId": "abc"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/deposit/create", gin.H{"userId": playerID, "amountFiat": -1, "paymentId": 10}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeInvalidAmount, decode(t, w)["code"])

	s.gateway.err = fmt.Errorf("%w: result 0", services.ErrGateway)
	w = s.do(t, http.MethodPost, "/api/deposit/create", gin.H{"userId": playerID, "amountFiat": 50, "paymentId": 10}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, CodeGateway, body["code"])
	assert.NotContains(t, body["error"], "result 0")
}

func TestWebhookResponsesNeverLeakState(t *testing.T) {
	s := newTestServer(t)

	body := []byte(`{"orderId":"d_unknown","status":"success"}`)

	w := s.do(t, http.MethodPost, "/webhook/deposit", body, map[string]string{services.SignatureHeader: "00"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "invalid signature", w.Body.String())

	w = s.do(t, http.MethodPost, "/webhook/deposit", body, map[string]string{services.SignatureHeader: s.signer.SignRaw(body)})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	for _, bad := range []string{`{"status":"success"}`, `{"orderId":"","status":"success"}`, `[]`} {
		raw := []byte(bad)
		w = s.do(t, http.MethodPost, "/webhook/deposit", raw, map[string]string{services.SignatureHeader: s.signer.SignRaw(raw)})
		assert.Equal(t, http.StatusOK, w.Code, bad)
		assert.Equal(t, "ok", w.Body.String())

		w = s.do(t, http.MethodPost, "/webhook/deposit", raw, map[string]string{services.SignatureHeader: "00"})
		assert.Equal(t, http.StatusForbidden, w.Code, bad)
	}
}

func TestClassifyUnknownErrorIsInternal(t *testing.T) {
	status, body := classify(fmt.Errorf("redis: connection pool exhausted"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, CodeInternal, body.Code)
	assert.Equal(t, "Server error", body.Error)

	status, body = classify(fmt.Errorf("wrapped: %w", storage.ErrConflict))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, CodeConflict, body.Code)
}
