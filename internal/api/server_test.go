package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/moment-tracker/internal/errors"
	"github.com/moment-tracker/internal/logging"
	"github.com/moment-tracker/internal/types"
)

const testWallet = "0x0b2a3299cc857e29"

type mockPortfolioService struct {
	moments    []types.Moment
	report     *types.PortfolioReport
	txs        []*types.Transaction
	snapshots  map[string]*types.MarketSnapshot
	err        error
	eventTypes []string
	ids        []string
	panicOn    string
}

func (m *mockPortfolioService) GetComprehensiveMoments(ctx context.Context, wallet string) ([]types.Moment, error) {
	if m.panicOn == "moments" {
		panic("boom")
	}
	return m.moments, m.err
}

func (m *mockPortfolioService) GetPortfolioReport(ctx context.Context, wallet string) (*types.PortfolioReport, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.report, nil
}

func (m *mockPortfolioService) GetAccountTransactionHistory(ctx context.Context, wallet string) ([]*types.Transaction, error) {
	return m.txs, m.err
}

func (m *mockPortfolioService) GetTopShotEvents(ctx context.Context, wallet string, eventTypes []string) ([]*types.Transaction, error) {
	m.eventTypes = eventTypes
	return m.txs, m.err
}

func (m *mockPortfolioService) GetMarketDataForMoments(ctx context.Context, ids []string) (map[string]*types.MarketSnapshot, error) {
	m.ids = ids
	return m.snapshots, m.err
}

func newTestServer(svc PortfolioServiceInterface) *Server {
	return NewServer(&ServerConfig{
		Host:              "127.0.0.1",
		Port:              "0",
		RequestTimeout:    5 * time.Second,
		RequestsPerSecond: 100,
		Burst:             100,
		MaxSnapshotIDs:    3,
	}, svc, logging.NewNop())
}

func doRequest(t *testing.T, s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) types.ServiceError {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealth(t *testing.T) {
	s := newTestServer(&mockPortfolioService{})
	rec := doRequest(t, s, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(&mockPortfolioService{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}

func TestGetMoments(t *testing.T) {
	svc := &mockPortfolioService{moments: []types.Moment{{ID: "7", PlayerName: "LeBron James"}}}
	rec := doRequest(t, newTestServer(svc), http.MethodGet, "/api/wallets/"+testWallet+"/moments", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp MomentsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, testWallet, resp.Wallet)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "LeBron James", resp.Moments[0].PlayerName)
}

func TestWalletIsEchoedInCanonicalForm(t *testing.T) {
	svc := &mockPortfolioService{moments: []types.Moment{}}
	s := newTestServer(svc)

	for _, path := range []string{"/api/wallets/ABC/moments", "/api/wallets/ABC/transactions", "/api/wallets/0xABC/events"} {
		rec := doRequest(t, s, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)

		var resp struct {
			Wallet string `json:"wallet"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "0x0000000000000abc", resp.Wallet, path)
	}
}

func TestGetMoments_InvalidWallet(t *testing.T) {
	svc := &mockPortfolioService{err: apperrors.NewInvalidAddressError("nope")}
	rec := doRequest(t, newTestServer(svc), http.MethodGet, "/api/wallets/nope/moments", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ADDRESS", decodeError(t, rec).Code)
}

func TestGetMoments_ChainFailure(t *testing.T) {
	svc := &mockPortfolioService{err: apperrors.NewChainQueryError("executeScript", 503, 3, errors.New("unavailable"))}
	rec := doRequest(t, newTestServer(svc), http.MethodGet, "/api/wallets/"+testWallet+"/moments", nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "CHAIN_QUERY_FAILED", decodeError(t, rec).Code)
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	svc := &mockPortfolioService{err: errors.New("dial tcp 10.0.0.3:5432: refused")}
	rec := doRequest(t, newTestServer(svc), http.MethodGet, "/api/wallets/"+testWallet+"/transactions", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, ErrCodeInternalError, e.Code)
	assert.NotContains(t, e.Message, "10.0.0.3")
}

func TestGetAnalytics(t *testing.T) {
	svc := &mockPortfolioService{report: &types.PortfolioReport{
		RequestID:  "r1",
		Wallet:     testWallet,
		DataSource: types.SourceLive,
	}}
	rec := doRequest(t, newTestServer(svc), http.MethodGet, "/api/wallets/"+testWallet+"/analytics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var report types.PortfolioReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, types.SourceLive, report.DataSource)
	assert.Equal(t, testWallet, report.Wallet)
}

func TestGetEvents_ParsesTypes(t *testing.T) {
	svc := &mockPortfolioService{}
	rec := doRequest(t, newTestServer(svc), http.MethodGet,
		"/api/wallets/"+testWallet+"/events?types=A.0b2a3299cc857e29.TopShot.Deposit,%20A.c1e4f4f4c4257510.Market.MomentPurchased", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{
		"A.0b2a3299cc857e29.TopShot.Deposit",
		"A.c1e4f4f4c4257510.Market.MomentPurchased",
	}, svc.eventTypes)
}

func TestGetEvents_NoTypesUsesDefault(t *testing.T) {
	svc := &mockPortfolioService{}
	rec := doRequest(t, newTestServer(svc), http.MethodGet, "/api/wallets/"+testWallet+"/events", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, svc.eventTypes)
}

func TestGetSnapshots(t *testing.T) {
	svc := &mockPortfolioService{snapshots: map[string]*types.MarketSnapshot{
		"7": {MomentID: "7", CurrentPrice: 45},
	}}
	rec := doRequest(t, newTestServer(svc), http.MethodPost, "/api/market/snapshots", []byte(`{"momentIds":["7"]}`))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp SnapshotsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 45.0, resp.Snapshots["7"].CurrentPrice)
	assert.Equal(t, []string{"7"}, svc.ids)
}

func TestGetSnapshots_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"momentIds":`},
		{"unknown field", `{"ids":["7"]}`},
		{"empty", `{"momentIds":[]}`},
		{"too many", `{"momentIds":["1","2","3","4"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockPortfolioService{}
			rec := doRequest(t, newTestServer(svc), http.MethodPost, "/api/market/snapshots", []byte(tt.body))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, ErrCodeInvalidInput, decodeError(t, rec).Code)
			assert.Nil(t, svc.ids)
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	svc := &mockPortfolioService{panicOn: "moments"}
	rec := doRequest(t, newTestServer(svc), http.MethodGet, "/api/wallets/"+testWallet+"/moments", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	s := NewServer(&ServerConfig{RequestsPerSecond: 0.001, Burst: 1}, &mockPortfolioService{}, logging.NewNop())

	first := doRequest(t, s, http.MethodGet, "/api/wallets/"+testWallet+"/transactions", nil)
	second := doRequest(t, s, http.MethodGet, "/api/wallets/"+testWallet+"/transactions", nil)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, ErrCodeRateLimitExceeded, decodeError(t, second).Code)

	// health is outside the limited subrouter
	assert.Equal(t, http.StatusOK, doRequest(t, s, http.MethodGet, "/health", nil).Code)
}

func TestMethodNotAllowed(t *testing.T) {
	rec := doRequest(t, newTestServer(&mockPortfolioService{}), http.MethodGet, "/api/market/snapshots", nil)
	assert.True(t, rec.Code == http.StatusMethodNotAllowed || rec.Code == http.StatusNotFound,
		"unexpected status %d", rec.Code)
}

func TestTimeoutMiddlewareBoundsContext(t *testing.T) {
	var deadline time.Time
	h := TimeoutMiddleware(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, _ = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", strings.NewReader("")))

	assert.False(t, deadline.IsZero())
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, time.Second)
}
