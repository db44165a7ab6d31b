package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spritzapp/spritz/internal/account"
	"github.com/spritzapp/spritz/internal/analytics"
	"github.com/spritzapp/spritz/internal/config"
	"github.com/spritzapp/spritz/internal/db"
	"github.com/spritzapp/spritz/internal/errors"
	"github.com/spritzapp/spritz/internal/invite"
	"github.com/spritzapp/spritz/internal/points"
)

const testAddress = "0xab5801a7d398351b8be11c439e05c5b3259aec9b"

// MockAccountService is a mock implementation of account.Service
type MockAccountService struct {
	mock.Mock
}

func (m *MockAccountService) TrackLogin(params account.LoginParams) (account.LoginResult, error) {
	args := m.Called(params)
	return args.Get(0).(account.LoginResult), args.Error(1)
}

func (m *MockAccountService) GetUser(address string) (db.User, error) {
	args := m.Called(address)
	return args.Get(0).(db.User), args.Error(1)
}

func (m *MockAccountService) BanUser(address, reason string) error {
	args := m.Called(address, reason)
	return args.Error(0)
}

func (m *MockAccountService) UnbanUser(address string) error {
	args := m.Called(address)
	return args.Error(0)
}

// MockInviteService is a mock implementation of invite.Service
type MockInviteService struct {
	mock.Mock
}

func (m *MockInviteService) RedeemUserInvite(code, redeemer string) (invite.RedeemResult, error) {
	args := m.Called(code, redeemer)
	return args.Get(0).(invite.RedeemResult), args.Error(1)
}

func (m *MockInviteService) RedeemAdminInvite(code, redeemer string) (invite.RedeemResult, error) {
	args := m.Called(code, redeemer)
	return args.Get(0).(invite.RedeemResult), args.Error(1)
}

func (m *MockInviteService) RedeemAny(code, redeemer string) (invite.RedeemResult, error) {
	args := m.Called(code, redeemer)
	return args.Get(0).(invite.RedeemResult), args.Error(1)
}

func (m *MockInviteService) EnsureInviteCodes(owner string) ([]string, error) {
	args := m.Called(owner)
	result := args.Get(0)
	if result == nil {
		return nil, args.Error(1)
	}
	return result.([]string), args.Error(1)
}

func (m *MockInviteService) ListInviteCodes(owner string) ([]db.InviteCode, error) {
	args := m.Called(owner)
	result := args.Get(0)
	if result == nil {
		return nil, args.Error(1)
	}
	return result.([]db.InviteCode), args.Error(1)
}

func (m *MockInviteService) CreateAdminInvite(code string, maxUses int, expiresAt *time.Time, createdBy string) (db.AdminInviteCode, error) {
	args := m.Called(code, maxUses, expiresAt, createdBy)
	return args.Get(0).(db.AdminInviteCode), args.Error(1)
}

// MockPointsService is a mock implementation of points.Service
type MockPointsService struct {
	mock.Mock
}

func (m *MockPointsService) AwardPoints(address string, pts int64, reason, claimKey string) (points.AwardResult, error) {
	args := m.Called(address, pts, reason, claimKey)
	return args.Get(0).(points.AwardResult), args.Error(1)
}

func (m *MockPointsService) ClaimDailyPoints(address string) (points.DailyClaimResult, error) {
	args := m.Called(address)
	return args.Get(0).(points.DailyClaimResult), args.Error(1)
}

func (m *MockPointsService) IncrementStat(address string, stat points.Stat, delta int64) error {
	args := m.Called(address, stat, delta)
	return args.Error(0)
}

func (m *MockPointsService) GetPointsHistory(address string) ([]db.PointsHistory, error) {
	args := m.Called(address)
	result := args.Get(0)
	if result == nil {
		return nil, args.Error(1)
	}
	return result.([]db.PointsHistory), args.Error(1)
}

func (m *MockPointsService) GetLeaderboard(limit int) ([]db.LeaderboardEntry, error) {
	args := m.Called(limit)
	result := args.Get(0)
	if result == nil {
		return nil, args.Error(1)
	}
	return result.([]db.LeaderboardEntry), args.Error(1)
}

// MockAnalyticsService is a mock implementation of analytics.Service
type MockAnalyticsService struct {
	mock.Mock
}

func (m *MockAnalyticsService) ComputeAnalytics(period string) (analytics.Report, error) {
	args := m.Called(period)
	return args.Get(0).(analytics.Report), args.Error(1)
}

func (m *MockAnalyticsService) TrackEvent(event analytics.Event) error {
	args := m.Called(event)
	return args.Error(0)
}

type testAPI struct {
	accounts  *MockAccountService
	invites   *MockInviteService
	points    *MockPointsService
	analytics *MockAnalyticsService
	router    *gin.Engine
}

// Setup function to initialize a test Gin router with our handler
func setupTestRouter(t *testing.T, adminCfg config.AdminConfig) *testAPI {
	gin.SetMode(gin.TestMode)

	api := &testAPI{
		accounts:  new(MockAccountService),
		invites:   new(MockInviteService),
		points:    new(MockPointsService),
		analytics: new(MockAnalyticsService),
	}
	h := NewHandler(api.accounts, api.invites, api.points, api.analytics, nil)
	api.router = SetupRouter(h, adminCfg)
	return api
}

func doJSON(router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestLoginHandler(t *testing.T) {
	api := setupTestRouter(t, config.AdminConfig{})

	t.Run("Successful login", func(t *testing.T) {
		api.accounts.On("TrackLogin", account.LoginParams{Address: testAddress, WalletType: "metamask"}).
			Return(account.LoginResult{IsNewUser: true, DailyBonusAvailable: true, LoginCount: 1, LoginStreak: 1}, nil).Once()

		w := doJSON(api.router, "POST", "/login", gin.H{"address": testAddress, "walletType": "metamask"}, nil)

		assert.Equal(t, http.StatusOK, w.Code)

		var response account.LoginResult
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.True(t, response.IsNewUser)
		assert.True(t, response.DailyBonusAvailable)
	})

	t.Run("Invalid address", func(t *testing.T) {
		api.accounts.On("TrackLogin", account.LoginParams{Address: "not-an-address"}).
			Return(account.LoginResult{}, &errors.ValidationError{Field: "address", Message: "invalid wallet address"}).Once()

		w := doJSON(api.router, "POST", "/login", gin.H{"address": "not-an-address"}, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Malformed body", func(t *testing.T) {
		req, _ := http.NewRequest("POST", "/login", strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		api.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	api.accounts.AssertExpectations(t)
}

func TestGetUserHandler(t *testing.T) {
	api := setupTestRouter(t, config.AdminConfig{})

	t.Run("Existing user", func(t *testing.T) {
		api.accounts.On("GetUser", testAddress).
			Return(db.User{Address: testAddress, LoginCount: 4, Points: 120}, nil).Once()

		w := doJSON(api.router, "GET", "/user/"+testAddress, nil, nil)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, testAddress, response["address"])
		assert.Equal(t, float64(120), response["points"])
	})

	t.Run("Unknown user", func(t *testing.T) {
		api.accounts.On("GetUser", testAddress).
			Return(db.User{}, &errors.NotFoundError{Resource: "user", Identifier: testAddress}).Once()

		w := doJSON(api.router, "GET", "/user/"+testAddress, nil, nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	api.accounts.AssertExpectations(t)
}

func TestClaimDailyHandler(t *testing.T) {
	api := setupTestRouter(t, config.AdminConfig{})

	t.Run("Successful claim", func(t *testing.T) {
		api.points.On("ClaimDailyPoints", testAddress).
			Return(points.DailyClaimResult{Success: true, PointsAwarded: 3}, nil).Once()

		w := doJSON(api.router, "POST", "/points/daily-claim", gin.H{"address": testAddress}, nil)

		assert.Equal(t, http.StatusOK, w.Code)

		var response points.DailyClaimResult
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.True(t, response.Success)
		assert.Equal(t, int64(3), response.PointsAwarded)
	})

	t.Run("Already claimed is a 200 non-success", func(t *testing.T) {
		api.points.On("ClaimDailyPoints", testAddress).
			Return(points.DailyClaimResult{Success: false, Error: "daily bonus already claimed"}, nil).Once()

		w := doJSON(api.router, "POST", "/points/daily-claim", gin.H{"address": testAddress}, nil)

		assert.Equal(t, http.StatusOK, w.Code)

		var response points.DailyClaimResult
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.False(t, response.Success)
		assert.Equal(t, "daily bonus already claimed", response.Error)
	})

	api.points.AssertExpectations(t)
}

func TestRedeemInviteHandler(t *testing.T) {
	api := setupTestRouter(t, config.AdminConfig{})

	t.Run("Successful redemption", func(t *testing.T) {
		api.invites.On("RedeemAny", "SPRITZAA", testAddress).
			Return(invite.RedeemResult{Success: true, Inviter: "0x1111"}, nil).Once()

		w := doJSON(api.router, "POST", "/invite/redeem", gin.H{"code": "SPRITZAA", "address": testAddress}, nil)

		assert.Equal(t, http.StatusOK, w.Code)

		var response invite.RedeemResult
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.True(t, response.Success)
	})

	t.Run("Already used code", func(t *testing.T) {
		api.invites.On("RedeemAny", "SPRITZAA", testAddress).
			Return(invite.RedeemResult{Success: false, AlreadyUsed: true}, nil).Once()

		w := doJSON(api.router, "POST", "/invite/redeem", gin.H{"code": "SPRITZAA", "address": testAddress}, nil)

		assert.Equal(t, http.StatusOK, w.Code)

		var response invite.RedeemResult
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.False(t, response.Success)
		assert.True(t, response.AlreadyUsed)
	})

	t.Run("Unknown code", func(t *testing.T) {
		api.invites.On("RedeemAny", "NOSUCHCODE", testAddress).
			Return(invite.RedeemResult{}, &errors.NotFoundError{Resource: "invite code", Identifier: "NOSUCHCODE"}).Once()

		w := doJSON(api.router, "POST", "/invite/redeem", gin.H{"code": "NOSUCHCODE", "address": testAddress}, nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	api.invites.AssertExpectations(t)
}

func TestEnsureInvitesHandler(t *testing.T) {
	api := setupTestRouter(t, config.AdminConfig{})

	api.invites.On("EnsureInviteCodes", testAddress).
		Return([]string{"AAAAAAAA", "BBBBBBBB"}, nil).Once()

	w := doJSON(api.router, "POST", "/user/"+testAddress+"/invites", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string][]string
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, []string{"AAAAAAAA", "BBBBBBBB"}, response["codes"])

	api.invites.AssertExpectations(t)
}

func TestTrackEventHandler(t *testing.T) {
	api := setupTestRouter(t, config.AdminConfig{})

	t.Run("Known event", func(t *testing.T) {
		api.analytics.On("TrackEvent", analytics.Event{Type: analytics.EventMessageSent, Address: testAddress}).
			Return(nil).Once()

		w := doJSON(api.router, "POST", "/events", gin.H{"type": "message_sent", "address": testAddress}, nil)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Unknown event type", func(t *testing.T) {
		w := doJSON(api.router, "POST", "/events", gin.H{"type": "teleported", "address": testAddress}, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	api.analytics.AssertExpectations(t)
}

func TestGetLeaderboardHandler(t *testing.T) {
	api := setupTestRouter(t, config.AdminConfig{})

	t.Run("Default limit", func(t *testing.T) {
		api.points.On("GetLeaderboard", 10).
			Return([]db.LeaderboardEntry{{Address: "0x1111", Points: 500}}, nil).Once()

		w := doJSON(api.router, "GET", "/leaderboard", nil, nil)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string][]map[string]interface{}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Len(t, response["leaderboard"], 1)
	})

	t.Run("Explicit limit", func(t *testing.T) {
		api.points.On("GetLeaderboard", 25).
			Return([]db.LeaderboardEntry{}, nil).Once()

		w := doJSON(api.router, "GET", "/leaderboard?limit=25", nil, nil)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Limit out of range", func(t *testing.T) {
		w := doJSON(api.router, "GET", "/leaderboard?limit=500", nil, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	api.points.AssertExpectations(t)
}

// adminCredentials generates a keypair and the matching signature headers
// for the admin routes.
func adminCredentials(t *testing.T, message string) (string, map[string]string) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	address := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27

	return address, map[string]string{
		"X-Admin-Address":   address,
		"X-Admin-Signature": hexutil.Encode(sig),
	}
}

func TestAdminRoutes(t *testing.T) {
	const authMessage = "spritz-admin"
	adminAddr, headers := adminCredentials(t, authMessage)
	cfg := config.AdminConfig{Addresses: []string{adminAddr}, AuthMessage: authMessage}

	t.Run("Missing credentials", func(t *testing.T) {
		api := setupTestRouter(t, cfg)

		w := doJSON(api.router, "GET", "/admin/analytics", nil, nil)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Unknown admin address", func(t *testing.T) {
		api := setupTestRouter(t, cfg)
		_, otherHeaders := adminCredentials(t, authMessage)

		w := doJSON(api.router, "GET", "/admin/analytics", nil, otherHeaders)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Wrong signature", func(t *testing.T) {
		api := setupTestRouter(t, cfg)
		_, wrongHeaders := adminCredentials(t, "some other message")
		wrongHeaders["X-Admin-Address"] = adminAddr

		w := doJSON(api.router, "GET", "/admin/analytics", nil, wrongHeaders)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Valid signature reaches analytics", func(t *testing.T) {
		api := setupTestRouter(t, cfg)
		api.analytics.On("ComputeAnalytics", "7d").
			Return(analytics.Report{Period: analytics.Period7d}, nil).Once()

		w := doJSON(api.router, "GET", "/admin/analytics?period=7d", nil, headers)

		assert.Equal(t, http.StatusOK, w.Code)
		api.analytics.AssertExpectations(t)
	})

	t.Run("Admin invite creation records the creator", func(t *testing.T) {
		api := setupTestRouter(t, cfg)
		api.invites.On("CreateAdminInvite", "LAUNCH24", 50, (*time.Time)(nil), adminAddr).
			Return(db.AdminInviteCode{Code: "LAUNCH24", MaxUses: 50, IsActive: true}, nil).Once()

		w := doJSON(api.router, "POST", "/admin/invite-codes", gin.H{"code": "LAUNCH24", "maxUses": 50}, headers)

		assert.Equal(t, http.StatusOK, w.Code)
		api.invites.AssertExpectations(t)
	})

	t.Run("Duplicate admin invite is a conflict", func(t *testing.T) {
		api := setupTestRouter(t, cfg)
		api.invites.On("CreateAdminInvite", "LAUNCH24", 50, (*time.Time)(nil), adminAddr).
			Return(db.AdminInviteCode{}, &errors.ConflictError{Resource: "admin invite code", Reason: "code already exists"}).Once()

		w := doJSON(api.router, "POST", "/admin/invite-codes", gin.H{"code": "LAUNCH24", "maxUses": 50}, headers)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Award points", func(t *testing.T) {
		api := setupTestRouter(t, cfg)
		api.points.On("AwardPoints", testAddress, int64(100), "bug_bounty", "bug-1").
			Return(points.AwardResult{Success: true, Points: 100}, nil).Once()

		w := doJSON(api.router, "POST", "/admin/points/award",
			gin.H{"address": testAddress, "points": 100, "reason": "bug_bounty", "claimKey": "bug-1"}, headers)

		assert.Equal(t, http.StatusOK, w.Code)
		api.points.AssertExpectations(t)
	})

	t.Run("Ban and unban", func(t *testing.T) {
		api := setupTestRouter(t, cfg)
		api.accounts.On("BanUser", testAddress, "spam").Return(nil).Once()
		api.accounts.On("UnbanUser", testAddress).Return(nil).Once()

		w := doJSON(api.router, "POST", "/admin/ban", gin.H{"address": testAddress, "reason": "spam"}, headers)
		assert.Equal(t, http.StatusOK, w.Code)

		w = doJSON(api.router, "POST", "/admin/unban", gin.H{"address": testAddress}, headers)
		assert.Equal(t, http.StatusOK, w.Code)

		api.accounts.AssertExpectations(t)
	})
}
