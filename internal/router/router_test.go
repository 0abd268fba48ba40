package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/campushub/backend/internal/config"
	"github.com/campushub/backend/internal/i18n"
	"github.com/campushub/backend/internal/models"
	"github.com/campushub/backend/internal/services"
	"github.com/campushub/backend/internal/testutil"
	"github.com/campushub/backend/internal/utils"
	"github.com/campushub/backend/pkg/payment"
	"github.com/campushub/backend/pkg/whatsapp"
)

// clientCounter gives every request its own address so the shared per-IP
// rate limiters never trip during the suite.
var clientCounter atomic.Int64

type sentText struct {
	To   string
	Body string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentText
}

func (s *recordingSender) SendText(ctx context.Context, to, body string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentText{To: to, Body: body})
	return fmt.Sprintf("wamid.%d", len(s.sent)), nil
}

func (s *recordingSender) messages() []sentText {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentText(nil), s.sent...)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type APITestSuite struct {
	suite.Suite
	db     *gorm.DB
	cfg    *config.Config
	app    *App
	sender *recordingSender
}

func (suite *APITestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	suite.Require().NoError(i18n.Initialize("en"))
}

func (suite *APITestSuite) SetupTest() {
	t := suite.T()
	suite.db = testutil.NewTestDB(t)
	suite.sender = &recordingSender{}

	mr, err := miniredis.Run()
	suite.Require().NoError(err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	cfg := testutil.TestConfig()
	suite.cfg = cfg
	app, err := Initialize(Dependencies{
		DB:     suite.db,
		Config: cfg,
		Redis:  rdb,
		Providers: payment.NewRegistry(
			payment.NewSandboxProvider(payment.MethodCard),
			payment.NewSandboxProvider(payment.MethodMobileMoney),
		),
		Sender:  suite.sender,
		Storage: services.NewStorageServiceWithClient(cfg, nil).WithLocalDir(t.TempDir()),
	})
	suite.Require().NoError(err)
	suite.app = app
}

func (suite *APITestSuite) request(method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		suite.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	n := clientCounter.Add(1)
	req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.1.%d.%d", n/250, n%250+1))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	suite.app.Engine.ServeHTTP(w, req)

	var resp envelope
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func (suite *APITestSuite) postWebhook(body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/whatsapp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(whatsapp.SignatureHeader, signature)
	}

	w := httptest.NewRecorder()
	suite.app.Engine.ServeHTTP(w, req)
	return w
}

func (suite *APITestSuite) tokenFor(profile *models.Profile) string {
	token, err := utils.GenerateJWT(profile.ID, profile.Username, string(profile.Role), 1)
	suite.Require().NoError(err)
	return token
}

func (suite *APITestSuite) TestRegisterAndLogin() {
	w, resp := suite.request(http.MethodPost, "/v1/auth/register", "", map[string]interface{}{
		"username":     "testuser",
		"email":        "test@campus.test",
		"password":     testutil.TestPassword,
		"display_name": "Test User",
	})
	suite.Equal(http.StatusCreated, w.Code)
	suite.True(resp.Success)

	w, resp = suite.request(http.MethodPost, "/v1/auth/register", "", map[string]interface{}{
		"username": "testuser",
		"email":    "other@campus.test",
		"password": testutil.TestPassword,
	})
	suite.Equal(http.StatusConflict, w.Code)
	suite.False(resp.Success)

	w, resp = suite.request(http.MethodPost, "/v1/auth/register", "", map[string]interface{}{
		"username": "weak",
		"email":    "weak@campus.test",
		"password": "short",
	})
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("VALIDATION_ERROR", resp.Error.Code)

	w, resp = suite.request(http.MethodPost, "/v1/auth/login", "", map[string]interface{}{
		"email":    "test@campus.test",
		"password": testutil.TestPassword,
	})
	suite.Require().Equal(http.StatusOK, w.Code)

	var login struct {
		Token string `json:"token"`
	}
	suite.Require().NoError(json.Unmarshal(resp.Data, &login))
	suite.NotEmpty(login.Token)

	w, _ = suite.request(http.MethodGet, "/v1/auth/me", login.Token, nil)
	suite.Equal(http.StatusOK, w.Code)

	w, _ = suite.request(http.MethodPost, "/v1/auth/login", "", map[string]interface{}{
		"email":    "test@campus.test",
		"password": "WrongPass123!",
	})
	suite.Equal(http.StatusUnauthorized, w.Code)
}

func (suite *APITestSuite) TestProtectedRoutesRequireToken() {
	for _, path := range []string{"/v1/tokens/balance", "/v1/escrows", "/v1/payments", "/v1/wallet/status"} {
		w, _ := suite.request(http.MethodGet, path, "", nil)
		suite.Equal(http.StatusUnauthorized, w.Code, path)
	}
}

func (suite *APITestSuite) TestOpportunityOwnership() {
	owner := testutil.CreateProfile(suite.T(), suite.db, "owner")
	other := testutil.CreateProfile(suite.T(), suite.db, "other")

	w, resp := suite.request(http.MethodPost, "/v1/opportunities", suite.tokenFor(owner), map[string]interface{}{
		"kind":        "job",
		"title":       "Library assistant",
		"description": "Shelve books three evenings a week.",
		"price":       "12.50",
	})
	suite.Require().Equal(http.StatusCreated, w.Code)

	var created struct {
		Opportunity models.Opportunity `json:"opportunity"`
	}
	suite.Require().NoError(json.Unmarshal(resp.Data, &created))
	path := "/v1/opportunities/" + created.Opportunity.ID.String()

	w, _ = suite.request(http.MethodPut, path, suite.tokenFor(other), map[string]interface{}{"title": "Mine now"})
	suite.Equal(http.StatusForbidden, w.Code)

	w, _ = suite.request(http.MethodGet, "/v1/opportunities?kind=job", "", nil)
	suite.Equal(http.StatusOK, w.Code)
	suite.Equal("1", w.Header().Get("X-Total-Count"))

	w, _ = suite.request(http.MethodDelete, path, suite.tokenFor(owner), nil)
	suite.Equal(http.StatusOK, w.Code)

	w, _ = suite.request(http.MethodGet, path, "", nil)
	suite.Equal(http.StatusNotFound, w.Code)

	w, _ = suite.request(http.MethodGet, "/v1/opportunities/not-a-uuid", "", nil)
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *APITestSuite) TestPurchaseAndRelease() {
	seller := testutil.CreateProfile(suite.T(), suite.db, "seller")
	buyer := testutil.CreateProfile(suite.T(), suite.db, "buyer", testutil.WithPhone("+233201234567"))
	opp := testutil.CreateOpportunity(suite.T(), suite.db, seller, models.OpportunityKindItem, "Desk lamp", decimal.NewFromInt(25))

	w, _ := suite.request(http.MethodPost, "/v1/payments", suite.tokenFor(buyer), map[string]interface{}{
		"opportunity_id": opp.ID,
		"payment_method": "mobile-money",
		"amount":         "24",
	})
	suite.Equal(http.StatusBadRequest, w.Code)

	w, resp := suite.request(http.MethodPost, "/v1/payments", suite.tokenFor(buyer), map[string]interface{}{
		"opportunity_id": opp.ID,
		"payment_method": "mobile-money",
		"amount":         "25",
	})
	suite.Require().Equal(http.StatusCreated, w.Code)

	var purchase struct {
		Payment models.Payment `json:"payment"`
	}
	suite.Require().NoError(json.Unmarshal(resp.Data, &purchase))
	suite.Equal(models.PaymentStatusCompleted, purchase.Payment.PaymentStatus)
	suite.Equal(models.SettlementModeSandbox, purchase.Payment.SettlementMode)

	release := "/v1/escrows/" + purchase.Payment.ID.String() + "/release"

	w, _ = suite.request(http.MethodPost, release, suite.tokenFor(buyer), nil)
	suite.Equal(http.StatusForbidden, w.Code)

	w, _ = suite.request(http.MethodPost, release, suite.tokenFor(seller), nil)
	suite.Equal(http.StatusOK, w.Code)

	w, _ = suite.request(http.MethodPost, release, suite.tokenFor(seller), nil)
	suite.Equal(http.StatusConflict, w.Code)

	w, resp = suite.request(http.MethodGet, "/v1/escrows?role=seller", suite.tokenFor(seller), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var escrows struct {
		Total int `json:"total"`
	}
	suite.Require().NoError(json.Unmarshal(resp.Data, &escrows))
	suite.Equal(1, escrows.Total)

	w, _ = suite.request(http.MethodGet, "/v1/escrows?role=broker", suite.tokenFor(seller), nil)
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *APITestSuite) TestCryptoPurchaseNeedsBuyerEscrow() {
	seller := testutil.CreateProfile(suite.T(), suite.db, "seller", testutil.WithWallet("0x2222222222222222222222222222222222222222"))
	buyer := testutil.CreateProfile(suite.T(), suite.db, "buyer", testutil.WithWallet("0x1111111111111111111111111111111111111111"))
	fiat := testutil.CreateOpportunity(suite.T(), suite.db, seller, models.OpportunityKindItem, "Desk", decimal.NewFromInt(80))
	opp := testutil.CreateOpportunity(suite.T(), suite.db, seller, models.OpportunityKindItem, "Bike", decimal.NewFromInt(1))
	suite.Require().NoError(suite.db.Model(opp).Update("currency", "ETH").Error)
	token := suite.tokenFor(buyer)
	txHash := "0xabababababababababababababababababababababababababababababababab"

	// Without the buyer's own transaction nothing is recorded
	w, _ := suite.request(http.MethodPost, "/v1/payments", token, map[string]interface{}{
		"opportunity_id": opp.ID,
		"payment_method": "crypto",
		"amount":         "1",
	})
	suite.Equal(http.StatusBadRequest, w.Code)

	w, _ = suite.request(http.MethodPost, "/v1/payments", token, map[string]interface{}{
		"opportunity_id": fiat.ID,
		"payment_method": "crypto",
		"amount":         "80",
		"tx_hash":        txHash,
	})
	suite.Equal(http.StatusBadRequest, w.Code)

	var count int64
	suite.Require().NoError(suite.db.Model(&models.Payment{}).Count(&count).Error)
	suite.Zero(count)

	w, _ = suite.request(http.MethodPost, "/v1/payments/escrow-call", token, map[string]interface{}{
		"opportunity_id": opp.ID,
	})
	suite.Equal(http.StatusBadGateway, w.Code)

	w, resp := suite.request(http.MethodPost, "/v1/payments", token, map[string]interface{}{
		"opportunity_id": opp.ID,
		"payment_method": "crypto",
		"amount":         "1",
		"tx_hash":        txHash,
	})
	suite.Equal(http.StatusBadGateway, w.Code)
	suite.Equal("PAYMENT_FAILED", resp.Error.Code)

	w, resp = suite.request(http.MethodGet, "/v1/wallet/status", token, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var status services.WalletStatus
	suite.Require().NoError(json.Unmarshal(resp.Data, &status))
	suite.False(status.Configured)
}

func (suite *APITestSuite) TestTokenClaims() {
	profile := testutil.CreateProfile(suite.T(), suite.db, "claimer")
	token := suite.tokenFor(profile)

	w, _ := suite.request(http.MethodPost, "/v1/tokens/claim", token, map[string]interface{}{"claim_type": "daily"})
	suite.Equal(http.StatusCreated, w.Code)

	w, _ = suite.request(http.MethodPost, "/v1/tokens/claim", token, map[string]interface{}{"claim_type": "daily"})
	suite.Equal(http.StatusConflict, w.Code)

	w, _ = suite.request(http.MethodPost, "/v1/tokens/claim", token, map[string]interface{}{"claim_type": "email_verification"})
	suite.Equal(http.StatusConflict, w.Code)

	w, _ = suite.request(http.MethodPost, "/v1/tokens/claim", token, map[string]interface{}{"claim_type": "referral"})
	suite.Equal(http.StatusBadRequest, w.Code)

	w, resp := suite.request(http.MethodGet, "/v1/tokens/balance", token, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var balance models.UserToken
	suite.Require().NoError(json.Unmarshal(resp.Data, &balance))
	suite.Equal(int64(10), balance.Balance)
}

func (suite *APITestSuite) TestAssistantUnavailable() {
	profile := testutil.CreateProfile(suite.T(), suite.db, "asker")

	w, resp := suite.request(http.MethodPost, "/v1/assistant/chat", suite.tokenFor(profile), map[string]interface{}{
		"message": "How do escrows work?",
	})
	suite.Equal(http.StatusBadGateway, w.Code)
	suite.Equal("EXTERNAL_SERVICE_ERROR", resp.Error.Code)
}

func (suite *APITestSuite) TestWebhookHandshake() {
	tests := []struct {
		name  string
		query string
		code  int
		body  string
	}{
		{"valid token", "hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", http.StatusOK, "12345"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=12345", http.StatusForbidden, "Forbidden"},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=12345", http.StatusForbidden, "Forbidden"},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			w, _ := suite.request(http.MethodGet, "/v1/webhooks/whatsapp?"+tt.query, "", nil)
			suite.Equal(tt.code, w.Code)
			suite.Equal(tt.body, w.Body.String())
		})
	}
}

func (suite *APITestSuite) TestWebhookDeliversBotReply() {
	payload := map[string]interface{}{
		"object": "whatsapp_business_account",
		"entry": []map[string]interface{}{{
			"id": "1",
			"changes": []map[string]interface{}{{
				"field": "messages",
				"value": map[string]interface{}{
					"messaging_product": "whatsapp",
					"messages": []map[string]interface{}{{
						"from":      "233551234567",
						"id":        "wamid." + uuid.NewString(),
						"timestamp": "1767225600",
						"type":      "text",
						"text":      map[string]string{"body": "hi"},
					}},
				},
			}},
		}},
	}

	raw, err := json.Marshal(payload)
	suite.Require().NoError(err)

	w := suite.postWebhook(raw, whatsapp.Sign(raw, suite.cfg.WhatsApp.AppSecret))
	suite.Equal(http.StatusOK, w.Code)
	suite.JSONEq(`{"status":"success"}`, w.Body.String())

	suite.app.Webhooks.Wait()
	sent := suite.sender.messages()
	suite.Require().Len(sent, 1)
	suite.Equal("+233551234567", sent[0].To)
	suite.Contains(sent[0].Body, "CampusHub")

	// Schema failures are acknowledged but not handled
	other := []byte(`{"object":"page"}`)
	w = suite.postWebhook(other, whatsapp.Sign(other, suite.cfg.WhatsApp.AppSecret))
	suite.Equal(http.StatusOK, w.Code)
	suite.app.Webhooks.Wait()
	suite.Len(suite.sender.messages(), 1)
}

func (suite *APITestSuite) TestWebhookMalformedJSON() {
	body := []byte("{not json")
	w := suite.postWebhook(body, whatsapp.Sign(body, suite.cfg.WhatsApp.AppSecret))
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *APITestSuite) TestWebhookRejectsUnsignedPayload() {
	linked := testutil.CreateProfile(suite.T(), suite.db, "linked", testutil.WithPhone("+233551234567"))
	body := []byte(`{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages",` +
		`"value":{"messages":[{"from":"233551234567","id":"wamid.forged","timestamp":"1767225600",` +
		`"type":"text","text":{"body":"claim"}}]}}]}]}`)

	tests := []struct {
		name      string
		signature string
	}{
		{"missing", ""},
		{"wrong secret", whatsapp.Sign(body, "not-the-secret")},
		{"other body", whatsapp.Sign([]byte("{}"), suite.cfg.WhatsApp.AppSecret)},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			w := suite.postWebhook(body, tt.signature)
			suite.Equal(http.StatusUnauthorized, w.Code)
		})
	}

	suite.app.Webhooks.Wait()
	suite.Empty(suite.sender.messages())
	var claims int64
	suite.Require().NoError(suite.db.Model(&models.TokenClaim{}).Where("profile_id = ?", linked.ID).Count(&claims).Error)
	suite.Zero(claims)
}

func (suite *APITestSuite) TestAdminRoutes() {
	admin := testutil.CreateProfile(suite.T(), suite.db, "admin", testutil.WithRole(models.ProfileRoleAdmin))
	student := testutil.CreateProfile(suite.T(), suite.db, "student")

	w, _ := suite.request(http.MethodGet, "/v1/admin/dashboard/stats", suite.tokenFor(student), nil)
	suite.Equal(http.StatusForbidden, w.Code)

	w, resp := suite.request(http.MethodGet, "/v1/admin/dashboard/stats", suite.tokenFor(admin), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var body struct {
		Stats services.AdminDashboardStats `json:"stats"`
	}
	suite.Require().NoError(json.Unmarshal(resp.Data, &body))
	suite.Equal(int64(2), body.Stats.TotalProfiles)

	path := "/v1/admin/profiles/" + student.ID.String() + "/role"
	w, _ = suite.request(http.MethodPut, path, suite.tokenFor(admin), map[string]string{"role": "superuser"})
	suite.Equal(http.StatusBadRequest, w.Code)

	w, _ = suite.request(http.MethodPut, path, suite.tokenFor(admin), map[string]string{"role": "admin"})
	suite.Equal(http.StatusOK, w.Code)

	w, _ = suite.request(http.MethodPut, "/v1/admin/profiles/"+admin.ID.String()+"/role", suite.tokenFor(admin), map[string]string{"role": "student"})
	suite.Equal(http.StatusBadRequest, w.Code)

	w, _ = suite.request(http.MethodGet, "/v1/admin/profiles?role=admin", suite.tokenFor(admin), nil)
	suite.Equal(http.StatusOK, w.Code)
	suite.Equal("2", w.Header().Get("X-Total-Count"))

	w, resp = suite.request(http.MethodPost, "/v1/admin/payments/sweep", suite.tokenFor(admin), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var sweep struct {
		Swept int64 `json:"swept"`
	}
	suite.Require().NoError(json.Unmarshal(resp.Data, &sweep))
	suite.Equal(int64(0), sweep.Swept)
}

func (suite *APITestSuite) TestHealth() {
	w, _ := suite.request(http.MethodGet, "/health", "", nil)
	suite.Equal(http.StatusOK, w.Code)
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

func TestInitializeRejectsBadTimezone(t *testing.T) {
	cfg := testutil.TestConfig()
	cfg.Tokens.Timezone = "Nowhere/Nothing"

	_, err := Initialize(Dependencies{
		DB:      testutil.NewTestDB(t),
		Config:  cfg,
		Storage: services.NewStorageServiceWithClient(cfg, nil).WithLocalDir(t.TempDir()),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timezone")
}
