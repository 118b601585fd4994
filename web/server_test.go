// ABOUTME: HTTP tests for the REST API against a temporary SQLite database
// ABOUTME: Covers auth, tenancy, campaign transitions and the public provider callbacks
package web

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/callhenk/henk-sub004/auth"
	"github.com/callhenk/henk-sub004/config"
	"github.com/callhenk/henk-sub004/db"
	"github.com/callhenk/henk-sub004/elevenlabs"
	"github.com/callhenk/henk-sub004/models"
	"github.com/callhenk/henk-sub004/twilio"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const jwtSecret = "test-secret"

type fixture struct {
	cfg      *config.Config
	db       *db.DB
	handler  http.Handler
	business *models.Business
	agent    *models.Agent
	campaign *models.Campaign
}

func testConfig() *config.Config {
	cfg := &config.Config{AppURL: "https://app.example.org", HTTPClientTimeout: 5 * time.Second}
	cfg.Supabase.JWTSecret = jwtSecret
	cfg.Resend.From = "Henk <noreply@example.org>"
	return cfg
}

func setup(t *testing.T, configure ...func(*config.Config)) *fixture {
	t.Helper()
	ctx := context.Background()

	d, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, db.Migrate(ctx, d, nil))

	businesses := db.NewBusinessesRepository(d)
	b := &models.Business{Name: "Hope"}
	require.NoError(t, businesses.Create(ctx, b))
	other := &models.Business{Name: "Elsewhere"}
	require.NoError(t, businesses.Create(ctx, other))

	for _, m := range []*models.TeamMember{
		{BusinessID: b.ID, UserID: "owner", Role: models.RoleOwner},
		{BusinessID: b.ID, UserID: "viewer", Role: models.RoleViewer},
		{BusinessID: other.ID, UserID: "outsider", Role: models.RoleOwner},
	} {
		require.NoError(t, businesses.AddMember(ctx, m))
	}

	agent := &models.Agent{BusinessID: b.ID, Name: "Caller"}
	require.NoError(t, db.NewAgentsRepository(d).Create(ctx, agent))
	campaign := &models.Campaign{BusinessID: b.ID, Name: "Spring", AgentID: &agent.ID}
	require.NoError(t, db.NewCampaignsRepository(d).Create(ctx, campaign))

	cfg := testConfig()
	for _, fn := range configure {
		fn(cfg)
	}
	s := NewServer(cfg, d, zap.NewNop())
	return &fixture{cfg: cfg, db: d, handler: s.Handler(), business: b, agent: agent, campaign: campaign}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.Sign(jwtSecret, userID, userID+"@example.org", time.Hour)
	require.NoError(t, err)
	return tok
}

// do sends a JSON request as userID ("" for anonymous).
func (f *fixture) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Source  string          `json:"source"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestRequiresAuth(t *testing.T) {
	f := setup(t)
	rec := f.do(t, http.MethodGet, "/api/campaigns", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	env := decode(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "Unauthorized", env.Error)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreflight(t *testing.T) {
	f := setup(t)
	rec := f.do(t, http.MethodOptions, "/api/campaigns/"+f.campaign.ID.String()+"/start", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestCampaignStartStop(t *testing.T) {
	f := setup(t)
	base := "/api/campaigns/" + f.campaign.ID.String()

	rec := f.do(t, http.MethodPost, base+"/stop", "owner", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Campaign is not currently active", decode(t, rec).Error)

	rec = f.do(t, http.MethodPost, base+"/start", "owner", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env := decode(t, rec)
	assert.Equal(t, "Campaign started", env.Message)
	var started models.Campaign
	require.NoError(t, json.Unmarshal(env.Data, &started))
	assert.Equal(t, models.CampaignActive, started.Status)
	assert.NotNil(t, started.StartDate)

	rec = f.do(t, http.MethodPost, base+"/start", "owner", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Campaign is already active", decode(t, rec).Error)

	rec = f.do(t, http.MethodPost, base+"/stop", "owner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stopped models.Campaign
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &stopped))
	assert.Equal(t, models.CampaignPaused, stopped.Status)
	assert.NotNil(t, stopped.StoppedAt)
}

func TestCampaignAccess(t *testing.T) {
	f := setup(t)
	base := "/api/campaigns/" + f.campaign.ID.String()

	rec := f.do(t, http.MethodPost, base+"/start", "viewer", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Insufficient permissions", decode(t, rec).Error)

	// Viewers can still read
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, base, "viewer", nil).Code)

	// Members of another business are refused, unknown ids are missing
	rec = f.do(t, http.MethodGet, base, "outsider", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "No active business membership", decode(t, rec).Error)

	rec = f.do(t, http.MethodPost, base+"/start", "outsider", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/campaigns/"+uuid.NewString()+"/start", "owner", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/campaigns", "stranger", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "No active business membership", decode(t, rec).Error)
}

func TestCampaignCRUD(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodPost, "/api/campaigns", "owner", map[string]any{"description": "no name"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name is required", decode(t, rec).Error)

	rec = f.do(t, http.MethodPost, "/api/campaigns", "owner", map[string]any{
		"name":              "Autumn",
		"agent_id":          f.agent.ID.String(),
		"call_window_start": "09:00",
		"call_window_end":   "17:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created models.Campaign
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &created))
	assert.Equal(t, models.CampaignDraft, created.Status)
	assert.Equal(t, f.business.ID, created.BusinessID)

	rec = f.do(t, http.MethodPut, "/api/campaigns/"+created.ID.String(), "owner", map[string]any{"call_window_end": "5pm"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "call_window_end must be HH:MM", decode(t, rec).Error)

	// A window that opens and closes at the same minute never dials
	rec = f.do(t, http.MethodPut, "/api/campaigns/"+created.ID.String(), "owner", map[string]any{"call_window_end": "09:00"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "call_window_start and call_window_end must differ", decode(t, rec).Error)

	rec = f.do(t, http.MethodGet, "/api/campaigns?status=draft", "owner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Campaign
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &list))
	assert.Len(t, list, 2)

	// Active campaigns cannot be deleted
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/campaigns/"+created.ID.String()+"/start", "owner", nil).Code)
	rec = f.do(t, http.MethodDelete, "/api/campaigns/"+created.ID.String(), "owner", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, "/api/campaigns/"+f.campaign.ID.String(), "owner", nil).Code)
}

func TestLeadsAndAssignment(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodPost, "/api/leads", "owner", map[string]any{"first_name": "Ada", "phone": "12"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "phone must be a valid phone number", decode(t, rec).Error)

	rec = f.do(t, http.MethodPost, "/api/leads", "owner", map[string]any{"first_name": "Ada", "phone": "+1 555 765 4321"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var lead models.Lead
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &lead))
	assert.Equal(t, models.SourceManual, lead.Source)

	base := "/api/campaigns/" + f.campaign.ID.String()
	rec = f.do(t, http.MethodPost, base+"/leads", "owner", map[string]any{"lead_ids": []string{lead.ID.String()}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"added":1}`, string(decode(t, rec).Data))

	rec = f.do(t, http.MethodGet, base+"/stats", "viewer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.CampaignStats
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &stats))
	assert.Equal(t, 1, stats.TotalLeads)

	// Another tenant's lead cannot be read or assigned
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/api/leads/"+lead.ID.String(), "outsider", nil).Code)
}

func TestAgentsRequireName(t *testing.T) {
	f := setup(t)
	rec := f.do(t, http.MethodPost, "/api/agents", "owner", map[string]any{"voice_id": "v1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name is required", decode(t, rec).Error)

	rec = f.do(t, http.MethodPost, "/api/agents", "owner", map[string]any{"name": "Second"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/elevenlabs-agent", "owner", map[string]any{"agent_id": f.agent.ID.String()})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "ElevenLabs is not configured", decode(t, rec).Error)
}

func TestSimulateCallValidation(t *testing.T) {
	f := setup(t)
	rec := f.do(t, http.MethodPost, "/api/campaigns/simulate-call", "owner", map[string]any{"phone_number": "+15557654321"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "agent_id or campaign_id is required", decode(t, rec).Error)
}

func TestConversationStarted(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodPost, "/api/grants/conversation-started", "", map[string]any{"agent_id": "agent_test123"})
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	assert.True(t, env.Success)
	assert.Equal(t, "Conversation tracked (email not configured)", env.Message)

	for _, path := range []string{"/api/grants/conversation-started", "/api/demo/conversation-started"} {
		rec = f.do(t, http.MethodPost, path, "", map[string]any{"user_email": "x@example.org"})
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, "Agent ID is required", decode(t, rec).Error)
	}

	// Garbage is treated as an empty body
	req := httptest.NewRequest(http.MethodPost, "/api/demo/conversation-started", strings.NewReader("{not json"))
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversationFallsBackToLocal(t *testing.T) {
	f := setup(t)
	started := time.Unix(1700000000, 0).UTC()
	conv := &models.Conversation{
		BusinessID:      f.business.ID,
		AgentID:         &f.agent.ID,
		ConversationID:  "conv_local",
		Status:          models.ConversationCompleted,
		Transcript:      []models.TranscriptTurn{{Role: "agent", Message: "Hello"}},
		DurationSeconds: 30,
		StartedAt:       &started,
	}
	require.NoError(t, db.NewConversationsRepository(f.db).Create(context.Background(), conv))

	for _, id := range []string{"conv_local", conv.ID.String()} {
		rec := f.do(t, http.MethodGet, "/api/elevenlabs/conversations/"+id, "owner", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		env := decode(t, rec)
		assert.Equal(t, "local", env.Source)

		var doc elevenlabs.Conversation
		require.NoError(t, json.Unmarshal(env.Data, &doc))
		assert.Equal(t, "conv_local", doc.ConversationID)
		assert.Equal(t, 30, doc.Metadata.CallDurationSecs)
		assert.Len(t, doc.Transcript, 1)
	}

	rec := f.do(t, http.MethodGet, "/api/elevenlabs/conversations/conv_local", "outsider", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Conversation not found", decode(t, rec).Error)
}

func TestElevenLabsWebhookSignature(t *testing.T) {
	f := setup(t, func(cfg *config.Config) { cfg.ElevenLabs.WebhookSecret = "whsec" })
	body := []byte(`{"type":"post_call_transcription","data":{"conversation_id":"conv_x","agent_id":"unknown"}}`)

	send := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/elevenlabs", bytes.NewReader(body))
		if header != "" {
			req.Header.Set(elevenlabs.SignatureHeader, header)
		}
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, send("").Code)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	assert.Equal(t, http.StatusUnauthorized, send("t="+ts+",v0="+elevenlabs.Sign(ts, []byte("tampered"), "whsec")).Code)

	// Valid but unresolvable deliveries are acknowledged
	rec := send("t=" + ts + ",v0=" + elevenlabs.Sign(ts, body, "whsec"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode(t, rec).Success)
}

func TestTwilioToken(t *testing.T) {
	f := setup(t)
	rec := f.do(t, http.MethodPost, "/api/twilio/token", "owner", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Twilio is not configured", decode(t, rec).Error)

	f = setup(t, func(cfg *config.Config) {
		cfg.Twilio.AccountSID = "AC123"
		cfg.Twilio.APIKeySID = "SK123"
		cfg.Twilio.APIKeySecret = "secret"
		cfg.Twilio.TwiMLAppSID = "AP123"
	})
	rec = f.do(t, http.MethodPost, "/api/twilio/token", "owner", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var data struct {
		Token    string `json:"token"`
		Identity string `json:"identity"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &data))
	assert.Equal(t, "owner", data.Identity)
	assert.NotEmpty(t, data.Token)
}

// twilioSignature signs a form POST the way Twilio does.
func twilioSignature(authToken, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	payload := fullURL
	for _, k := range keys {
		payload += k + form.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestTwiMLSignature(t *testing.T) {
	f := setup(t, func(cfg *config.Config) {
		cfg.Twilio.AuthToken = "authtoken"
		cfg.Twilio.CallerID = "+15550001111"
	})
	form := url.Values{"To": {"(555) 765-4321"}}

	post := func(signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/twilio/twiml", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set(twilio.SignatureHeader, signature)
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		return rec
	}

	rec := post("bogus")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Invalid Twilio signature", decode(t, rec).Error)

	rec = post(twilioSignature("authtoken", "http://example.com/api/twilio/twiml", form))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `callerId="+15550001111"`)
	assert.Contains(t, rec.Body.String(), "+15557654321")
	assert.Contains(t, rec.Body.String(), "http://example.com/api/twilio/status")
}

func TestSalesforceCallbackRejectsBadState(t *testing.T) {
	f := setup(t, func(cfg *config.Config) {
		cfg.Salesforce.ClientID = "id"
		cfg.Salesforce.ClientSecret = "secret"
	})

	rec := f.do(t, http.MethodGet, "/api/integrations/salesforce/callback?state=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing authorization code", decode(t, rec).Error)

	rec = f.do(t, http.MethodGet, "/api/integrations/salesforce/callback?code=xyz&state=!!", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid OAuth state", decode(t, rec).Error)

	rec = f.do(t, http.MethodGet, "/api/integrations/salesforce/authorize?return_to=/home/settings", "owner", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/services/oauth2/authorize", loc.Path)
	assert.NotEmpty(t, loc.Query().Get("state"))

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/api/integrations/salesforce/authorize", "viewer", nil).Code)
}

func TestSalesforceCallbackRequiresSignedState(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","refresh_token":"ref","token_type":"Bearer","instance_url":"https://hope.my.salesforce.com"}`))
	}))
	defer tokenServer.Close()

	f := setup(t, func(cfg *config.Config) {
		cfg.Salesforce.ClientID = "id"
		cfg.Salesforce.ClientSecret = "secret"
		cfg.Salesforce.LoginURL = tokenServer.URL
	})
	integrations := db.NewIntegrationsRepository(f.db)

	forged := base64.RawURLEncoding.EncodeToString([]byte(
		`{"business_id":"` + f.business.ID.String() + `","user_id":"owner","nonce":"anything","iat":` +
			strconv.FormatInt(time.Now().Unix(), 10) + `}`))
	rec := f.do(t, http.MethodGet, "/api/integrations/salesforce/callback?code=attacker&state="+forged, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid OAuth state", decode(t, rec).Error)
	_, err := integrations.Get(context.Background(), f.business.ID, models.ProviderSalesforce)
	assert.ErrorIs(t, err, db.ErrNotFound)

	rec = f.do(t, http.MethodGet, "/api/integrations/salesforce/authorize", "owner", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")

	rec = f.do(t, http.MethodGet, "/api/integrations/salesforce/callback?code=good&state="+url.QueryEscape(state), "", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://app.example.org/home/integrations?success=salesforce_connected", rec.Header().Get("Location"))

	stored, err := integrations.Get(context.Background(), f.business.ID, models.ProviderSalesforce)
	require.NoError(t, err)
	assert.Equal(t, "tok", stored.Credentials["access_token"])
	assert.Equal(t, "https://hope.my.salesforce.com", stored.Config["instance_url"])
}

func TestKnowledgeBaseIsTenantScoped(t *testing.T) {
	var (
		mu      sync.Mutex
		deleted []string
	)
	deletedIDs := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return slices.Clone(deleted)
	}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/convai/knowledge-base/text":
			_, _ = w.Write([]byte(`{"id":"doc-1","name":"FAQ"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/convai/knowledge-base":
			_, _ = w.Write([]byte(`{"documents":[{"id":"doc-1","name":"FAQ"},{"id":"doc-foreign","name":"Theirs"}]}`))
		case r.Method == http.MethodDelete:
			mu.Lock()
			deleted = append(deleted, strings.TrimPrefix(r.URL.Path, "/v1/convai/knowledge-base/"))
			mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer upstream.Close()

	f := setup(t, func(cfg *config.Config) {
		cfg.ElevenLabs.APIKey = "xi"
		cfg.ElevenLabs.BaseURL = upstream.URL
	})
	const kb = "/api/elevenlabs-agent/knowledge-base"

	rec := f.do(t, http.MethodPost, kb, "owner", map[string]string{
		"text": "We plant trees.", "name": "FAQ", "agent_id": f.agent.ID.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	list := func(userID string) []string {
		rec := f.do(t, http.MethodGet, kb, userID, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var data struct {
			Documents []elevenlabs.Document `json:"documents"`
		}
		require.NoError(t, json.Unmarshal(decode(t, rec).Data, &data))
		ids := []string{}
		for _, d := range data.Documents {
			ids = append(ids, d.ID)
		}
		return ids
	}
	assert.Equal(t, []string{"doc-1"}, list("owner"))
	assert.Empty(t, list("outsider"))

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, kb+"/doc-1", "outsider", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, kb+"/doc-foreign", "owner", nil).Code)
	assert.Empty(t, deletedIDs())

	rec = f.do(t, http.MethodDelete, kb+"/doc-1", "owner", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"doc-1"}, deletedIDs())

	agent, err := db.NewAgentsRepository(f.db).Get(context.Background(), f.agent.ID)
	require.NoError(t, err)
	assert.Empty(t, agent.KnowledgeBaseIDs)
}
