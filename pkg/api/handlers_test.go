package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding-funnel/pkg/analytics"
	"onboarding-funnel/pkg/funnel"
	"onboarding-funnel/pkg/services"
	"onboarding-funnel/pkg/store"
)

type testServer struct {
	router   *gin.Engine
	store    *store.MemoryStore
	recorder *analytics.Recorder
	emitter  *analytics.Emitter
	tokens   *VisitorTokens
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		store:    store.NewMemoryStore(),
		recorder: &analytics.Recorder{},
		tokens:   NewVisitorTokens("test-secret", time.Hour, false),
	}
	ts.emitter = analytics.NewEmitter(ts.recorder, nil, 64)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = ts.emitter.Close(ctx)
	})

	pages := services.NewPageRegistry(time.Minute)
	h := NewHandlers(
		services.NewOnboardingService(ts.store, pages, ts.emitter, nil, nil, nil),
		services.NewAuthService(ts.store, pages, ts.emitter, nil, nil),
		ts.tokens,
		nil,
	)
	ts.router = gin.New()
	RegisterRoutes(ts.router, h)
	return ts
}

// browser keeps the visitor cookie between requests.
type browser struct {
	t      *testing.T
	ts     *testServer
	cookie *http.Cookie
}

func (ts *testServer) browser(t *testing.T) *browser {
	return &browser{t: t, ts: ts}
}

func (b *browser) do(method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	b.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(b.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if b.cookie != nil {
		req.AddCookie(b.cookie)
	}

	w := httptest.NewRecorder()
	b.ts.router.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		if c.Name == VisitorCookie {
			b.cookie = c
		}
	}

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(b.t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func (b *browser) open(step int) string {
	b.t.Helper()
	w, body := b.do(http.MethodGet, funnelPath(step), nil)
	require.Equal(b.t, http.StatusOK, w.Code, body)
	return body["page_id"].(string)
}

func funnelPath(n int) string {
	s, _ := funnel.Lookup(n)
	return s.Path
}

var (
	step1Body = gin.H{"values": gin.H{
		"businessName": " Acme Pte Ltd ", "businessEmail": "ops@acme.io", "country": "SG",
	}}
	step2Body = gin.H{"values": gin.H{
		"contactName": "Raj Kumar", "phoneNumber": "+65 9123 4567 89", "jobTitle": "CFO",
	}}
	step3Body = gin.H{
		"values": gin.H{
			"businessType": "private_limited", "registrationNumber": "201912345K", "monthlyVolume": "10k-50k",
		},
		"checked": gin.H{"termsAccepted": true},
	}
)

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)
	w, body := ts.browser(t).do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Empty(t, w.Result().Cookies())
}

func TestStepGateRedirectsToEarliestMissingStep(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)

	w, body := b.do(http.MethodGet, "/onboarding/steps/3", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/onboarding/steps/1", w.Header().Get("Location"))
	assert.Equal(t, "/onboarding/steps/1", body["redirect"])

	w, _ = b.do(http.MethodGet, "/onboarding/steps/9", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, ts.emitter.Flush(context.Background()))
	assert.Empty(t, ts.recorder.Tracks())
}

func TestSubmitInvalidReturnsAllErrors(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)
	page := b.open(1)

	w, body := b.do(http.MethodPost, "/onboarding/pages/"+page+"/submit", gin.H{"values": gin.H{}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	errs := body["errors"].(map[string]any)
	assert.Equal(t, "Business name is required", errs["businessName"])
	assert.Equal(t, "Email is required", errs["businessEmail"])
	assert.Equal(t, "Please select a country", errs["country"])

	w, _ = b.do(http.MethodGet, "/onboarding/steps/2", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
}

func TestCompleteFunnel(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)

	w, body := b.do(http.MethodPost, "/onboarding/pages/"+b.open(1)+"/submit", step1Body)
	require.Equal(t, http.StatusOK, w.Code, body)
	assert.Equal(t, "/onboarding/steps/2", body["next"])
	assert.EqualValues(t, 800, body["navigate_after_ms"])

	w, body = b.do(http.MethodPost, "/onboarding/pages/"+b.open(2)+"/submit", step2Body)
	require.Equal(t, http.StatusOK, w.Code, body)
	assert.Equal(t, "/onboarding/steps/3", body["next"])

	w, body = b.do(http.MethodPost, "/onboarding/pages/"+b.open(3)+"/submit", step3Body)
	require.Equal(t, http.StatusOK, w.Code, body)
	assert.Equal(t, true, body["completed"])
	assert.EqualValues(t, 1000, body["navigate_after_ms"])

	w, _ = b.do(http.MethodGet, "/onboarding/steps/2", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)

	require.NoError(t, ts.emitter.Flush(context.Background()))
	assert.Len(t, ts.recorder.Find(analytics.EventStepCompleted), 3)
	assert.Len(t, ts.recorder.Find(analytics.EventOnboardingDone), 1)
	assert.Len(t, ts.recorder.Identifies(), 3)
}

func TestVisitorsAreIsolated(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.browser(t)
	bob := ts.browser(t)

	page := alice.open(1)
	w, _ := alice.do(http.MethodPost, "/onboarding/pages/"+page+"/submit", step1Body)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = bob.do(http.MethodGet, "/onboarding/steps/2", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	w, _ = bob.do(http.MethodPost, "/onboarding/pages/"+page+"/input", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NotNil(t, alice.cookie)
	require.NotNil(t, bob.cookie)
	assert.NotEqual(t, alice.cookie.Value, bob.cookie.Value)
}

func TestTamperedCookieStartsNewVisitor(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)
	page := b.open(1)
	w, _ := b.do(http.MethodPost, "/onboarding/pages/"+page+"/submit", step1Body)
	require.Equal(t, http.StatusOK, w.Code)

	b.cookie = &http.Cookie{Name: VisitorCookie, Value: b.cookie.Value + "x"}
	w, _ = b.do(http.MethodGet, "/onboarding/steps/2", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
}

func TestFieldAndLifecycleEndpoints(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)
	page := b.open(1)
	base := "/onboarding/pages/" + page

	w, body := b.do(http.MethodPost, base+"/fields", gin.H{"field": "businessEmail", "value": "nope"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Please enter a valid email address", body["error"])

	w, _ = b.do(http.MethodPost, base+"/fields", gin.H{"field": "favouriteColour"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = b.do(http.MethodPost, base+"/lifecycle", gin.H{"kind": "teleport"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = b.do(http.MethodPost, base+"/lifecycle", gin.H{"kind": "hidden"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["tracked"])

	w, _ = b.do(http.MethodPost, base+"/input", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, body = b.do(http.MethodPost, base+"/lifecycle", gin.H{"kind": "beforeunload", "values": gin.H{"businessName": "Acme"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["tracked"])

	w, _ = b.do(http.MethodPost, base+"/back", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestBackEndpoint(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)
	w, _ := b.do(http.MethodPost, "/onboarding/pages/"+b.open(1)+"/submit", step1Body)
	require.Equal(t, http.StatusOK, w.Code)

	w, body := b.do(http.MethodPost, "/onboarding/pages/"+b.open(2)+"/back", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/onboarding/steps/1", body["redirect"])
	assert.EqualValues(t, 200, body["navigate_after_ms"])
}

func TestLoginSessionLogout(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)

	w, body := b.do(http.MethodGet, "/auth/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["logged_in"])
	before, err := ts.tokens.parse(b.cookie.Value)
	require.NoError(t, err)

	w, body = b.do(http.MethodGet, "/auth/login", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := body["page_id"].(string)

	w, body = b.do(http.MethodPost, "/auth/pages/"+page+"/submit", gin.H{"values": gin.H{"email": "x", "password": ""}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Len(t, body["errors"], 2)

	w, body = b.do(http.MethodPost, "/auth/pages/"+page+"/submit", gin.H{"values": gin.H{"email": "Jane@Example.com", "password": "secret1"}})
	require.Equal(t, http.StatusOK, w.Code, body)
	assert.Equal(t, "/", body["redirect"])
	assert.EqualValues(t, 500, body["navigate_after_ms"])
	session := body["session"].(map[string]any)
	assert.Equal(t, "jane@example.com", session["email"])

	w, body = b.do(http.MethodGet, "/auth/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["logged_in"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "jane", user["display_name"])

	w, _ = b.do(http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	after, err := ts.tokens.parse(b.cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.NotEqual(t, before.AnonymousID, after.AnonymousID)

	w, body = b.do(http.MethodGet, "/auth/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["logged_in"])

	require.NoError(t, ts.emitter.Flush(context.Background()))
	assert.Equal(t, []string{before.AnonymousID}, ts.recorder.Resets())
}

func TestVisitorTokenRejectsOtherSecrets(t *testing.T) {
	ours := NewVisitorTokens("one", time.Hour, false)
	theirs := NewVisitorTokens("two", time.Hour, false)

	b := newTestServer(t).browser(t)
	b.do(http.MethodGet, "/auth/session", nil)
	v, err := b.ts.tokens.parse(b.cookie.Value)
	require.NoError(t, err)

	token, err := theirs.sign(v)
	require.NoError(t, err)
	_, err = ours.parse(token)
	assert.Error(t, err)

	ours.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err = ours.sign(v)
	require.NoError(t, err)
	ours.now = time.Now
	_, err = ours.parse(token)
	assert.Error(t, err, "expired token")
}

func TestLoginInteractionEndpoint(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)

	_, body := b.do(http.MethodGet, "/auth/login", nil)
	page := body["page_id"].(string)

	w, _ := b.do(http.MethodPost, "/auth/pages/"+page+"/events", gin.H{"kind": "social_login", "provider": "google"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = b.do(http.MethodPost, "/auth/pages/"+page+"/events", gin.H{"kind": "wave"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = b.do(http.MethodPost, "/auth/pages/nope/events", gin.H{"kind": "signup_link"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// a step page id is not a login page
	step := b.open(1)
	w, _ = b.do(http.MethodPost, "/auth/pages/"+step+"/events", gin.H{"kind": "signup_link"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, ts.emitter.Flush(context.Background()))
	social := ts.recorder.Find(analytics.EventSocialLoginClicked)
	require.Len(t, social, 1)
	assert.Equal(t, "google", social[0].Properties["provider"])
	assert.Empty(t, ts.recorder.Find(analytics.EventSignupLinkClicked))
}
