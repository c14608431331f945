package http

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
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospital-assistant/internal/auth"
	"hospital-assistant/internal/core"
	"hospital-assistant/internal/db"
	"hospital-assistant/internal/llm"
	"hospital-assistant/internal/logger"
	"hospital-assistant/internal/metrics"
	"hospital-assistant/internal/session"
	"hospital-assistant/internal/tools"
	"hospital-assistant/internal/voice"
	"hospital-assistant/pkg"
)

func init() { gin.SetMode(gin.TestMode) }

type codeBook struct {
	mu    sync.Mutex
	codes map[string]string
}

func (c *codeBook) PasscodeIssued(_ context.Context, ev auth.PasscodeIssued) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[ev.Phone] = ev.Code
	return nil
}

func (c *codeBook) code(phone string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[phone]
}

type testServer struct {
	router  *gin.Engine
	server  *Server
	engine  *llm.Scripted
	metrics *metrics.Collector
	codes   *codeBook
	repo    *db.Repository
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	ctx := context.Background()
	log := logger.Discard()

	conn, err := db.Open(ctx, db.DriverSQLite, filepath.Join(t.TempDir(), "http.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	repo := db.NewRepository(conn, db.DriverSQLite)
	_, err = repo.Seed(ctx)
	require.NoError(t, err)

	ts := &testServer{
		engine:  &llm.Scripted{Fallback: "We are open 24/7."},
		metrics: metrics.New(),
		codes:   &codeBook{codes: map[string]string{}},
		repo:    repo,
	}
	sessions := session.NewStore(0)
	authn := auth.New(repo, ts.codes, auth.WithLogger(log))
	dispatcher := tools.NewDispatcher(repo, repo, log, tools.WithMetrics(ts.metrics))
	controller := core.NewController(ts.engine, dispatcher, log, core.WithControllerMetrics(ts.metrics))
	orch := core.NewOrchestrator(sessions, authn, nil, controller, ts.metrics, log)
	machine := voice.NewMachine(sessions, authn, orch, repo, voice.Config{}, log, voice.WithMetrics(ts.metrics))

	ts.server = NewServer(cfg, Deps{
		Orchestrator:  orch,
		Voice:         machine,
		Audit:         repo,
		Metrics:       ts.metrics,
		Log:           log,
		LLMReady:      true,
		KnowledgeDocs: func() int { return 4 },
	})
	ts.router = ts.server.Router()
	return ts
}

func (ts *testServer) postJSON(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) postForm(t *testing.T, path string, form url.Values, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, Config{})

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	health := decode[map[string]any](t, w)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, true, health["llm_ready"])
	assert.Equal(t, true, health["rag_ready"])

	ts.postJSON(t, "/chat", pkg.ChatRequest{Message: "hello"})
	w = httptest.NewRecorder()
	ts.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	snap := decode[metrics.Snapshot](t, w)
	assert.Equal(t, int64(1), snap.Counters[metrics.MessagesProcessed])
}

func TestChat(t *testing.T) {
	ts := newTestServer(t, Config{})

	w := ts.postJSON(t, "/chat", pkg.ChatRequest{Message: "What are the visiting hours?"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[pkg.ChatResponse](t, w)
	assert.Equal(t, "We are open 24/7.", resp.Reply)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, pkg.LevelGuest, resp.UserType)
	assert.False(t, resp.Verified)

	w = ts.postJSON(t, "/chat", pkg.ChatRequest{Message: "and on Sunday?", SessionID: resp.SessionID})
	assert.Equal(t, resp.SessionID, decode[pkg.ChatResponse](t, w).SessionID)

	w = ts.postJSON(t, "/chat", map[string]string{"session_id": resp.SessionID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	problem := decode[pkg.Problem](t, w)
	assert.Equal(t, http.StatusBadRequest, problem.Status)
	assert.Equal(t, "/chat", problem.Instance)
}

func TestChatRateLimit(t *testing.T) {
	ts := newTestServer(t, Config{APIRateLimit: 2, RateWindow: time.Minute})

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, ts.postJSON(t, "/chat", pkg.ChatRequest{Message: "hi"}).Code)
	}
	w := ts.postJSON(t, "/chat", pkg.ChatRequest{Message: "hi"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Too many requests. Please slow down.", decode[pkg.Problem](t, w).Detail)
	assert.Equal(t, int64(1), ts.metrics.Counter(metrics.RateLimitedTotal))
	assert.Len(t, ts.engine.Requests, 2)
}

func TestPasscodeLogin(t *testing.T) {
	ts := newTestServer(t, Config{})

	w := ts.postJSON(t, "/auth/login", pkg.LoginRequest{Phone: "9000000000"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[pkg.LoginResponse](t, w).Success)

	w = ts.postJSON(t, "/auth/login", pkg.LoginRequest{Phone: "9876543210"})
	login := decode[pkg.LoginResponse](t, w)
	require.True(t, login.Success)
	assert.Equal(t, "OTP sent to 987****210", login.Message)

	w = ts.postJSON(t, "/auth/verify-otp", pkg.OTPVerifyRequest{Phone: "9876543210", OTP: "000000x", SessionID: login.SessionID})
	assert.False(t, decode[pkg.OTPVerifyResponse](t, w).Success)

	w = ts.postJSON(t, "/auth/verify-otp", pkg.OTPVerifyRequest{Phone: "9876543210", OTP: ts.codes.code("9876543210"), SessionID: login.SessionID})
	verify := decode[pkg.OTPVerifyResponse](t, w)
	require.True(t, verify.Success)
	assert.Equal(t, "CGH-10001", verify.PatientCode)

	w = ts.postJSON(t, "/chat", pkg.ChatRequest{Message: "show my bills", SessionID: login.SessionID})
	resp := decode[pkg.ChatResponse](t, w)
	assert.True(t, resp.Verified)
	assert.Equal(t, pkg.LevelRegistered, resp.UserType)

	w = ts.postJSON(t, "/auth/verify-otp", map[string]string{"phone": "9876543210"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVoiceWebhooks(t *testing.T) {
	ts := newTestServer(t, Config{PublicBaseURL: "https://assistant.example/"})

	w := ts.postForm(t, "/voice/incoming", url.Values{"CallSid": {"CA100"}, "From": {"+919876543211"}}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/xml", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, `<Pause length="1"`)
	assert.Contains(t, body, `action="https://assistant.example/voice/respond"`)
	assert.Contains(t, body, "Welcome back to City General Hospital, Sneha Verma.")
	assert.Contains(t, body, `<Redirect method="POST">https://assistant.example/voice/respond</Redirect>`)

	w = ts.postForm(t, "/voice/respond", url.Values{"CallSid": {"CA100"}, "From": {"+919876543211"}, "SpeechResult": {"when are you open"}, "Confidence": {"0.93"}}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "We are open 24/7.")

	w = ts.postForm(t, "/voice/status", url.Values{"CallSid": {"CA100"}, "CallStatus": {"completed"}, "CallDuration": {"64"}}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, ts.server.voice.Len())

	w = ts.postForm(t, "/voice/respond", url.Values{"CallSid": {"CA100"}, "SpeechResult": {"hello"}}, nil)
	assert.Contains(t, w.Body.String(), "Sorry, your session has expired. Please call again.")
	assert.Contains(t, w.Body.String(), "<Hangup")
}

func TestVoiceRateLimitByCaller(t *testing.T) {
	ts := newTestServer(t, Config{VoiceRateLimit: 1, RateWindow: time.Minute})

	form := url.Values{"CallSid": {"CA1"}, "From": {"+15550001111"}}
	assert.Equal(t, http.StatusOK, ts.postForm(t, "/voice/incoming", form, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, ts.postForm(t, "/voice/respond", form, nil).Code)

	other := url.Values{"CallSid": {"CA2"}, "From": {"+15550002222"}}
	assert.Equal(t, http.StatusOK, ts.postForm(t, "/voice/incoming", other, nil).Code)
}

func twilioSign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestTwilioSignature(t *testing.T) {
	const token = "twilio-secret"
	ts := newTestServer(t, Config{TwilioAuthToken: token, PublicBaseURL: "https://assistant.example"})
	form := url.Values{"CallSid": {"CA9"}, "From": {"+15550001111"}}

	assert.Equal(t, http.StatusForbidden, ts.postForm(t, "/voice/incoming", form, nil).Code)

	bad := http.Header{"X-Twilio-Signature": {"bm9wZQ=="}}
	assert.Equal(t, http.StatusForbidden, ts.postForm(t, "/voice/incoming", form, bad).Code)

	good := http.Header{"X-Twilio-Signature": {twilioSign(token, "https://assistant.example/voice/incoming", form)}}
	w := ts.postForm(t, "/voice/incoming", form, good)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Gather")
}

func TestAdminAudit(t *testing.T) {
	const secret = "admin-secret"
	ts := newTestServer(t, Config{AdminJWTSecret: secret})
	ctx := context.Background()
	require.NoError(t, ts.repo.RecordToolInvocation(ctx, pkg.ToolInvocation{
		SessionID: "s1", IdentityLevel: pkg.LevelGuest, Channel: pkg.ChannelWeb,
		ToolName: "get_doctor_schedule", Arguments: "{}", Success: true, ResultSummary: "ok",
	}))

	get := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/admin/audit?limit=10", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		ts.router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, get("").Code)
	assert.Equal(t, http.StatusUnauthorized, get("Bearer not-a-jwt").Code)

	expired, err := IssueAdminToken(secret, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get("Bearer "+expired).Code)

	forged, err := IssueAdminToken("other-secret", time.Hour, time.Now())
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get("Bearer "+forged).Code)

	token, err := IssueAdminToken(secret, time.Hour, time.Now())
	require.NoError(t, err)
	w := get("Bearer " + token)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Records []pkg.ToolInvocation `json:"records"`
		Count   int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "get_doctor_schedule", body.Records[0].ToolName)
}

func TestAdminDisabledWithoutSecret(t *testing.T) {
	ts := newTestServer(t, Config{})
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/audit", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	_, err := IssueAdminToken("", time.Hour, time.Now())
	assert.Error(t, err)
}

func TestWebSocketChat(t *testing.T) {
	ts := newTestServer(t, Config{})
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/chat", nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() map[string]any {
		var m map[string]any
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		require.NoError(t, conn.ReadJSON(&m))
		return m
	}

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, "pong", read()["type"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "init"}))
	hello := read()
	assert.Equal(t, "init", hello["type"])
	assert.Equal(t, "guest", hello["user_type"])
	sessionID, _ := hello["session_id"].(string)
	require.NotEmpty(t, sessionID)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "chat", "message": "Is the pharmacy open?"}))
	typing := read()
	assert.Equal(t, "typing", typing["type"])
	reply := read()
	assert.Equal(t, "chat_response", reply["type"])
	assert.Equal(t, "We are open 24/7.", reply["reply"])
	assert.Equal(t, sessionID, reply["session_id"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "login", "phone": "9876543212"}))
	login := read()
	assert.Equal(t, "login_response", login["type"])
	assert.Equal(t, true, login["success"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "verify_otp", "phone": "9876543212", "otp": ts.codes.code("9876543212")}))
	otp := read()
	assert.Equal(t, "otp_response", otp["type"])
	assert.Equal(t, true, otp["success"])
	assert.Equal(t, "CGH-10003", otp["patient_code"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, "error", read()["type"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "dance"}))
	assert.Equal(t, "Unknown message type.", read()["message"])
}

func TestRenderTwiMLRejectsUnknownInstruction(t *testing.T) {
	ts := newTestServer(t, Config{})
	_, err := ts.server.renderTwiML(voice.Response{Instructions: []voice.Instruction{nil}})
	assert.Error(t, err)
}
