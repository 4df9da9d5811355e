package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"voxassist/internal/auth"
	"voxassist/internal/config"
	"voxassist/internal/models"
	"voxassist/internal/service/assistant"
	"voxassist/internal/storage"
	"voxassist/internal/worker"
)

type fakeWorkers struct {
	askFn     func(worker.AskRequest) (models.Intent, error)
	lastAsk   worker.AskRequest
	resetUser int64
}

func (f *fakeWorkers) Ask(req worker.AskRequest) (models.Intent, error) {
	f.lastAsk = req
	if f.askFn != nil {
		return f.askFn(req)
	}
	return models.Intent{Type: models.IntentGeneral, UserInput: req.Command, Response: "ok"}, nil
}

func (f *fakeWorkers) ResetUser(userID int64) {
	f.resetUser = userID
}

type testServer struct {
	router   *gin.Engine
	workers  *fakeWorkers
	db       *sql.DB
	fileBase string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// A pooled second connection would see a fresh in-memory database.
	db.SetMaxOpenConns(1)
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		db.Close()
		t.Fatalf("migrate db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	workers := &fakeWorkers{}
	fileBase := t.TempDir()
	handler := NewHandler(
		assistant.NewService(db),
		auth.NewService(db, nil, time.Hour),
		workers,
		fileBase,
	)
	router := gin.New()
	handler.RegisterRoutes(router)
	return &testServer{router: router, workers: workers, db: db, fileBase: fileBase}
}

type session struct {
	authCookie *http.Cookie
	csrfCookie *http.Cookie
}

func (s *session) apply(req *http.Request) {
	req.AddCookie(s.authCookie)
	req.AddCookie(s.csrfCookie)
	req.Header.Set("X-CSRF-Token", s.csrfCookie.Value)
}

func (ts *testServer) do(t *testing.T, method, path string, body any, sess *session) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sess != nil {
		sess.apply(req)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) signup(t *testing.T, name, email, password string) *session {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/auth/signup", gin.H{
		"userName": name,
		"email":    email,
		"password": password,
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("signup returned %d: %s", w.Code, w.Body.String())
	}
	sess := &session{}
	for _, ck := range w.Result().Cookies() {
		switch ck.Name {
		case "auth_token":
			sess.authCookie = ck
		case "csrf_token":
			sess.csrfCookie = ck
		}
	}
	if sess.authCookie == nil || sess.authCookie.Value == "" {
		t.Fatalf("signup did not set auth cookie")
	}
	if sess.csrfCookie == nil || sess.csrfCookie.Value == "" {
		t.Fatalf("signup did not set csrf cookie")
	}
	return sess
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestSignupAndLogin(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "alice", "alice@example.com", "secret123")

	w := ts.do(t, http.MethodPost, "/api/auth/login", gin.H{
		"email":    "alice@example.com",
		"password": "secret123",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", w.Code, w.Body.String())
	}
	body := decodeJSON(t, w)
	if body["user_name"] != "alice" || body["email"] != "alice@example.com" {
		t.Fatalf("unexpected login body: %v", body)
	}

	w = ts.do(t, http.MethodPost, "/api/auth/login", gin.H{
		"email":    "alice@example.com",
		"password": "wrong",
	}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad password returned %d", w.Code)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "bob", "bob@example.com", "secret123")

	w := ts.do(t, http.MethodPost, "/api/auth/signup", gin.H{
		"userName": "bob2",
		"email":    "bob@example.com",
		"password": "secret123",
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate email returned %d", w.Code)
	}
}

func TestCurrentUserRequiresAuth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/api/user/current", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestCurrentUserWithHistory(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.signup(t, "carol", "carol@example.com", "secret123")

	w := ts.do(t, http.MethodGet, "/api/user/current", nil, sess)
	if w.Code != http.StatusOK {
		t.Fatalf("current returned %d: %s", w.Code, w.Body.String())
	}
	body := decodeJSON(t, w)
	user, ok := body["user"].(map[string]any)
	if !ok || user["user_name"] != "carol" {
		t.Fatalf("unexpected user payload: %v", body)
	}
	history, ok := body["history"].([]any)
	if !ok || len(history) != 0 {
		t.Fatalf("expected empty history array, got %v", body["history"])
	}
}

func TestUpdateAssistantJSON(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.signup(t, "dave", "dave@example.com", "secret123")

	w := ts.do(t, http.MethodPost, "/api/user/update", gin.H{
		"assistantName": "Nova",
		"imageUrl":      "https://example.com/nova.png",
	}, sess)
	if w.Code != http.StatusOK {
		t.Fatalf("update returned %d: %s", w.Code, w.Body.String())
	}
	body := decodeJSON(t, w)
	if body["assistant_name"] != "Nova" || body["assistant_image"] != "https://example.com/nova.png" {
		t.Fatalf("unexpected update body: %v", body)
	}

	// Missing fields are rejected.
	w = ts.do(t, http.MethodPost, "/api/user/update", gin.H{"assistantName": ""}, sess)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty update returned %d", w.Code)
	}
}

// pngBytes is a minimal payload the stdlib content sniffer reports as image/png.
var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

func (ts *testServer) doMultipartUpdate(t *testing.T, sess *session, name, filename string, file []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("assistantName", name); err != nil {
		t.Fatalf("write field: %v", err)
	}
	fw, err := mw.CreateFormFile("assistantImage", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(file); err != nil {
		t.Fatalf("write file part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/user/update", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	sess.apply(req)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func TestUpdateAssistantMultipartUpload(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.signup(t, "kate", "kate@example.com", "secret123")

	w := ts.doMultipartUpdate(t, sess, "Nova", "nova.png", pngBytes)
	if w.Code != http.StatusOK {
		t.Fatalf("multipart update returned %d: %s", w.Code, w.Body.String())
	}
	body := decodeJSON(t, w)
	image, _ := body["assistant_image"].(string)
	if !strings.HasPrefix(image, "/uploads/avatars/") || !strings.HasSuffix(image, "nova.png") {
		t.Fatalf("unexpected avatar path: %q", image)
	}
	stored := filepath.Join(ts.fileBase, strings.TrimPrefix(image, "/uploads/"))
	if _, err := os.Stat(stored); err != nil {
		t.Fatalf("avatar not stored at %s: %v", stored, err)
	}

	// A second upload with the same filename gets a distinct path.
	w = ts.doMultipartUpdate(t, sess, "Nova", "nova.png", pngBytes)
	if w.Code != http.StatusOK {
		t.Fatalf("second multipart update returned %d: %s", w.Code, w.Body.String())
	}
	second, _ := decodeJSON(t, w)["assistant_image"].(string)
	if second == image {
		t.Fatalf("duplicate filename reused the same path: %q", second)
	}
}

func TestUpdateAssistantRejectsNonImage(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.signup(t, "liam", "liam@example.com", "secret123")

	w := ts.doMultipartUpdate(t, sess, "Nova", "nova.png", []byte("just some plain text"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("non-image upload returned %d: %s", w.Code, w.Body.String())
	}
}

func TestAskToAssistant(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.signup(t, "erin", "erin@example.com", "secret123")

	ts.workers.askFn = func(req worker.AskRequest) (models.Intent, error) {
		return models.Intent{
			Type:      models.IntentGoogleSearch,
			UserInput: "golang",
			Response:  "Searching Google for golang.",
		}, nil
	}

	w := ts.do(t, http.MethodPost, "/api/user/asktoassistant", gin.H{"command": "  search golang  "}, sess)
	if w.Code != http.StatusOK {
		t.Fatalf("ask returned %d: %s", w.Code, w.Body.String())
	}
	body := decodeJSON(t, w)
	if body["type"] != string(models.IntentGoogleSearch) || body["response"] != "Searching Google for golang." {
		t.Fatalf("unexpected ask body: %v", body)
	}
	if ts.workers.lastAsk.Command != "search golang" {
		t.Fatalf("command not trimmed: %q", ts.workers.lastAsk.Command)
	}
	if ts.workers.lastAsk.UserID <= 0 {
		t.Fatalf("user id not forwarded: %d", ts.workers.lastAsk.UserID)
	}
}

func TestAskToAssistantErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.signup(t, "frank", "frank@example.com", "secret123")

	cases := []struct {
		err  error
		code int
	}{
		{worker.ErrBusy, http.StatusTooManyRequests},
		{fmt.Errorf("append history: %w", assistant.ErrHistoryValidation), http.StatusBadRequest},
		{sql.ErrNoRows, http.StatusNotFound},
		{fmt.Errorf("oracle exploded"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		ts.workers.askFn = func(worker.AskRequest) (models.Intent, error) {
			return models.Intent{}, tc.err
		}
		w := ts.do(t, http.MethodPost, "/api/user/asktoassistant", gin.H{"command": "hi"}, sess)
		if w.Code != tc.code {
			t.Fatalf("error %v mapped to %d, want %d", tc.err, w.Code, tc.code)
		}
	}
}

func TestAskToAssistantEmptyCommand(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.signup(t, "grace", "grace@example.com", "secret123")

	w := ts.do(t, http.MethodPost, "/api/user/asktoassistant", gin.H{"command": "   "}, sess)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty command returned %d", w.Code)
	}
}

func TestCSRFEnforcedOnWrites(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.signup(t, "heidi", "heidi@example.com", "secret123")

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(gin.H{"command": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/user/asktoassistant", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(sess.authCookie)
	req.AddCookie(sess.csrfCookie)
	// No X-CSRF-Token header.
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("missing csrf header returned %d", w.Code)
	}
}

func TestBearerTokenSkipsCSRF(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.signup(t, "ivan", "ivan@example.com", "secret123")

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(gin.H{"command": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/user/asktoassistant", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+sess.authCookie.Value)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("bearer request returned %d: %s", w.Code, w.Body.String())
	}
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.signup(t, "judy", "judy@example.com", "secret123")

	// A second login gives this user a second live session.
	w := ts.do(t, http.MethodPost, "/api/auth/login", gin.H{
		"email":    "judy@example.com",
		"password": "secret123",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("second login returned %d", w.Code)
	}
	other := &session{}
	for _, ck := range w.Result().Cookies() {
		switch ck.Name {
		case "auth_token":
			other.authCookie = ck
		case "csrf_token":
			other.csrfCookie = ck
		}
	}
	if other.authCookie == nil {
		t.Fatalf("second login did not set auth cookie")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil)
	req.AddCookie(sess.authCookie)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout returned %d", rec.Code)
	}
	if ts.workers.resetUser <= 0 {
		t.Fatalf("logout did not reset the user's worker")
	}

	// Every session for the user is dead afterwards.
	for i, s := range []*session{sess, other} {
		w := ts.do(t, http.MethodGet, "/api/user/current", nil, s)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("session %d survived logout: %d", i, w.Code)
		}
	}
}
