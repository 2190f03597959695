package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"toolbox/internal/api"
	"toolbox/internal/auth"
	"toolbox/internal/model"
	"toolbox/internal/pipeline"
)

const (
	dashUsername = "operator"
	dashPassword = "correct horse battery staple"
)

// memoryStore implements both the handler-facing and the pipeline-facing
// record store interfaces so one fake backs the whole flow.
type memoryStore struct {
	mu      sync.Mutex
	seq     int
	essays  map[string]*model.Essay
	audio   map[string][]byte
	created int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		essays: make(map[string]*model.Essay),
		audio:  make(map[string][]byte),
	}
}

func (s *memoryStore) ListEssays(context.Context) ([]model.Essay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]model.Essay, 0, len(s.essays))
	for _, e := range s.essays {
		items = append(items, *e)
	}
	return items, nil
}

func (s *memoryStore) GetEssay(_ context.Context, id string) (*model.Essay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	essay, ok := s.essays[id]
	if !ok {
		return nil, fmt.Errorf("essay %s: %w", id, model.ErrNotFound)
	}
	copied := *essay
	return &copied, nil
}

func (s *memoryStore) CreateEssay(_ context.Context, title, content, voiceID string) (*model.Essay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.created++
	essay := &model.Essay{
		ID:      fmt.Sprintf("essay-%d", s.seq),
		Title:   title,
		Content: content,
		VoiceID: voiceID,
		Status:  model.StatusPending,
	}
	s.essays[essay.ID] = essay
	return essay, nil
}

func (s *memoryStore) UpdateEssay(_ context.Context, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	essay, ok := s.essays[id]
	if !ok {
		return fmt.Errorf("essay %s: %w", id, model.ErrNotFound)
	}
	if v, ok := fields["status"].(string); ok {
		essay.Status = v
	}
	if v, ok := fields["voiceId"].(string); ok {
		essay.VoiceID = v
	}
	if v, ok := fields["audio_file_id"].(string); ok {
		essay.AudioFileID = v
	}
	return nil
}

func (s *memoryStore) DeleteEssay(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.essays[id]; !ok {
		return fmt.Errorf("essay %s: %w", id, model.ErrNotFound)
	}
	delete(s.essays, id)
	delete(s.audio, id)
	return nil
}

func (s *memoryStore) UploadAudio(_ context.Context, id string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.audio[id] = data
	return fmt.Sprintf("file-%d", s.seq), nil
}

func (s *memoryStore) GetAudio(_ context.Context, id string) (string, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	essay, ok := s.essays[id]
	if !ok || essay.AudioFileID == "" {
		return "", nil, fmt.Errorf("audio for essay %s: %w", id, model.ErrNotFound)
	}
	return "audio/mpeg", s.audio[id], nil
}

func (s *memoryStore) status(t *testing.T, id string) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	essay, ok := s.essays[id]
	require.True(t, ok)
	return essay.Status
}

type fakeSynth struct {
	err error
}

func (f *fakeSynth) Synthesize(context.Context, string, string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("mp3-bytes"), nil
}

func (f *fakeSynth) Name() string { return "fake" }

type testServer struct {
	router *gin.Engine
	store  *memoryStore
	synth  *fakeSynth
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte(dashPassword), bcrypt.MinCost)
	require.NoError(t, err)
	authenticator, err := auth.New(dashUsername, string(hash), "test-secret", false)
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	store := newMemoryStore()
	synth := &fakeSynth{}
	processor := pipeline.New(store, synth, log, time.Minute)

	router := gin.New()
	api.RegisterRoutes(router, api.NewHandler(store, processor, authenticator, log))

	return &testServer{router: router, store: store, synth: synth}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

// login performs a real login and returns the issued session cookie.
func (ts *testServer) login(t *testing.T) *http.Cookie {
	t.Helper()

	w := ts.do(t, http.MethodPost, "/api/auth/login", gin.H{
		"username": dashUsername,
		"password": dashPassword,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	for _, c := range w.Result().Cookies() {
		if c.Name == api.SessionCookie {
			require.True(t, c.HttpOnly)
			require.True(t, c.Secure)
			require.Equal(t, http.SameSiteNoneMode, c.SameSite)
			return c
		}
	}
	t.Fatal("login did not set a session cookie")
	return nil
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/auth/login", gin.H{
		"username": dashUsername,
		"password": "wrong",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Empty(t, w.Result().Cookies())
}

func TestLoginRejectsMissingFields(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/auth/login", gin.H{"username": dashUsername}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthStatus(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/auth/status", nil, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, false, decodeBody(t, w)["authenticated"])

	cookie := ts.login(t)
	w = ts.do(t, http.MethodGet, "/api/auth/status", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	require.Equal(t, true, body["authenticated"])
	require.Equal(t, dashUsername, body["user"])
}

func TestLogoutExpiresCookie(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.login(t)

	w := ts.do(t, http.MethodPost, "/api/auth/logout", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	var cleared *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == api.SessionCookie {
			cleared = c
		}
	}
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)
	require.LessOrEqual(t, cleared.MaxAge, 0)
}

func TestEssayRoutesRequireSession(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/essays", nil, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodGet, "/api/essays", nil, &http.Cookie{Name: api.SessionCookie, Value: "garbage"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateEssayRejectsEmptyContent(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.login(t)

	w := ts.do(t, http.MethodPost, "/api/essays", gin.H{"title": "No body", "content": "   "}, cookie)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Zero(t, ts.store.created)
}

func TestCreateEssayProducesAudio(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.login(t)

	w := ts.do(t, http.MethodPost, "/api/essays", gin.H{"content": "Hello world"}, cookie)
	require.Equal(t, http.StatusCreated, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	id := data["essayId"].(string)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		return ts.store.status(t, id) == model.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	// Fetching the record shows the defaults and the playback link.
	w = ts.do(t, http.MethodGet, "/api/essays/"+id, nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	essay := decodeBody(t, w)["data"].(map[string]any)["essay"].(map[string]any)
	require.Equal(t, model.DefaultTitle, essay["title"])
	require.Equal(t, "Matthew", essay["voiceId"])
	require.Equal(t, "/api/essays/"+id+"/audio", essay["audioUrl"])

	w = ts.do(t, http.MethodGet, "/api/essays/"+id+"/audio", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	require.Equal(t, []byte("mp3-bytes"), w.Body.Bytes())
}

func TestSynthesisFailureLeavesRecordInError(t *testing.T) {
	ts := newTestServer(t)
	ts.synth.err = fmt.Errorf("provider unavailable")
	cookie := ts.login(t)

	w := ts.do(t, http.MethodPost, "/api/essays", gin.H{"content": "Hello world"}, cookie)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeBody(t, w)["data"].(map[string]any)["essayId"].(string)

	require.Eventually(t, func() bool {
		return ts.store.status(t, id) == model.StatusError
	}, 2*time.Second, 10*time.Millisecond)

	w = ts.do(t, http.MethodGet, "/api/essays/"+id+"/audio", nil, cookie)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestProcessRetriggersWithNewVoice(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.login(t)

	essay, err := ts.store.CreateEssay(context.Background(), "Title", "Hello world", "Joanna")
	require.NoError(t, err)

	w := ts.do(t, http.MethodPost, "/api/essays/"+essay.ID+"/process", gin.H{"voiceId": "Brian"}, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		return ts.store.status(t, essay.ID) == model.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	updated, err := ts.store.GetEssay(context.Background(), essay.ID)
	require.NoError(t, err)
	require.Equal(t, "Brian", updated.VoiceID)
}

func TestProcessUnknownEssay(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.login(t)

	w := ts.do(t, http.MethodPost, "/api/essays/missing/process", nil, cookie)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteEssay(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.login(t)

	essay, err := ts.store.CreateEssay(context.Background(), "Title", "Hello world", "Joanna")
	require.NoError(t, err)

	w := ts.do(t, http.MethodDelete, "/api/essays/"+essay.ID, nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/essays/"+essay.ID, nil, cookie)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestListEssaysDecoratesCompletedRecords(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.login(t)

	done, err := ts.store.CreateEssay(context.Background(), "Done", "Hello", "Joanna")
	require.NoError(t, err)
	require.NoError(t, ts.store.UpdateEssay(context.Background(), done.ID, map[string]any{
		"status":        model.StatusCompleted,
		"audio_file_id": "file-1",
	}))
	_, err = ts.store.CreateEssay(context.Background(), "Pending", "Hello", "Joanna")
	require.NoError(t, err)

	w := ts.do(t, http.MethodGet, "/api/essays", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	items := decodeBody(t, w)["data"].(map[string]any)["items"].([]any)
	require.Len(t, items, 2)
	for _, raw := range items {
		item := raw.(map[string]any)
		if item["status"] == model.StatusCompleted {
			require.Equal(t, "/api/essays/"+done.ID+"/audio", item["audioUrl"])
		} else {
			require.Nil(t, item["audioUrl"])
		}
	}
}
