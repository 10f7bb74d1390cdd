package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storyloom/internal/runner"
	"storyloom/internal/session"
	"storyloom/internal/step"
	"storyloom/internal/story"
	"storyloom/internal/testsupport"
	"storyloom/internal/video"
)

type stubStep struct {
	name  string
	phase story.Phase
	run   func(st *story.State) error
}

func (s *stubStep) Name() string { return s.name }

func (s *stubStep) Phase() story.Phase { return s.phase }

func (s *stubStep) Run(ctx context.Context, st *story.State, feedback string) error {
	if s.run == nil {
		return nil
	}
	return s.run(st)
}

type stubProvider struct{}

func (stubProvider) Name() string { return "stub" }

func (stubProvider) Submit(ctx context.Context, req video.SubmitRequest) (string, error) {
	return "task-1", nil
}

func (stubProvider) Poll(ctx context.Context, taskID string) (video.PollResult, error) {
	return video.PollResult{Status: video.JobProcessing}, nil
}

func (stubProvider) Download(ctx context.Context, url string) ([]byte, error) {
	return nil, nil
}

func newTestServer(t *testing.T) (*Server, *session.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	reg := &video.Registry{}
	reg.Register(stubProvider{})
	fanout := video.NewFanout(reg, 2, nil)

	steps := []step.Step{
		&stubStep{name: "story_outline", phase: story.PhaseStoryOutline, run: func(st *story.State) error {
			return st.SetOutline(story.Outline{Title: "T", Synopsis: "S"})
		}},
		&stubStep{name: "character_design", phase: story.PhaseCharacterDesign, run: func(st *story.State) error {
			return st.SetCharacters([]story.Character{{Name: "Hero"}})
		}},
		step.NewVideos(fanout, "stub"),
	}

	r, err := runner.New(runner.Options{
		Store:           store,
		Steps:           steps,
		Fanout:          fanout,
		DefaultPlatform: "stub",
		StepTimeout:     10 * time.Second,
	})
	if err != nil {
		t.Fatalf("runner.New: %v", err)
	}

	srv, err := New(Options{
		Bind:     "127.0.0.1:0",
		Runner:   r,
		Store:    store,
		Registry: reg,
	})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	return srv, store
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) *story.State {
	t.Helper()
	var resp StateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.State == nil {
		t.Fatal("response carried no state")
	}
	return resp.State
}

func createSession(t *testing.T, srv *Server) *story.State {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/sessions", CreateSessionRequest{
		Idea: "a lighthouse keeper finds a map", Mode: "interactive",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body %s", rec.Code, rec.Body.String())
	}
	return decodeState(t, rec)
}

func TestCreateSession(t *testing.T) {
	srv, _ := newTestServer(t)
	st := createSession(t, srv)
	if st.Phase != story.PhaseStoryOutline || !st.PendingApproval {
		t.Fatalf("state = phase %s pending %v", st.Phase, st.PendingApproval)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions", CreateSessionRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty idea status = %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodPost, "/api/sessions", CreateSessionRequest{Idea: "x", Mode: "chaotic"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad mode status = %d", rec.Code)
	}
}

func TestApproveFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	st := createSession(t, srv)
	base := "/api/sessions/" + st.SessionID

	rec := doJSON(t, srv, http.MethodPost, base+"/approve", ApproveRequest{Approved: false, Feedback: "darker"})
	if rec.Code != http.StatusOK {
		t.Fatalf("reject status = %d body %s", rec.Code, rec.Body.String())
	}
	if got := decodeState(t, rec); got.Phase != story.PhaseStoryOutline {
		t.Fatalf("phase after reject = %s", got.Phase)
	}

	rec = doJSON(t, srv, http.MethodPost, base+"/approve", ApproveRequest{Approved: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d", rec.Code)
	}
	if got := decodeState(t, rec); got.Phase != story.PhaseCharacterDesign {
		t.Fatalf("phase after approve = %s", got.Phase)
	}
}

func TestApproveWithoutGateConflicts(t *testing.T) {
	srv, store := newTestServer(t)
	st := createSession(t, srv)

	sess, err := store.Get(context.Background(), st.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := story.Decode([]byte(sess.StateJSON))
	if err != nil {
		t.Fatal(err)
	}
	decoded.PendingApproval = false
	encoded, err := decoded.Encode()
	if err != nil {
		t.Fatal(err)
	}
	sess.StateJSON = string(encoded)
	if err := store.Update(context.Background(), sess); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions/"+st.SessionID+"/approve", ApproveRequest{Approved: true})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, probe := range []struct {
		method, path string
	}{
		{http.MethodGet, "/api/sessions/missing"},
		{http.MethodGet, "/api/sessions/missing/state"},
		{http.MethodPost, "/api/sessions/missing/resume"},
		{http.MethodDelete, "/api/sessions/missing"},
		{http.MethodPost, "/api/sessions/missing/videos/refresh"},
	} {
		rec := doJSON(t, srv, probe.method, probe.path, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s %s status = %d", probe.method, probe.path, rec.Code)
		}
	}
}

func TestGetSessionWithCheckpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	st := createSession(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/api/sessions/"+st.SessionID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var detail SessionDetail
	if err := json.NewDecoder(rec.Body).Decode(&detail); err != nil {
		t.Fatal(err)
	}
	if detail.SessionID != st.SessionID || detail.Status != "paused" {
		t.Fatalf("detail = %+v", detail.SessionSummary)
	}
	if len(detail.Checkpoints) != 1 || detail.Checkpoints[0].StepName != "story_outline" {
		t.Fatalf("checkpoints = %+v", detail.Checkpoints)
	}
}

func TestListSessions(t *testing.T) {
	srv, _ := newTestServer(t)
	createSession(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/api/sessions?status=paused", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp SessionListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Sessions) != 1 {
		t.Fatalf("sessions = %d", len(resp.Sessions))
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/sessions?status=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bogus filter status = %d", rec.Code)
	}
}

func TestEditArtifact(t *testing.T) {
	srv, _ := newTestServer(t)
	st := createSession(t, srv)
	base := "/api/sessions/" + st.SessionID

	rec := doJSON(t, srv, http.MethodPut, base+"/artifacts", EditArtifactRequest{
		Path:  "outline",
		Value: json.RawMessage(`{"title":"Edited","synopsis":"s"}`),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	if got := decodeState(t, rec); got.Outline.Title != "Edited" {
		t.Fatalf("title = %q", got.Outline.Title)
	}

	rec = doJSON(t, srv, http.MethodPut, base+"/artifacts", EditArtifactRequest{
		Path:  "characters/7",
		Value: json.RawMessage(`{"name":"x"}`),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid edit status = %d", rec.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	srv, _ := newTestServer(t)
	st := createSession(t, srv)

	rec := doJSON(t, srv, http.MethodDelete, "/api/sessions/"+st.SessionID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodGet, "/api/sessions/"+st.SessionID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rec.Code)
	}
}

func TestRetryVideoUnknownShot(t *testing.T) {
	srv, _ := newTestServer(t)
	st := createSession(t, srv)

	path := fmt.Sprintf("/api/sessions/%s/videos/%s/retry", st.SessionID, "ep9_shot9")
	rec := doJSON(t, srv, http.MethodPost, path, RetryVideoRequest{})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || !resp.Database.Readable {
		t.Fatalf("health = %+v", resp)
	}
	if len(resp.Platforms) != 1 || resp.Platforms[0] != "stub" {
		t.Fatalf("platforms = %v", resp.Platforms)
	}
}
