package testsupport

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"storyloom/internal/config"
	"storyloom/internal/session"
	"storyloom/internal/story"
)

// MustOpenStore opens a session.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *session.Store {
	t.Helper()

	store, err := session.Open(cfg)
	if err != nil {
		t.Fatalf("session.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewSession creates and persists a fresh session for tests, returning the
// stored record and its decoded state.
func NewSession(t testing.TB, store *session.Store, mode story.Mode, req story.Request) (*session.Session, *story.State) {
	t.Helper()

	st := story.NewState(uuid.NewString(), mode, req)
	stateJSON, err := st.Encode()
	if err != nil {
		t.Fatalf("encode state: %v", err)
	}
	sess := &session.Session{
		SessionID: st.SessionID,
		Status:    session.StatusRunning,
		Mode:      st.Mode.String(),
		Phase:     st.Phase.String(),
		Idea:      req.Idea,
		StateJSON: string(stateJSON),
	}
	if err := store.Create(context.Background(), sess); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return sess, st
}
