package video

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storyloom/internal/story"
)

type stubProvider struct {
	name string

	mu          sync.Mutex
	submitted   []string
	submitErr   map[string]error
	pollResults map[string]PollResult
	pollErr     error

	inFlight    int64
	maxInFlight int64
	delay       time.Duration
}

func newStubProvider(name string) *stubProvider {
	return &stubProvider{
		name:        name,
		submitErr:   make(map[string]error),
		pollResults: make(map[string]PollResult),
	}
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	current := atomic.AddInt64(&s.inFlight, 1)
	for {
		max := atomic.LoadInt64(&s.maxInFlight)
		if current <= max || atomic.CompareAndSwapInt64(&s.maxInFlight, max, current) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	defer atomic.AddInt64(&s.inFlight, -1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.submitErr[req.Prompt]; ok {
		return "", err
	}
	s.submitted = append(s.submitted, req.Prompt)
	return fmt.Sprintf("task-%d", len(s.submitted)), nil
}

func (s *stubProvider) Poll(ctx context.Context, taskID string) (PollResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollErr != nil {
		return PollResult{}, s.pollErr
	}
	if result, ok := s.pollResults[taskID]; ok {
		return result, nil
	}
	return PollResult{Status: JobProcessing}, nil
}

func (s *stubProvider) Download(ctx context.Context, url string) ([]byte, error) {
	return []byte("video"), nil
}

func (s *stubProvider) submitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submitted)
}

func testShots(n int) ([]story.Shot, map[string]string) {
	shots := make([]story.Shot, 0, n)
	prompts := make(map[string]string, n)
	for i := 1; i <= n; i++ {
		shot := story.Shot{EpisodeNumber: 1, ShotNumber: i, Description: fmt.Sprintf("shot %d", i)}
		shots = append(shots, shot)
		prompts[shot.ID()] = fmt.Sprintf("prompt %d", i)
	}
	return shots, prompts
}

func registryWith(p Provider) *Registry {
	reg := &Registry{}
	reg.Register(p)
	return reg
}

func TestSubmitAllSkipsCompleted(t *testing.T) {
	stub := newStubProvider("stub")
	fanout := NewFanout(registryWith(stub), 2, nil)
	shots, prompts := testShots(2)

	existing := map[string]*story.TaskRecord{
		"ep1_shot1": {ShotID: "ep1_shot1", Provider: "stub", TaskID: "old-task", Status: story.TaskCompleted, VideoURL: "http://done"},
		"ep1_shot2": {ShotID: "ep1_shot2", Provider: "stub", Status: story.TaskFailed, Error: "boom"},
	}

	results := fanout.SubmitAll(context.Background(), shots, prompts, "stub", existing)

	if got := results["ep1_shot1"]; got.TaskID != "old-task" || got.VideoURL != "http://done" {
		t.Fatalf("completed record was touched: %+v", got)
	}
	if got := results["ep1_shot2"]; got.Status != story.TaskPending || got.TaskID == "" {
		t.Fatalf("failed shot not resubmitted: %+v", got)
	}
	if stub.submitCount() != 1 {
		t.Fatalf("submissions = %d, want 1", stub.submitCount())
	}
}

func TestSubmitAllIsolatesFailures(t *testing.T) {
	stub := newStubProvider("stub")
	stub.submitErr["prompt 2"] = errors.New("quota exceeded")
	fanout := NewFanout(registryWith(stub), 4, nil)
	shots, prompts := testShots(3)

	results := fanout.SubmitAll(context.Background(), shots, prompts, "stub", nil)

	if len(results) != 3 {
		t.Fatalf("len(results) = %d", len(results))
	}
	if results["ep1_shot2"].Status != story.TaskFailed {
		t.Fatalf("shot2 status = %s", results["ep1_shot2"].Status)
	}
	if results["ep1_shot2"].Error == "" {
		t.Fatal("shot2 error not captured")
	}
	for _, id := range []string{"ep1_shot1", "ep1_shot3"} {
		if results[id].Status != story.TaskPending {
			t.Fatalf("%s status = %s, one bad shot blocked the batch", id, results[id].Status)
		}
	}
}

func TestSubmitAllBoundsConcurrency(t *testing.T) {
	stub := newStubProvider("stub")
	stub.delay = 20 * time.Millisecond
	fanout := NewFanout(registryWith(stub), 2, nil)
	shots, prompts := testShots(6)

	fanout.SubmitAll(context.Background(), shots, prompts, "stub", nil)

	if max := atomic.LoadInt64(&stub.maxInFlight); max > 2 {
		t.Fatalf("max in-flight submissions = %d, want <= 2", max)
	}
}

func TestSubmitAllSkipsShotsWithoutPrompts(t *testing.T) {
	stub := newStubProvider("stub")
	fanout := NewFanout(registryWith(stub), 2, nil)
	shots, prompts := testShots(2)
	delete(prompts, "ep1_shot2")

	results := fanout.SubmitAll(context.Background(), shots, prompts, "stub", nil)
	if len(results) != 1 {
		t.Fatalf("len(results) = %d", len(results))
	}
	if _, ok := results["ep1_shot2"]; ok {
		t.Fatal("promptless shot was submitted")
	}
}

func TestSubmitAllUnknownPlatform(t *testing.T) {
	stub := newStubProvider("stub")
	fanout := NewFanout(registryWith(stub), 2, nil)
	shots, prompts := testShots(1)

	results := fanout.SubmitAll(context.Background(), shots, prompts, "nonexistent", nil)
	if results["ep1_shot1"].Status != story.TaskFailed {
		t.Fatalf("status = %s", results["ep1_shot1"].Status)
	}
}

func TestRefreshStatusPollsOnlyNonTerminal(t *testing.T) {
	stub := newStubProvider("stub")
	stub.pollResults["t-2"] = PollResult{Status: JobCompleted, VideoURL: "http://video/2"}
	stub.pollResults["t-3"] = PollResult{Status: JobFailed, Error: "render error"}
	fanout := NewFanout(registryWith(stub), 2, nil)

	tasks := map[string]*story.TaskRecord{
		"ep1_shot1": {ShotID: "ep1_shot1", Provider: "stub", TaskID: "t-1", Status: story.TaskCompleted, VideoURL: "http://video/1"},
		"ep1_shot2": {ShotID: "ep1_shot2", Provider: "stub", TaskID: "t-2", Status: story.TaskProcessing},
		"ep1_shot3": {ShotID: "ep1_shot3", Provider: "stub", TaskID: "t-3", Status: story.TaskPending},
	}

	results := fanout.RefreshStatus(context.Background(), tasks)

	if results["ep1_shot1"] != tasks["ep1_shot1"] {
		t.Fatal("terminal record should pass through untouched")
	}
	if got := results["ep1_shot2"]; got.Status != story.TaskCompleted || got.VideoURL != "http://video/2" {
		t.Fatalf("shot2 = %+v", got)
	}
	if got := results["ep1_shot3"]; got.Status != story.TaskFailed || got.Error != "render error" {
		t.Fatalf("shot3 = %+v", got)
	}
}

func TestRefreshStatusKeepsTaskOnPollError(t *testing.T) {
	stub := newStubProvider("stub")
	stub.pollErr = errors.New("gateway timeout")
	fanout := NewFanout(registryWith(stub), 2, nil)

	tasks := map[string]*story.TaskRecord{
		"ep1_shot1": {ShotID: "ep1_shot1", Provider: "stub", TaskID: "t-1", Status: story.TaskProcessing},
	}
	results := fanout.RefreshStatus(context.Background(), tasks)
	if results["ep1_shot1"].Status != story.TaskProcessing {
		t.Fatalf("transient poll error changed status: %+v", results["ep1_shot1"])
	}
}

func TestRetryOne(t *testing.T) {
	stub := newStubProvider("stub")
	fanout := NewFanout(registryWith(stub), 2, nil)

	shot := story.Shot{EpisodeNumber: 1, ShotNumber: 1, Description: "retry me"}
	rec := fanout.RetryOne(context.Background(), shot, "new prompt", "stub")
	if rec.Status != story.TaskPending || rec.TaskID == "" {
		t.Fatalf("retry record = %+v", rec)
	}
	if rec.ShotID != "ep1_shot1" {
		t.Fatalf("shot id = %q", rec.ShotID)
	}
}

func TestAllFailed(t *testing.T) {
	if AllFailed(nil) {
		t.Fatal("empty batch must not count as all failed")
	}
	tasks := map[string]*story.TaskRecord{
		"a": {Status: story.TaskFailed},
		"b": {Status: story.TaskFailed},
	}
	if !AllFailed(tasks) {
		t.Fatal("expected all failed")
	}
	tasks["c"] = &story.TaskRecord{Status: story.TaskCompleted}
	if AllFailed(tasks) {
		t.Fatal("one success should clear total failure")
	}
}
