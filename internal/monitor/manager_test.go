package monitor

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mr1hm/go-disaster-news/internal/config"
	"github.com/mr1hm/go-disaster-news/internal/models"
	"github.com/mr1hm/go-disaster-news/internal/newsapi"
	"github.com/mr1hm/go-disaster-news/internal/normalize"
	"github.com/mr1hm/go-disaster-news/internal/observability"
	"github.com/mr1hm/go-disaster-news/internal/repository"
	"github.com/mr1hm/go-disaster-news/internal/stream"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockRunRepo implements repository.RunRepository for testing
type mockRunRepo struct {
	mu   sync.Mutex
	runs []models.RetrievalRun
}

func (m *mockRunRepo) AddRun(ctx context.Context, r *models.RetrievalRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, *r)
	return nil
}

func (m *mockRunRepo) GetRun(ctx context.Context, id string) (*models.RetrievalRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, nil
}

func (m *mockRunRepo) ListRuns(ctx context.Context, opts repository.Filter) ([]models.RetrievalRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.RetrievalRun(nil), m.runs...), nil
}

func (m *mockRunRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

type fakeProber struct {
	calls atomic.Int64
	res   *normalize.Result
	err   error
}

func (f *fakeProber) Fetch(ctx context.Context) (*normalize.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func okProber() *fakeProber {
	return &fakeProber{res: &normalize.Result{
		Reports:     make([]models.NewsReport, 3),
		DroppedRows: 1,
	}}
}

func testConfig(enabled bool) *config.Config {
	return &config.Config{
		Worker: config.WorkerConfig{
			Count:      2,
			BufferSize: 10,
		},
		Monitor: config.MonitorConfig{
			Enabled:  enabled,
			Interval: time.Minute,
		},
	}
}

func newTestManager(cfg *config.Config, p Prober, repo repository.RunRepository, b *stream.Broadcaster) *Manager {
	return NewManager(cfg, p, repo, b, observability.NewMetricsForTesting())
}

func TestManager_StartStop(t *testing.T) {
	prober := okProber()
	mgr := newTestManager(testConfig(false), prober, &mockRunRepo{}, nil)

	ctx, cancel := context.WithCancel(context.Background())

	// Start should not block
	mgr.Start(ctx)

	cancel()
	mgr.Stop()

	assert.Zero(t, prober.calls.Load(), "disabled monitor should not poll")
}

func TestManager_PollsOnStartAndEveryInterval(t *testing.T) {
	repo := &mockRunRepo{}
	prober := okProber()
	mgr := newTestManager(testConfig(true), prober, repo, nil)

	fc := clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC))
	mgr.clock = fc

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	require.Eventually(t, func() bool { return repo.count() == 1 }, time.Second, 5*time.Millisecond)

	waitCtx, waitCancel := context.WithTimeout(ctx, time.Second)
	require.NoError(t, fc.BlockUntilContext(waitCtx, 1))
	waitCancel()

	fc.Advance(time.Minute)
	require.Eventually(t, func() bool { return repo.count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	mgr.Stop()

	runs, _ := repo.ListRuns(context.Background(), repository.Filter{})
	first := runs[0]
	assert.Equal(t, models.RunStatusOK, first.Status)
	assert.Equal(t, 3, first.ReportCount)
	assert.Equal(t, 1, first.DroppedRows)
	assert.Equal(t, time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC), first.StartedAt)
	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, runs[0].ID, runs[1].ID)
}

func TestManager_FailedProbeRecorded(t *testing.T) {
	repo := &mockRunRepo{}
	prober := &fakeProber{err: &newsapi.TransportError{
		Method:     http.MethodGet,
		Path:       newsapi.NewsPath,
		StatusCode: http.StatusBadGateway,
		Status:     "502 Bad Gateway",
	}}
	mgr := newTestManager(testConfig(true), prober, repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	require.Eventually(t, func() bool { return repo.count() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	mgr.Stop()

	runs, _ := repo.ListRuns(context.Background(), repository.Filter{})
	assert.True(t, runs[0].Failed())
	assert.Equal(t, http.StatusBadGateway, runs[0].UpstreamStatus)
	assert.Contains(t, runs[0].Error, "502")
	assert.Error(t, mgr.CheckReadiness(context.Background()))
}

func TestManager_ReadinessAfterSuccess(t *testing.T) {
	repo := &mockRunRepo{}
	mgr := newTestManager(testConfig(true), okProber(), repo, nil)
	mgr.clock = clockwork.NewFakeClock()

	assert.Error(t, mgr.CheckReadiness(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	require.Eventually(t, func() bool {
		return mgr.CheckReadiness(context.Background()) == nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	mgr.Stop()
}

func TestManager_ReadinessWhenDisabled(t *testing.T) {
	mgr := newTestManager(testConfig(false), okProber(), &mockRunRepo{}, nil)
	assert.NoError(t, mgr.CheckReadiness(context.Background()))
}

func TestManager_TriggerBroadcasts(t *testing.T) {
	repo := &mockRunRepo{}
	b := stream.NewBroadcaster()
	defer b.Close()

	mgr := newTestManager(testConfig(false), okProber(), repo, b)

	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	run := mgr.Trigger(ctx)
	require.NotNil(t, run)

	select {
	case got := <-ch:
		assert.Equal(t, run.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
	}

	cancel()
	mgr.Stop()

	stored, _ := repo.GetRun(context.Background(), run.ID)
	require.NotNil(t, stored)
	assert.Equal(t, 3, stored.ReportCount)
}

func TestManager_CancelledProbeNotRecorded(t *testing.T) {
	prober := &fakeProber{err: context.Canceled}
	mgr := newTestManager(testConfig(false), prober, &mockRunRepo{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Nil(t, mgr.probe(ctx))
}

func TestManager_GracefulShutdownDrainsQueue(t *testing.T) {
	repo := &mockRunRepo{}
	mgr := newTestManager(testConfig(false), okProber(), repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	for i := 0; i < 8; i++ {
		mgr.Trigger(ctx)
	}

	// Immediately cancel
	cancel()

	done := make(chan struct{})
	go func() {
		mgr.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("manager.Stop() timed out - possible goroutine leak")
	}

	assert.Equal(t, 8, repo.count())
}

func TestManager_ConcurrentTrigger(t *testing.T) {
	// This test is designed to catch race conditions when run with -race flag
	cfg := testConfig(false)
	cfg.Worker.Count = 4
	repo := &mockRunRepo{}
	mgr := newTestManager(cfg, okProber(), repo, stream.NewBroadcaster())

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				mgr.Trigger(ctx)
			}
		}()
	}
	wg.Wait()

	cancel()
	mgr.Stop()

	assert.Equal(t, 100, repo.count())
}
