package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-disaster-news/internal/config"
	"github.com/mr1hm/go-disaster-news/internal/models"
	"github.com/mr1hm/go-disaster-news/internal/newsapi"
	"github.com/mr1hm/go-disaster-news/internal/normalize"
	"github.com/mr1hm/go-disaster-news/internal/observability"
	"github.com/mr1hm/go-disaster-news/internal/repository"
	"github.com/mr1hm/go-disaster-news/internal/stream"
	"github.com/mr1hm/go-disaster-news/internal/worker"
)

const persistTimeout = 5 * time.Second

// Prober runs one retrieval of the news listing. *normalize.Normalizer satisfies it.
type Prober interface {
	Fetch(ctx context.Context) (*normalize.Result, error)
}

// Manager periodically probes the upstream listing and records each probe
// as a RetrievalRun.
type Manager struct {
	cfg         *config.Config
	prober      Prober
	repo        repository.RunRepository
	broadcaster *stream.Broadcaster
	metrics     *observability.Metrics
	clock       clockwork.Clock
	pool        *worker.WorkerPool[*models.RetrievalRun]
	wg          sync.WaitGroup
	ready       atomic.Bool
}

func NewManager(cfg *config.Config, prober Prober, repo repository.RunRepository, broadcaster *stream.Broadcaster, metrics *observability.Metrics) *Manager {
	return &Manager{
		cfg:         cfg,
		prober:      prober,
		repo:        repo,
		broadcaster: broadcaster,
		metrics:     metrics,
		clock:       clockwork.NewRealClock(),
	}
}

func (m *Manager) Start(ctx context.Context) {
	m.pool = worker.NewWorkerPool(m.cfg.Worker.Count, m.cfg.Worker.BufferSize, m.record)
	m.pool.Start(ctx)

	if m.cfg.Monitor.Enabled {
		m.wg.Add(1)
		go m.runPoller(ctx, m.cfg.Monitor.Interval)
	}
}

func (m *Manager) runPoller(ctx context.Context, interval time.Duration) {
	defer m.wg.Done()
	slog.Info("starting news monitor", "interval", interval)

	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	// Initial poll
	m.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("news monitor shutting down")
			return
		case <-ticker.Chan():
			m.poll(ctx)
		}
	}
}

func (m *Manager) poll(ctx context.Context) {
	run := m.probe(ctx)
	if run == nil {
		return
	}
	m.pool.Submit(run)
}

// Trigger probes immediately, outside the schedule, and queues the run for
// recording.
func (m *Manager) Trigger(ctx context.Context) *models.RetrievalRun {
	run := m.probe(ctx)
	if run != nil {
		m.pool.Submit(run)
	}
	return run
}

// probe returns nil when ctx was cancelled mid-flight; shutdown is not an
// upstream failure.
func (m *Manager) probe(ctx context.Context) *models.RetrievalRun {
	slog.Debug("probing news listing")

	start := m.clock.Now()
	res, err := m.prober.Fetch(ctx)
	if err != nil && ctx.Err() != nil {
		return nil
	}

	run := &models.RetrievalRun{
		ID:        uuid.NewString(),
		StartedAt: start.UTC(),
		Duration:  m.clock.Since(start),
		Status:    models.RunStatusOK,
	}

	if err != nil {
		run.Status = models.RunStatusFailed
		run.Error = err.Error()
		var te *newsapi.TransportError
		if errors.As(err, &te) {
			run.UpstreamStatus = te.StatusCode
		}
		slog.Error("news probe failed", "run_id", run.ID, "error", err)
		return run
	}

	run.ReportCount = len(res.Reports)
	run.DroppedRows = res.DroppedRows
	run.DroppedLocations = res.DroppedLocations
	return run
}

func (m *Manager) record(ctx context.Context, run *models.RetrievalRun) error {
	// Queued runs are still written during shutdown.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := m.repo.AddRun(ctx, run); err != nil {
		slog.Error("error recording run", "run_id", run.ID, "error", err)
		return err
	}

	m.metrics.MonitorRuns.WithLabelValues(string(run.Status)).Inc()
	if !run.Failed() {
		m.ready.Store(true)
	}

	if m.broadcaster != nil {
		m.broadcaster.Broadcast(run)
	}

	slog.Info("recorded retrieval run",
		"run_id", run.ID,
		"status", run.Status,
		"reports", run.ReportCount,
		"dropped_rows", run.DroppedRows,
		"duration", run.Duration,
	)
	return nil
}

// CheckReadiness returns nil once a probe has succeeded, or always when the
// monitor is disabled.
func (m *Manager) CheckReadiness(_ context.Context) error {
	if !m.cfg.Monitor.Enabled {
		return nil
	}
	if !m.ready.Load() {
		return errors.New("no successful upstream probe yet")
	}
	return nil
}

func (m *Manager) Stop() {
	m.wg.Wait()
	if m.pool != nil {
		m.pool.Stop()
	}
	slog.Info("news monitor stopped")
}
