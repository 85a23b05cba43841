package scans

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/vulnwatch/internal/application"
	appanalysis "github.com/bryanwahyu/vulnwatch/internal/application/analysis"
	domainanalysis "github.com/bryanwahyu/vulnwatch/internal/domain/analysis"
	domain "github.com/bryanwahyu/vulnwatch/internal/domain/scans"
)

type fakeRepo struct {
	mu       sync.Mutex
	scans    map[domain.ScanID]*domain.Scan
	statuses map[domain.ScanID][]domain.Status
	vulns    map[domain.ScanID][]domain.Vulnerability
	logs     map[domain.ScanID][]domain.LogEntry
	analyses map[domain.ScanID]*domainanalysis.Analysis

	insertVulnErr error
	statsEntered  chan struct{}
	statsRelease  chan struct{}
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		scans:    make(map[domain.ScanID]*domain.Scan),
		statuses: make(map[domain.ScanID][]domain.Status),
		vulns:    make(map[domain.ScanID][]domain.Vulnerability),
		logs:     make(map[domain.ScanID][]domain.LogEntry),
		analyses: make(map[domain.ScanID]*domainanalysis.Analysis),
	}
}

func (r *fakeRepo) CreateScan(_ context.Context, s *domain.Scan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.scans[s.ID] = &cp
	r.statuses[s.ID] = append(r.statuses[s.ID], s.Status)
	return nil
}

func (r *fakeRepo) GetScan(_ context.Context, id domain.ScanID) (*domain.Scan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scans[id]
	if !ok {
		return nil, domain.ErrScanNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeRepo) UpdateScanStatus(_ context.Context, id domain.ScanID, status domain.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scans[id]
	if !ok || s.Status.Terminal() {
		return domain.ErrScanAlreadyFinished
	}
	s.Status = status
	r.statuses[id] = append(r.statuses[id], status)
	return nil
}

func (r *fakeRepo) SetScanError(_ context.Context, id domain.ScanID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scans[id]
	if !ok || s.Status.Terminal() {
		return domain.ErrScanAlreadyFinished
	}
	s.Status = domain.StatusFailed
	s.ErrorMessage = message
	r.statuses[id] = append(r.statuses[id], domain.StatusFailed)
	return nil
}

func (r *fakeRepo) UpdateScanStats(_ context.Context, id domain.ScanID, stats domain.Stats, durationSecs int) error {
	if r.statsEntered != nil {
		close(r.statsEntered)
	}
	if r.statsRelease != nil {
		<-r.statsRelease
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.scans[id]; ok {
		s.Stats = stats
		s.DurationSecs = durationSecs
	}
	return nil
}

func (r *fakeRepo) SetArtifactURL(_ context.Context, id domain.ScanID, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.scans[id]; ok {
		s.ArtifactURL = url
	}
	return nil
}

func (r *fakeRepo) RecentScans(_ context.Context, limit int) ([]*domain.Scan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Scan
	for _, s := range r.scans {
		cp := *s
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeRepo) InsertVulnerability(_ context.Context, v *domain.Vulnerability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertVulnErr != nil {
		return r.insertVulnErr
	}
	r.vulns[v.ScanID] = append(r.vulns[v.ScanID], *v)
	return nil
}

func (r *fakeRepo) ListVulnerabilities(_ context.Context, id domain.ScanID) ([]domain.Vulnerability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Vulnerability(nil), r.vulns[id]...), nil
}

func (r *fakeRepo) AppendLog(_ context.Context, id domain.ScanID, level, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs[id] = append(r.logs[id], domain.LogEntry{ScanID: id, Level: level, Message: message})
	return nil
}

func (r *fakeRepo) ListLogs(_ context.Context, id domain.ScanID, limit int) ([]domain.LogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.LogEntry(nil), r.logs[id]...), nil
}

func (r *fakeRepo) SaveAnalysis(_ context.Context, a *domainanalysis.Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.analyses[a.ScanID] = &cp
	return nil
}

func (r *fakeRepo) GetAnalysis(_ context.Context, id domain.ScanID) (*domainanalysis.Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.analyses[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) scan(id domain.ScanID) domain.Scan {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.scans[id]
}

func (r *fakeRepo) vulnCount(id domain.ScanID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.vulns[id])
}

type fakeRunner struct {
	mu      sync.Mutex
	runFunc func(ctx context.Context, id domain.ScanID, target string, opts domain.RunOptions, emit chan<- domain.Event) (domain.RunResult, error)
	stopped []domain.ScanID
}

func (f *fakeRunner) Run(ctx context.Context, id domain.ScanID, target string, opts domain.RunOptions, emit chan<- domain.Event) (domain.RunResult, error) {
	return f.runFunc(ctx, id, target, opts, emit)
}

func (f *fakeRunner) Stop(id domain.ScanID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, id)
	return true
}

func (f *fakeRunner) Available() bool { return true }

type fakeBroadcaster struct {
	mu     sync.Mutex
	events map[domain.ScanID][]domain.Event
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{events: make(map[domain.ScanID][]domain.Event)}
}

func (f *fakeBroadcaster) Publish(id domain.ScanID, ev domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[id] = append(f.events[id], ev)
}

func (f *fakeBroadcaster) BroadcastAll(ev domain.Event) {}

func (f *fakeBroadcaster) byType(id domain.ScanID, t domain.EventType) []domain.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Event
	for _, ev := range f.events[id] {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func testOptions() domain.Options {
	return domain.Options{
		Target: domain.Target{URL: "https://example.com"},
		Tools:  []domain.ToolConfig{{Name: "nuclei", Enabled: true}},
	}
}

func newTestService(repo *fakeRepo, runner *fakeRunner, bc *fakeBroadcaster, maxConcurrent int) *Service {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	analyzer := appanalysis.NewService(nil, log)
	return NewService(repo, runner, bc, analyzer, repo, nil, application.SystemClock{}, maxConcurrent, log)
}

func waitTerminal(t *testing.T, repo *fakeRepo, id domain.ScanID) domain.Scan {
	t.Helper()
	require.Eventually(t, func() bool {
		return repo.scan(id).Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return repo.scan(id)
}

func TestStartScanValidation(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeRunner{}, newFakeBroadcaster(), 5)

	tests := []struct {
		name string
		opts domain.Options
	}{
		{
			name: "relative url",
			opts: domain.Options{Target: domain.Target{URL: "/just/a/path"}, Tools: []domain.ToolConfig{{Name: "nuclei", Enabled: true}}},
		},
		{
			name: "bad scheme",
			opts: domain.Options{Target: domain.Target{URL: "ftp://example.com"}, Tools: []domain.ToolConfig{{Name: "nuclei", Enabled: true}}},
		},
		{
			name: "no enabled tools",
			opts: domain.Options{Target: domain.Target{URL: "https://example.com"}, Tools: []domain.ToolConfig{{Name: "nuclei", Enabled: false}}},
		},
		{
			name: "timeout too small",
			opts: domain.Options{Target: domain.Target{URL: "https://example.com"}, Tools: []domain.ToolConfig{{Name: "nuclei", Enabled: true}}, TimeoutSeconds: 5},
		},
		{
			name: "timeout too large",
			opts: domain.Options{Target: domain.Target{URL: "https://example.com"}, Tools: []domain.ToolConfig{{Name: "nuclei", Enabled: true}}, TimeoutSeconds: 7200},
		},
		{
			name: "unknown severity",
			opts: domain.Options{Target: domain.Target{URL: "https://example.com"}, Tools: []domain.ToolConfig{{Name: "nuclei", Enabled: true}}, SeverityFilter: []domain.Severity{"catastrophic"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.StartScan(context.Background(), tt.opts)
			var vErr *domain.ValidationError
			require.ErrorAs(t, err, &vErr)
		})
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.Empty(t, repo.scans, "rejected requests must not be persisted")
}

func TestStartScanCapacity(t *testing.T) {
	repo := newFakeRepo()
	release := make(chan struct{})
	runner := &fakeRunner{
		runFunc: func(ctx context.Context, id domain.ScanID, target string, opts domain.RunOptions, emit chan<- domain.Event) (domain.RunResult, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return domain.RunResult{}, nil
		},
	}
	svc := newTestService(repo, runner, newFakeBroadcaster(), 1)

	id, err := svc.StartScan(context.Background(), testOptions())
	require.NoError(t, err)

	_, err = svc.StartScan(context.Background(), testOptions())
	var cErr *domain.CapacityError
	require.ErrorAs(t, err, &cErr)
	require.Equal(t, 1, cErr.Limit)

	close(release)
	waitTerminal(t, repo, id)

	// Slot is freed once the first scan finishes.
	require.Eventually(t, func() bool {
		_, err := svc.StartScan(context.Background(), testOptions())
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestScanCompletesWithFindings(t *testing.T) {
	repo := newFakeRepo()
	bc := newFakeBroadcaster()
	runner := &fakeRunner{
		runFunc: func(ctx context.Context, id domain.ScanID, target string, opts domain.RunOptions, emit chan<- domain.Event) (domain.RunResult, error) {
			emit <- domain.NewProgressEvent(id, 50, "Running templates")
			emit <- domain.NewVulnerabilityEvent(id, domain.Vulnerability{
				ID: "v1", ScanID: id, Title: "SQL Injection", URL: target + "/login",
				Method: "POST", Severity: domain.SeverityHigh, Tags: []string{"sql"},
			})
			emit <- domain.NewVulnerabilityEvent(id, domain.Vulnerability{
				ID: "v2", ScanID: id, Title: "Open Redirect", URL: target + "/out",
				Method: "GET", Severity: domain.SeverityLow, Tags: []string{"redirect"},
			})
			emit <- domain.NewProgressEvent(id, 100, "Done")
			return domain.RunResult{Findings: 2}, nil
		},
	}
	svc := newTestService(repo, runner, bc, 5)

	id, err := svc.StartScan(context.Background(), testOptions())
	require.NoError(t, err)

	scan := waitTerminal(t, repo, id)
	require.Equal(t, domain.StatusCompleted, scan.Status)
	require.Equal(t, 2, scan.Stats.Total)
	require.Equal(t, 1, scan.Stats.High)
	require.Equal(t, 1, scan.Stats.Low)
	require.Equal(t, 2, repo.vulnCount(id))

	// Lifecycle is forward-only.
	repo.mu.Lock()
	statuses := append([]domain.Status(nil), repo.statuses[id]...)
	repo.mu.Unlock()
	require.Equal(t, []domain.Status{domain.StatusPending, domain.StatusRunning, domain.StatusCompleted}, statuses)

	require.NotEmpty(t, bc.byType(id, domain.EventVulnerabilityFound))
	require.Len(t, bc.byType(id, domain.EventScanCompleted), 1)

	// Heuristic analysis is stored alongside the scan.
	a, err := repo.GetAnalysis(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, a)
	require.Equal(t, id, a.ScanID)
	require.Equal(t, 15+3, a.RiskScore)
}

func TestSeverityFilterAndDedupe(t *testing.T) {
	repo := newFakeRepo()
	bc := newFakeBroadcaster()
	dup := domain.Vulnerability{
		ID: "v1", Title: "XSS", URL: "https://example.com/q",
		Method: "GET", Severity: domain.SeverityHigh,
	}
	runner := &fakeRunner{
		runFunc: func(ctx context.Context, id domain.ScanID, target string, opts domain.RunOptions, emit chan<- domain.Event) (domain.RunResult, error) {
			first := dup
			first.ScanID = id
			second := dup
			second.ID = "v2"
			second.ScanID = id
			filtered := domain.Vulnerability{
				ID: "v3", ScanID: id, Title: "Banner", URL: "https://example.com",
				Severity: domain.SeverityInfo,
			}
			emit <- domain.NewVulnerabilityEvent(id, first)
			emit <- domain.NewVulnerabilityEvent(id, second)
			emit <- domain.NewVulnerabilityEvent(id, filtered)
			return domain.RunResult{Findings: 3}, nil
		},
	}
	svc := newTestService(repo, runner, bc, 5)

	opts := testOptions()
	opts.SeverityFilter = []domain.Severity{domain.SeverityHigh, domain.SeverityCritical}
	id, err := svc.StartScan(context.Background(), opts)
	require.NoError(t, err)

	scan := waitTerminal(t, repo, id)
	require.Equal(t, domain.StatusCompleted, scan.Status)
	require.Equal(t, 1, repo.vulnCount(id), "duplicate and filtered findings must be dropped")
	require.Equal(t, 1, scan.Stats.Total)
	require.Len(t, bc.byType(id, domain.EventVulnerabilityFound), 1)
}

func TestProgressIsMonotonic(t *testing.T) {
	repo := newFakeRepo()
	bc := newFakeBroadcaster()
	runner := &fakeRunner{
		runFunc: func(ctx context.Context, id domain.ScanID, target string, opts domain.RunOptions, emit chan<- domain.Event) (domain.RunResult, error) {
			emit <- domain.NewProgressEvent(id, 50, "halfway")
			emit <- domain.NewProgressEvent(id, 30, "regression")
			emit <- domain.NewProgressEvent(id, 60, "forward")
			return domain.RunResult{}, nil
		},
	}
	svc := newTestService(repo, runner, bc, 5)

	id, err := svc.StartScan(context.Background(), testOptions())
	require.NoError(t, err)
	waitTerminal(t, repo, id)

	var last float64 = -1
	for _, ev := range bc.byType(id, domain.EventProgress) {
		p := ev.Data.(domain.ProgressPayload)
		require.GreaterOrEqual(t, p.Progress, last, "progress must never move backwards")
		last = p.Progress
	}
	require.Equal(t, float64(60), last)
}

func TestToolCrashFallsBackToSyntheticFindings(t *testing.T) {
	repo := newFakeRepo()
	bc := newFakeBroadcaster()
	runner := &fakeRunner{
		runFunc: func(ctx context.Context, id domain.ScanID, target string, opts domain.RunOptions, emit chan<- domain.Event) (domain.RunResult, error) {
			return domain.RunResult{}, &domain.ToolExecutionError{Tool: "nuclei", ExitCode: 2, Stderr: "panic"}
		},
	}
	svc := newTestService(repo, runner, bc, 5)

	id, err := svc.StartScan(context.Background(), testOptions())
	require.NoError(t, err)

	scan := waitTerminal(t, repo, id)
	require.Equal(t, domain.StatusCompleted, scan.Status, "crash degrades to placeholders, scan still completes")
	require.Equal(t, 2, scan.Stats.Total)

	vulns, err := repo.ListVulnerabilities(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, vulns, 2)
	for _, v := range vulns {
		require.True(t, v.HasTag("demo"), "fallback findings must carry the demo tag")
	}
}

func TestTimeoutFallsBackToSyntheticFindings(t *testing.T) {
	repo := newFakeRepo()
	runner := &fakeRunner{
		runFunc: func(ctx context.Context, id domain.ScanID, target string, opts domain.RunOptions, emit chan<- domain.Event) (domain.RunResult, error) {
			return domain.RunResult{}, &domain.TimeoutError{Tool: "nuclei", After: 300 * time.Second}
		},
	}
	svc := newTestService(repo, runner, newFakeBroadcaster(), 5)

	id, err := svc.StartScan(context.Background(), testOptions())
	require.NoError(t, err)

	scan := waitTerminal(t, repo, id)
	require.Equal(t, domain.StatusCompleted, scan.Status)
	require.Equal(t, 2, scan.Stats.Total)
}

func TestUnexpectedRunnerErrorFailsScan(t *testing.T) {
	repo := newFakeRepo()
	bc := newFakeBroadcaster()
	runner := &fakeRunner{
		runFunc: func(ctx context.Context, id domain.ScanID, target string, opts domain.RunOptions, emit chan<- domain.Event) (domain.RunResult, error) {
			return domain.RunResult{}, errors.New("disk full")
		},
	}
	svc := newTestService(repo, runner, bc, 5)

	id, err := svc.StartScan(context.Background(), testOptions())
	require.NoError(t, err)

	scan := waitTerminal(t, repo, id)
	require.Equal(t, domain.StatusFailed, scan.Status)
	require.Equal(t, "disk full", scan.ErrorMessage)
	require.Len(t, bc.byType(id, domain.EventScanFailed), 1)
}

func TestPersistenceFailureFailsScan(t *testing.T) {
	repo := newFakeRepo()
	repo.insertVulnErr = errors.New("connection lost")
	runner := &fakeRunner{
		runFunc: func(ctx context.Context, id domain.ScanID, target string, opts domain.RunOptions, emit chan<- domain.Event) (domain.RunResult, error) {
			emit <- domain.NewVulnerabilityEvent(id, domain.Vulnerability{
				ID: "v1", ScanID: id, Title: "XSS", URL: "https://example.com", Severity: domain.SeverityHigh,
			})
			return domain.RunResult{}, nil
		},
	}
	svc := newTestService(repo, runner, newFakeBroadcaster(), 5)

	id, err := svc.StartScan(context.Background(), testOptions())
	require.NoError(t, err)

	scan := waitTerminal(t, repo, id)
	require.Equal(t, domain.StatusFailed, scan.Status)
}

func TestStopScan(t *testing.T) {
	repo := newFakeRepo()
	runner := &fakeRunner{
		runFunc: func(ctx context.Context, id domain.ScanID, target string, opts domain.RunOptions, emit chan<- domain.Event) (domain.RunResult, error) {
			<-ctx.Done()
			return domain.RunResult{}, ctx.Err()
		},
	}
	svc := newTestService(repo, runner, newFakeBroadcaster(), 5)

	id, err := svc.StartScan(context.Background(), testOptions())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return repo.scan(id).Status == domain.StatusRunning
	}, time.Second, 5*time.Millisecond)

	stopped, err := svc.StopScan(context.Background(), id)
	require.NoError(t, err)
	require.True(t, stopped)

	// Second stop is a no-op.
	stopped, err = svc.StopScan(context.Background(), id)
	require.NoError(t, err)
	require.False(t, stopped)

	scan := waitTerminal(t, repo, id)
	require.Equal(t, domain.StatusFailed, scan.Status)
	require.Equal(t, "stopped by user", scan.ErrorMessage)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Contains(t, runner.stopped, id)
}

func TestStopDuringFinalizationKeepsFailedStatus(t *testing.T) {
	repo := newFakeRepo()
	repo.statsEntered = make(chan struct{})
	repo.statsRelease = make(chan struct{})
	bc := newFakeBroadcaster()
	runner := &fakeRunner{
		runFunc: func(ctx context.Context, id domain.ScanID, target string, opts domain.RunOptions, emit chan<- domain.Event) (domain.RunResult, error) {
			return domain.RunResult{}, nil
		},
	}
	svc := newTestService(repo, runner, bc, 5)

	id, err := svc.StartScan(context.Background(), testOptions())
	require.NoError(t, err)

	// Wait until the scan is persisting its stats, past the last in-flight
	// cancellation check, then stop it.
	select {
	case <-repo.statsEntered:
	case <-time.After(5 * time.Second):
		t.Fatal("scan never reached finalization")
	}
	stopped, err := svc.StopScan(context.Background(), id)
	require.NoError(t, err)
	require.True(t, stopped)
	close(repo.statsRelease)

	require.Eventually(t, func() bool {
		return svc.ActiveCount() == 0
	}, 5*time.Second, 10*time.Millisecond)

	scan := repo.scan(id)
	require.Equal(t, domain.StatusFailed, scan.Status, "a stop must win over concurrent completion")
	require.Equal(t, "stopped by user", scan.ErrorMessage)
	require.Empty(t, bc.byType(id, domain.EventScanCompleted), "no completion event after a stop")

	repo.mu.Lock()
	statuses := append([]domain.Status(nil), repo.statuses[id]...)
	repo.mu.Unlock()
	require.NotContains(t, statuses, domain.StatusCompleted, "terminal status must never be overwritten")
}

func TestStopAfterCompletionReportsNotStopped(t *testing.T) {
	repo := newFakeRepo()
	bc := newFakeBroadcaster()
	runner := &fakeRunner{
		runFunc: func(ctx context.Context, id domain.ScanID, target string, opts domain.RunOptions, emit chan<- domain.Event) (domain.RunResult, error) {
			return domain.RunResult{}, nil
		},
	}
	svc := newTestService(repo, runner, bc, 5)

	id, err := svc.StartScan(context.Background(), testOptions())
	require.NoError(t, err)
	scan := waitTerminal(t, repo, id)
	require.Equal(t, domain.StatusCompleted, scan.Status)

	stopped, err := svc.StopScan(context.Background(), id)
	require.NoError(t, err)
	require.False(t, stopped)
	require.Equal(t, domain.StatusCompleted, repo.scan(id).Status)
	require.Empty(t, bc.byType(id, domain.EventScanFailed))
}

func TestStopUnknownScan(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakeRunner{}, newFakeBroadcaster(), 5)

	stopped, err := svc.StopScan(context.Background(), "no-such-scan")
	require.NoError(t, err)
	require.False(t, stopped)
}

func TestGetScanStatusNotFound(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakeRunner{}, newFakeBroadcaster(), 5)

	_, _, err := svc.GetScanStatus(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrScanNotFound)
}

func TestGetScanStatusIncludesAnalysis(t *testing.T) {
	repo := newFakeRepo()
	runner := &fakeRunner{
		runFunc: func(ctx context.Context, id domain.ScanID, target string, opts domain.RunOptions, emit chan<- domain.Event) (domain.RunResult, error) {
			emit <- domain.NewVulnerabilityEvent(id, domain.Vulnerability{
				ID: "v1", ScanID: id, Title: "XSS", URL: "https://example.com", Severity: domain.SeverityMedium,
			})
			return domain.RunResult{Findings: 1}, nil
		},
	}
	svc := newTestService(repo, runner, newFakeBroadcaster(), 5)

	id, err := svc.StartScan(context.Background(), testOptions())
	require.NoError(t, err)
	waitTerminal(t, repo, id)

	result, a, err := svc.GetScanStatus(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, result.Vulnerabilities, 1)
	require.NotNil(t, a)
	require.Equal(t, 8, a.RiskScore)
}

func TestUnknownToolIsSkipped(t *testing.T) {
	repo := newFakeRepo()
	var runnerCalled bool
	var mu sync.Mutex
	runner := &fakeRunner{
		runFunc: func(ctx context.Context, id domain.ScanID, target string, opts domain.RunOptions, emit chan<- domain.Event) (domain.RunResult, error) {
			mu.Lock()
			runnerCalled = true
			mu.Unlock()
			return domain.RunResult{}, nil
		},
	}
	svc := newTestService(repo, runner, newFakeBroadcaster(), 5)

	opts := testOptions()
	opts.Tools = []domain.ToolConfig{{Name: "zap", Enabled: true}}
	id, err := svc.StartScan(context.Background(), opts)
	require.NoError(t, err)

	scan := waitTerminal(t, repo, id)
	require.Equal(t, domain.StatusCompleted, scan.Status)

	mu.Lock()
	defer mu.Unlock()
	require.False(t, runnerCalled, "runner must only be invoked for supported tools")

	logs, err := repo.ListLogs(context.Background(), id, 50)
	require.NoError(t, err)
	var skipped bool
	for _, l := range logs {
		if l.Level == "warning" {
			skipped = true
		}
	}
	require.True(t, skipped, "skipping a tool must leave a warning log")
}
