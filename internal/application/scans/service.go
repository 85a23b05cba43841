package scans

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/vulnwatch/internal/application"
	appanalysis "github.com/bryanwahyu/vulnwatch/internal/application/analysis"
	domainanalysis "github.com/bryanwahyu/vulnwatch/internal/domain/analysis"
	domain "github.com/bryanwahyu/vulnwatch/internal/domain/scans"
)

const (
	defaultTimeoutSeconds = 300
	minTimeoutSeconds     = 10
	maxTimeoutSeconds     = 3600
	eventBuffer           = 64
)

// scanJob tracks one in-flight scan so it can be cancelled.
type scanJob struct {
	cancel context.CancelFunc
}

// Service is the scan orchestrator. It admits requests under a concurrency
// cap, drives tool runs in background goroutines and relays their event
// streams to persistence and live subscribers.
type Service struct {
	Repo          domain.Repository
	Runner        domain.Runner
	Broadcaster   domain.Broadcaster
	Analyzer      *appanalysis.Service
	AnalysisRepo  domainanalysis.Repository
	Artifacts     domain.ArtifactStore // optional
	Clock         application.Clock
	MaxConcurrent int

	log *logrus.Entry

	mu     sync.Mutex
	active map[domain.ScanID]*scanJob
}

func NewService(
	repo domain.Repository,
	runner domain.Runner,
	broadcaster domain.Broadcaster,
	analyzer *appanalysis.Service,
	analysisRepo domainanalysis.Repository,
	artifacts domain.ArtifactStore,
	clock application.Clock,
	maxConcurrent int,
	log *logrus.Logger,
) *Service {
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	return &Service{
		Repo:          repo,
		Runner:        runner,
		Broadcaster:   broadcaster,
		Analyzer:      analyzer,
		AnalysisRepo:  analysisRepo,
		Artifacts:     artifacts,
		Clock:         clock,
		MaxConcurrent: maxConcurrent,
		log:           log.WithField("component", "scans"),
		active:        make(map[domain.ScanID]*scanJob),
	}
}

// StartScan validates the request, admits it under the concurrency cap,
// persists the pending record and launches the scan in the background.
// It returns the new scan id immediately.
func (s *Service) StartScan(ctx context.Context, opts domain.Options) (domain.ScanID, error) {
	if err := validateOptions(&opts); err != nil {
		return "", err
	}

	id := domain.ScanID(uuid.New().String())
	jobCtx, cancel := context.WithCancel(context.Background())

	// Admission and slot reservation are one critical section so the cap
	// cannot be oversubscribed by concurrent starts.
	s.mu.Lock()
	if len(s.active) >= s.MaxConcurrent {
		s.mu.Unlock()
		cancel()
		return "", &domain.CapacityError{Limit: s.MaxConcurrent}
	}
	s.active[id] = &scanJob{cancel: cancel}
	s.mu.Unlock()

	scan := &domain.Scan{
		ID:             id,
		Target:         opts.Target,
		Tools:          opts.Tools,
		SeverityFilter: opts.SeverityFilter,
		TimeoutSeconds: opts.TimeoutSeconds,
		Status:         domain.StatusPending,
		CreatedAt:      s.Clock.Now().UTC(),
	}
	if err := s.Repo.CreateScan(ctx, scan); err != nil {
		s.release(id)
		cancel()
		return "", fmt.Errorf("creating scan record: %w", err)
	}

	go s.execute(jobCtx, scan, opts)
	return id, nil
}

// StopScan cancels an in-flight scan. It returns false when the id is
// unknown or the scan already reached a terminal state.
func (s *Service) StopScan(ctx context.Context, id domain.ScanID) (bool, error) {
	s.mu.Lock()
	job, ok := s.active[id]
	if ok {
		delete(s.active, id)
	}
	s.mu.Unlock()
	if !ok {
		return false, nil
	}

	job.cancel()
	s.Runner.Stop(id)

	if err := s.Repo.SetScanError(ctx, id, "stopped by user"); err != nil {
		if errors.Is(err, domain.ErrScanAlreadyFinished) {
			// Lost the race against the finishing scan; its terminal
			// state stands.
			return false, nil
		}
		return true, fmt.Errorf("recording stop: %w", err)
	}
	_ = s.Repo.AppendLog(ctx, id, "warning", "Scan stopped by user")
	s.Broadcaster.Publish(id, domain.Event{
		Type:      domain.EventScanFailed,
		ScanID:    id,
		Data:      domain.FailurePayload{Error: "stopped by user"},
		Timestamp: s.Clock.Now().UTC(),
	})
	s.log.WithField("scan_id", id).Info("scan stopped by user")
	return true, nil
}

// GetScanStatus assembles the read model for one scan: the record, its
// findings and the analysis when one exists.
func (s *Service) GetScanStatus(ctx context.Context, id domain.ScanID) (*domain.ScanResult, *domainanalysis.Analysis, error) {
	scan, err := s.Repo.GetScan(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	vulns, err := s.Repo.ListVulnerabilities(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	var a *domainanalysis.Analysis
	if s.AnalysisRepo != nil {
		a, err = s.AnalysisRepo.GetAnalysis(ctx, id)
		if err != nil {
			return nil, nil, err
		}
	}
	return &domain.ScanResult{Scan: scan, Vulnerabilities: vulns}, a, nil
}

// GetScanLogs returns the newest diagnostic lines for a scan.
func (s *Service) GetScanLogs(ctx context.Context, id domain.ScanID, limit int) ([]domain.LogEntry, error) {
	if _, err := s.Repo.GetScan(ctx, id); err != nil {
		return nil, err
	}
	return s.Repo.ListLogs(ctx, id, limit)
}

// RecentScans returns the latest scan records, newest first.
func (s *Service) RecentScans(ctx context.Context, limit int) ([]*domain.Scan, error) {
	return s.Repo.RecentScans(ctx, limit)
}

// ActiveScanIDs snapshots the ids of in-flight scans.
func (s *Service) ActiveScanIDs() []domain.ScanID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]domain.ScanID, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	return ids
}

// ActiveCount reports how many scans are in flight.
func (s *Service) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// ToolAvailable reports whether the scanning tool binary is runnable.
func (s *Service) ToolAvailable() bool {
	return s.Runner.Available()
}

func (s *Service) release(id domain.ScanID) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

// execute drives one scan to a terminal state. It owns the per-scan event
// channel: the runner and the manager both write into it, and a single relay
// goroutine persists and broadcasts everything in order.
func (s *Service) execute(ctx context.Context, scan *domain.Scan, opts domain.Options) {
	id := scan.ID
	log := s.log.WithField("scan_id", id)
	started := s.Clock.Now()
	defer s.release(id)

	bg := context.Background()
	if err := s.Repo.UpdateScanStatus(bg, id, domain.StatusRunning); err != nil {
		if errors.Is(err, domain.ErrScanAlreadyFinished) {
			// StopScan landed first and recorded the terminal state.
			log.Info("scan cancelled before startup")
			return
		}
		log.WithError(err).Error("failed to mark scan running")
		s.fail(bg, id, "internal error starting scan")
		return
	}
	if ctx.Err() != nil {
		// Stopped between admission and startup; restore the terminal state
		// the stop recorded.
		_ = s.Repo.SetScanError(bg, id, "stopped by user")
		return
	}

	events := make(chan domain.Event, eventBuffer)
	relay := newRelay(s, id, opts.SeverityFilter)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.drain(bg, events)
	}()

	emit := func(ev domain.Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	emit(domain.NewProgressEvent(id, 0, "Initializing scan..."))

	runOpts := domain.RunOptions{
		SeverityFilter: opts.SeverityFilter,
		TimeoutSeconds: opts.TimeoutSeconds,
	}

	var artifactPath string
	var stopped bool
	for _, tool := range opts.EnabledTools() {
		if ctx.Err() != nil {
			stopped = true
			break
		}
		if tool.Name != "nuclei" {
			emit(domain.NewLogEvent(id, "warning", fmt.Sprintf("%s integration not implemented yet, skipping", tool.Name)))
			continue
		}

		emit(domain.NewLogEvent(id, "info", fmt.Sprintf("Starting %s scan", tool.Name)))
		res, err := s.Runner.Run(ctx, id, scan.Target.URL, runOpts, events)
		if err != nil {
			if ctx.Err() != nil {
				stopped = true
				break
			}
			var execErr *domain.ToolExecutionError
			var toErr *domain.TimeoutError
			if errors.As(err, &execErr) || errors.As(err, &toErr) {
				// Tool crash or timeout degrades to placeholder
				// findings so the scan still completes.
				emit(domain.NewLogEvent(id, "warning", fmt.Sprintf("%s failed (%v), using fallback findings", tool.Name, err)))
				for _, v := range domain.SyntheticFindings(id, scan.Target.URL) {
					emit(domain.NewVulnerabilityEvent(id, v))
				}
				continue
			}
			close(events)
			<-relayDone
			log.WithError(err).Error("tool run failed")
			s.fail(bg, id, err.Error())
			return
		}
		if res.ArtifactPath != "" {
			artifactPath = res.ArtifactPath
		}
	}

	close(events)
	<-relayDone

	if stopped || ctx.Err() != nil {
		// StopScan already recorded the terminal state.
		if artifactPath != "" {
			os.Remove(artifactPath)
		}
		log.Info("scan cancelled")
		return
	}

	if err := relay.err(); err != nil {
		log.WithError(err).Error("persisting scan events failed")
		s.fail(bg, id, "failed to persist scan results")
		return
	}

	kept := relay.vulnerabilities()
	stats := domain.ComputeStats(kept)
	duration := int(s.Clock.Now().Sub(started).Seconds())
	if err := s.Repo.UpdateScanStats(bg, id, stats, duration); err != nil {
		log.WithError(err).Error("failed to store scan stats")
		s.fail(bg, id, "failed to store scan results")
		return
	}

	s.archiveArtifact(bg, id, artifactPath)
	s.analyze(bg, id, scan, kept, duration)

	// A stop that lands during finalization wins: the repository refuses to
	// move a terminal scan, so the completed event must not go out either.
	if err := s.Repo.UpdateScanStatus(bg, id, domain.StatusCompleted); err != nil {
		if errors.Is(err, domain.ErrScanAlreadyFinished) {
			log.Info("scan stopped during finalization")
			return
		}
		log.WithError(err).Error("failed to mark scan completed")
		s.fail(bg, id, "failed to finalize scan")
		return
	}

	s.Broadcaster.Publish(id, domain.Event{
		Type:      domain.EventScanCompleted,
		ScanID:    id,
		Data:      map[string]any{"stats": stats, "duration": duration},
		Timestamp: s.Clock.Now().UTC(),
	})
	log.WithFields(logrus.Fields{"findings": stats.Total, "duration": duration}).Info("scan completed")
}

// archiveArtifact uploads the raw tool output when a store is configured,
// otherwise deletes the local file.
func (s *Service) archiveArtifact(ctx context.Context, id domain.ScanID, path string) {
	if path == "" {
		return
	}
	if s.Artifacts == nil {
		os.Remove(path)
		return
	}
	key := fmt.Sprintf("scans/%s.json", id)
	url, err := s.Artifacts.UploadAndCleanup(ctx, path, key)
	if err != nil {
		s.log.WithError(err).WithField("scan_id", id).Warn("artifact upload failed")
		os.Remove(path)
		return
	}
	if err := s.Repo.SetArtifactURL(ctx, id, url); err != nil {
		s.log.WithError(err).WithField("scan_id", id).Warn("failed to store artifact url")
	}
}

// analyze runs the risk assessment and stores it. Analysis failures never
// fail the scan.
func (s *Service) analyze(ctx context.Context, id domain.ScanID, scan *domain.Scan, vulns []domain.Vulnerability, duration int) {
	if s.Analyzer == nil || s.AnalysisRepo == nil {
		return
	}
	a := s.Analyzer.Analyze(ctx, domainanalysis.Request{
		Vulnerabilities: vulns,
		TargetURL:       scan.Target.URL,
		DurationSecs:    duration,
	})
	a.ScanID = id
	if err := s.AnalysisRepo.SaveAnalysis(ctx, a); err != nil {
		s.log.WithError(err).WithField("scan_id", id).Warn("failed to store analysis")
	}
}

func (s *Service) fail(ctx context.Context, id domain.ScanID, message string) {
	if err := s.Repo.SetScanError(ctx, id, message); err != nil {
		if errors.Is(err, domain.ErrScanAlreadyFinished) {
			return
		}
		s.log.WithError(err).WithField("scan_id", id).Error("failed to record scan failure")
	}
	_ = s.Repo.AppendLog(ctx, id, "error", message)
	s.Broadcaster.Publish(id, domain.Event{
		Type:      domain.EventScanFailed,
		ScanID:    id,
		Data:      domain.FailurePayload{Error: message},
		Timestamp: s.Clock.Now().UTC(),
	})
}

func validateOptions(opts *domain.Options) error {
	u, err := url.Parse(opts.Target.URL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &domain.ValidationError{Reason: "target url must be an absolute http or https URL"}
	}
	if len(opts.EnabledTools()) == 0 {
		return &domain.ValidationError{Reason: "at least one tool must be enabled"}
	}
	if opts.TimeoutSeconds == 0 {
		opts.TimeoutSeconds = defaultTimeoutSeconds
	}
	if opts.TimeoutSeconds < minTimeoutSeconds || opts.TimeoutSeconds > maxTimeoutSeconds {
		return &domain.ValidationError{Reason: fmt.Sprintf("timeout must be between %d and %d seconds", minTimeoutSeconds, maxTimeoutSeconds)}
	}
	for _, sev := range opts.SeverityFilter {
		if !sev.Valid() {
			return &domain.ValidationError{Reason: fmt.Sprintf("unknown severity %q", sev)}
		}
	}
	return nil
}
