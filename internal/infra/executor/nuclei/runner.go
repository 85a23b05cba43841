package nuclei

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	domain "github.com/bryanwahyu/vulnwatch/internal/domain/scans"
)

const toolName = "nuclei"

// stderrTailLimit bounds how much process stderr is kept for error reporting.
const stderrTailLimit = 2048

// Config holds the tunables for the subprocess adapter.
type Config struct {
	Path           string
	TemplatesPath  string
	TempDir        string
	RateLimit      int
	BulkSize       int
	DefaultTimeout time.Duration
}

// Runner drives nuclei as a subprocess, one invocation per scan, and tracks
// live processes so they can be signalled by scan id.
type Runner struct {
	binPath        string
	templatesPath  string
	tempDir        string
	rateLimit      int
	bulkSize       int
	defaultTimeout time.Duration
	log            *logrus.Entry

	mu    sync.Mutex
	procs map[domain.ScanID]*exec.Cmd
}

func NewRunner(cfg Config) *Runner {
	if cfg.Path == "" {
		cfg.Path = toolName
	}
	if cfg.TempDir == "" {
		cfg.TempDir = "./temp"
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 150
	}
	if cfg.BulkSize <= 0 {
		cfg.BulkSize = 25
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 300 * time.Second
	}
	return &Runner{
		binPath:        cfg.Path,
		templatesPath:  cfg.TemplatesPath,
		tempDir:        cfg.TempDir,
		rateLimit:      cfg.RateLimit,
		bulkSize:       cfg.BulkSize,
		defaultTimeout: cfg.DefaultTimeout,
		log:            logrus.WithField("component", "nuclei"),
		procs:          make(map[domain.ScanID]*exec.Cmd),
	}
}

// Available reports whether the tool binary is installed and runnable.
func (r *Runner) Available() bool {
	cmd := exec.Command(r.binPath, "-version")
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	return cmd.Run() == nil
}

// Stop signals the tracked subprocess for the given scan and removes it from
// the registry. Returns false when no process is tracked for the id.
func (r *Runner) Stop(id domain.ScanID) bool {
	r.mu.Lock()
	cmd, ok := r.procs[id]
	if ok {
		delete(r.procs, id)
	}
	r.mu.Unlock()
	if !ok || cmd.Process == nil {
		return false
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		r.log.WithField("scan_id", id).WithError(err).Warn("failed to signal process")
	}
	return true
}

func (r *Runner) track(id domain.ScanID, cmd *exec.Cmd) {
	r.mu.Lock()
	r.procs[id] = cmd
	r.mu.Unlock()
}

func (r *Runner) untrack(id domain.ScanID) {
	r.mu.Lock()
	delete(r.procs, id)
	r.mu.Unlock()
}

// Run executes one tool invocation for the scan. Findings, progress and log
// lines are emitted on the event channel as they surface. When the binary is
// missing the run degrades to synthetic placeholder findings instead of
// failing the scan. On success the JSONL output file is left on disk and
// returned as the artifact path; the caller owns its cleanup. On every error
// path the file is removed here.
func (r *Runner) Run(ctx context.Context, id domain.ScanID, target string, opts domain.RunOptions, emit chan<- domain.Event) (domain.RunResult, error) {
	if !r.Available() {
		r.log.WithField("scan_id", id).Warn("binary not found, falling back to placeholder findings")
		emit <- domain.NewLogEvent(id, "warning", "nuclei is not installed, generating placeholder findings for demo")
		synthetic := domain.SyntheticFindings(id, target)
		for _, v := range synthetic {
			emit <- domain.NewVulnerabilityEvent(id, v)
		}
		return domain.RunResult{Findings: len(synthetic)}, nil
	}

	if err := os.MkdirAll(r.tempDir, 0o755); err != nil {
		return domain.RunResult{}, fmt.Errorf("creating temp dir: %w", err)
	}
	outputFile := filepath.Join(r.tempDir, fmt.Sprintf("scan_%s.json", id))

	timeout := r.defaultTimeout
	if opts.TimeoutSeconds > 0 {
		timeout = time.Duration(opts.TimeoutSeconds) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := r.buildArgs(target, outputFile, opts)
	emit <- domain.NewLogEvent(id, "info", "starting nuclei scan: nuclei "+strings.Join(args, " "))
	emit <- domain.NewProgressEvent(id, 5, "Initializing Nuclei scanner...")

	cmd := exec.CommandContext(runCtx, r.binPath, args...)
	// SIGTERM first so the tool can flush its output; SIGKILL after the wait delay.
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = 5 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return domain.RunResult{}, fmt.Errorf("spawning nuclei: %w", err)
	}
	r.track(id, cmd)
	defer r.untrack(id)

	var tail strings.Builder
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.relayProgress(stdout, id, emit)
	}()
	go func() {
		defer wg.Done()
		r.relayLogs(stderr, id, emit, &tail)
	}()
	wg.Wait()
	err = cmd.Wait()

	if err != nil {
		os.Remove(outputFile)
		if ctx.Err() != nil {
			// Parent cancellation: the scan was stopped, not a tool fault.
			return domain.RunResult{}, ctx.Err()
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			emit <- domain.NewLogEvent(id, "warning", fmt.Sprintf("scan timeout reached after %s, terminating", timeout))
			return domain.RunResult{}, &domain.TimeoutError{Tool: toolName, After: timeout}
		}
		exitCode := -1
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			exitCode = ee.ExitCode()
		}
		emit <- domain.NewLogEvent(id, "error", fmt.Sprintf("nuclei process exited with code %d", exitCode))
		return domain.RunResult{}, &domain.ToolExecutionError{Tool: toolName, ExitCode: exitCode, Stderr: tailString(&tail)}
	}

	emit <- domain.NewProgressEvent(id, 95, "Processing scan results...")
	records, skipped, perr := ParseOutputFile(outputFile)
	if perr != nil {
		os.Remove(outputFile)
		emit <- domain.NewLogEvent(id, "error", "error processing results: "+perr.Error())
		return domain.RunResult{}, fmt.Errorf("parsing nuclei output: %w", perr)
	}
	if skipped > 0 {
		emit <- domain.NewLogEvent(id, "warning", fmt.Sprintf("skipped %d malformed result lines", skipped))
	}
	for _, rec := range records {
		emit <- domain.NewVulnerabilityEvent(id, rec.ToVulnerability(id))
	}

	emit <- domain.NewProgressEvent(id, 100, "Scan completed successfully")
	emit <- domain.NewLogEvent(id, "info", fmt.Sprintf("scan completed, found %d vulnerabilities", len(records)))

	return domain.RunResult{ArtifactPath: outputFile, Findings: len(records)}, nil
}

// relayProgress scans stdout for "current/total" template counters and turns
// them into progress events. Only forward movement is reported.
func (r *Runner) relayProgress(rd io.Reader, id domain.ScanID, emit chan<- domain.Event) {
	var lastPct float64
	s := bufio.NewScanner(rd)
	for s.Scan() {
		current, total, ok := ParseProgress(s.Text())
		if !ok {
			continue
		}
		pct := ProgressPercent(current, total)
		if pct < lastPct+1 {
			continue
		}
		lastPct = pct
		emit <- domain.NewProgressEvent(id, pct, fmt.Sprintf("Scanning templates: %d/%d", current, total))
	}
}

// relayLogs forwards human-readable stderr lines as log events and keeps a
// bounded tail for error reporting.
func (r *Runner) relayLogs(rd io.Reader, id domain.ScanID, emit chan<- domain.Event, tail *strings.Builder) {
	s := bufio.NewScanner(rd)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		if tail.Len() < stderrTailLimit {
			tail.WriteString(line)
			tail.WriteByte('\n')
		}
		emit <- domain.NewLogEvent(id, "info", line)
	}
}

func tailString(tail *strings.Builder) string {
	s := tail.String()
	if len(s) > stderrTailLimit {
		s = s[len(s)-stderrTailLimit:]
	}
	return strings.TrimSpace(s)
}
