package scans

import (
	"context"
	"sync"

	domain "github.com/bryanwahyu/vulnwatch/internal/domain/scans"
)

// eventRelay is the single consumer of a scan's event channel. It filters and
// dedupes findings, keeps progress monotonic, persists what must survive a
// restart and fans everything out to live subscribers.
type eventRelay struct {
	svc    *Service
	scanID domain.ScanID
	filter map[domain.Severity]bool

	mu       sync.Mutex
	kept     []domain.Vulnerability
	seen     map[string]bool
	lastPct  float64
	firstErr error
}

func newRelay(svc *Service, id domain.ScanID, filter []domain.Severity) *eventRelay {
	var fs map[domain.Severity]bool
	if len(filter) > 0 {
		fs = make(map[domain.Severity]bool, len(filter))
		for _, s := range filter {
			fs[s] = true
		}
	}
	return &eventRelay{
		svc:    svc,
		scanID: id,
		filter: fs,
		seen:   make(map[string]bool),
	}
}

// drain consumes events until the channel closes.
func (r *eventRelay) drain(ctx context.Context, events <-chan domain.Event) {
	for ev := range events {
		r.handle(ctx, ev)
	}
}

func (r *eventRelay) handle(ctx context.Context, ev domain.Event) {
	switch ev.Type {
	case domain.EventProgress:
		p, ok := ev.Data.(domain.ProgressPayload)
		if !ok {
			return
		}
		r.mu.Lock()
		if p.Progress < r.lastPct {
			r.mu.Unlock()
			return
		}
		r.lastPct = p.Progress
		r.mu.Unlock()
		r.svc.Broadcaster.Publish(r.scanID, ev)

	case domain.EventLog:
		p, ok := ev.Data.(domain.LogPayload)
		if !ok {
			return
		}
		if err := r.svc.Repo.AppendLog(ctx, r.scanID, p.Level, p.Message); err != nil {
			r.recordErr(err)
		}
		r.svc.Broadcaster.Publish(r.scanID, ev)

	case domain.EventVulnerabilityFound:
		v, ok := ev.Data.(domain.Vulnerability)
		if !ok {
			return
		}
		if r.filter != nil && !r.filter[v.Severity] {
			return
		}
		key := v.DedupeKey()
		r.mu.Lock()
		if r.seen[key] {
			r.mu.Unlock()
			return
		}
		r.seen[key] = true
		r.kept = append(r.kept, v)
		r.mu.Unlock()
		if err := r.svc.Repo.InsertVulnerability(ctx, &v); err != nil {
			r.recordErr(err)
		}
		r.svc.Broadcaster.Publish(r.scanID, ev)

	default:
		r.svc.Broadcaster.Publish(r.scanID, ev)
	}
}

func (r *eventRelay) recordErr(err error) {
	r.mu.Lock()
	if r.firstErr == nil {
		r.firstErr = err
	}
	r.mu.Unlock()
}

func (r *eventRelay) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firstErr
}

func (r *eventRelay) vulnerabilities() []domain.Vulnerability {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Vulnerability, len(r.kept))
	copy(out, r.kept)
	return out
}
