package location

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dpup/wayfinder/internal/lib/geo"
)

const pushBuffer = 16

// PushSource is fed externally, for example by the HTTP API, and fans the
// fixes out to the single active subscriber.
type PushSource struct {
	logger *zap.SugaredLogger

	mu        sync.Mutex
	sub       *subscription
	last      geo.Point
	hasLast   bool
	lastError error
}

type subscription struct {
	points chan geo.Point
	errs   chan error
	closed bool
}

func (s *subscription) close() {
	if !s.closed {
		s.closed = true
		close(s.points)
		close(s.errs)
	}
}

// NewPushSource creates an empty push source. A nil logger disables logging.
func NewPushSource(logger *zap.SugaredLogger) *PushSource {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PushSource{logger: logger}
}

// Subscribe replaces any existing subscriber.
func (p *PushSource) Subscribe(ctx context.Context) (<-chan geo.Point, <-chan error) {
	sub := &subscription{
		points: make(chan geo.Point, pushBuffer),
		errs:   make(chan error, 1),
	}

	p.mu.Lock()
	if p.sub != nil {
		p.sub.close()
	}
	p.sub = sub
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.sub == sub {
			p.sub = nil
		}
		sub.close()
	}()

	return sub.points, sub.errs
}

// Push records a fix and forwards it to the subscriber. It reports whether a
// subscriber received it; fixes are dropped when the subscriber falls behind.
func (p *PushSource) Push(point geo.Point) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.last, p.hasLast = point, true
	if p.sub == nil || p.sub.closed {
		return false
	}
	select {
	case p.sub.points <- point:
		return true
	default:
		p.logger.Warnw("Dropping location fix, subscriber is behind", "point", point.String())
		return false
	}
}

// Fail reports a stream failure to the subscriber.
func (p *PushSource) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastError = err
	if p.sub == nil || p.sub.closed {
		return
	}
	select {
	case p.sub.errs <- err:
	default:
	}
}

// LastKnown returns the most recent pushed fix.
func (p *PushSource) LastKnown() (geo.Point, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.hasLast
}

// Subscribed reports whether a subscriber is attached.
func (p *PushSource) Subscribed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sub != nil && !p.sub.closed
}
