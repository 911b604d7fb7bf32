package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dpup/wayfinder/internal/clients/location"
	"github.com/dpup/wayfinder/internal/lib/announce"
	"github.com/dpup/wayfinder/internal/lib/geo"
	"github.com/dpup/wayfinder/internal/lib/routing"
)

var (
	// ErrEmptyRoute is returned when navigation is started on a route with no steps.
	ErrEmptyRoute = errors.New("route has no steps")
	// ErrNotNavigating is returned by operations that need an active session.
	ErrNotNavigating = errors.New("no active navigation session")
)

// Session end reasons.
const (
	ReasonArrived  = "arrived"
	ReasonStopped  = "stopped"
	ReasonGPSLost  = "gps_lost"
	ReasonReplaced = "replaced"
)

// Journal event kinds.
const (
	EventAnnouncement  = "announcement"
	EventDeviation     = "deviation"
	EventRecalculation = "recalculation"
)

const (
	subscriberBuffer     = 8
	recalculationTimeout = 30 * time.Second
	journalTimeout       = 2 * time.Second
)

// State is the orchestrator state.
type State string

const (
	StateIdle       State = "idle"
	StateNavigating State = "navigating"
)

// RouteProvider computes walking routes.
type RouteProvider interface {
	ComputeRoute(ctx context.Context, origin, destination geo.Point) (*routing.Route, error)
}

// Journal records session history.
type Journal interface {
	SessionStarted(ctx context.Context, id string, route routing.Route, at time.Time) error
	RecordEvent(ctx context.Context, id, kind, message string, at time.Time) error
	SessionEnded(ctx context.Context, id, reason string, at time.Time) error
}

// Snapshot is the observable state of the service after a sample or
// lifecycle change.
type Snapshot struct {
	SessionID      string                  `json:"session_id,omitempty"`
	State          State                   `json:"state"`
	Progress       *routing.Progress       `json:"progress,omitempty"`
	Deviation      *routing.DeviationState `json:"deviation,omitempty"`
	Summary        string                  `json:"summary,omitempty"`
	Recalculations int                     `json:"recalculations,omitempty"`
	Reason         string                  `json:"reason,omitempty"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

// NavigationOptions tunes a NavigationService. Zero values fall back to
// defaults.
type NavigationOptions struct {
	Thresholds               routing.Thresholds
	MaxRecalculations        int
	MaxRecalculationFailures int
	HeartbeatInterval        time.Duration

	Journal  Journal
	Notifier Notifier
	Logger   *zap.SugaredLogger
}

// session holds everything that lives exactly as long as one navigation.
type session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	route     routing.Route
	previous  *routing.Progress
	deviation *routing.DeviationState
	detector  *routing.DeviationDetector
	heartbeat *Heartbeat

	recalculating  bool
	generation     int
	recalculations int
	failures       int
}

// NavigationService drives the guidance pipeline for one session at a time.
type NavigationService struct {
	source    location.Source
	announcer *announce.Announcer
	provider  RouteProvider
	follower  *routing.RouteFollower
	warnings  *routing.TurnWarningCalculator
	opts      NavigationOptions
	logger    *zap.SugaredLogger
	now       func() time.Time

	mu          sync.Mutex
	session     *session
	last        Snapshot
	subscribers map[int]chan Snapshot
	nextSubID   int
}

// NewNavigationService creates an idle service. provider may be nil, in which
// case sustained deviation is announced but no new route is requested.
func NewNavigationService(source location.Source, announcer *announce.Announcer, provider RouteProvider, opts NavigationOptions) *NavigationService {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.MaxRecalculations <= 0 {
		opts.MaxRecalculations = 5
	}
	if opts.MaxRecalculationFailures <= 0 {
		opts.MaxRecalculationFailures = 3
	}
	if opts.Thresholds == (routing.Thresholds{}) {
		opts.Thresholds = routing.DefaultThresholds()
	}
	return &NavigationService{
		source:      source,
		announcer:   announcer,
		provider:    provider,
		follower:    routing.NewRouteFollower(opts.Thresholds),
		warnings:    routing.NewTurnWarningCalculator(opts.Thresholds),
		opts:        opts,
		logger:      opts.Logger,
		now:         time.Now,
		last:        Snapshot{State: StateIdle},
		subscribers: make(map[int]chan Snapshot),
	}
}

// Start begins navigating route, tearing down any active session first, and
// returns the new session id.
func (s *NavigationService) Start(ctx context.Context, route routing.Route) (string, error) {
	if route.IsEmpty() {
		return "", ErrEmptyRoute
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		s.stopLocked(ReasonReplaced, nil)
	}

	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := &session{
		id:       uuid.New().String(),
		ctx:      sessCtx,
		cancel:   cancel,
		route:    route,
		detector: routing.NewDeviationDetector(s.opts.Thresholds, s.logger),
	}
	s.session = sess

	s.logger.Infow("Navigation started",
		"session_id", sess.id,
		"steps", len(route.Steps),
		"distance_m", route.TotalDistanceMeters)

	s.journal(func(ctx context.Context, j Journal) error {
		return j.SessionStarted(ctx, sess.id, route, s.now())
	})
	s.spoken(sess, s.announcer.AnnounceNavigationStart(route.TotalDistanceMeters, route.TotalDurationSeconds))

	points, errs := s.source.Subscribe(sessCtx)
	go s.run(sess, points, errs)

	if s.opts.Notifier != nil {
		sess.heartbeat = NewHeartbeat(s.opts.Notifier, s.opts.HeartbeatInterval, s.logger)
		sess.heartbeat.Start(sessCtx)
	}

	s.publishLocked(s.snapshotLocked(sess))
	return sess.id, nil
}

// Stop ends the active session. It returns ErrNotNavigating, with no other
// effect, when already idle.
func (s *NavigationService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return ErrNotNavigating
	}
	s.stopLocked(ReasonStopped, s.announcer.AnnounceStopped)
	return nil
}

// AnnounceStatus speaks the current position along the route.
func (s *NavigationService) AnnounceStatus() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session
	if sess == nil {
		return "", ErrNotNavigating
	}

	progress := routing.Progress{
		TotalDistanceRemaining: sess.route.TotalDistanceMeters,
		EstimatedTimeRemaining: sess.route.TotalDurationSeconds,
	}
	if sess.previous != nil {
		progress = *sess.previous
	} else if first, ok := sess.route.Step(0); ok {
		progress.DistanceToCurrentStep = first.DistanceMeters
	}
	text := s.announcer.AnnounceStatus(progress, sess.route)
	s.spoken(sess, text)
	return text, nil
}

// Thresholds returns the guidance tuning in effect.
func (s *NavigationService) Thresholds() routing.Thresholds {
	return s.opts.Thresholds
}

// Current returns the most recent snapshot.
func (s *NavigationService) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Route returns the active route.
func (s *NavigationService) Route() (routing.Route, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return routing.Route{}, false
	}
	return s.session.route, true
}

// Subscribe registers an observer. Snapshots are dropped for observers that
// fall behind. The returned func unsubscribes and closes the channel.
func (s *NavigationService) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Snapshot, subscriberBuffer)
	s.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subscribers, id)
			close(ch)
		})
	}
}

func (s *NavigationService) run(sess *session, points <-chan geo.Point, errs <-chan error) {
	defer recoverPanic(sess.ctx, "Navigation: location loop recovered from panic")

	for {
		select {
		case <-sess.ctx.Done():
			return
		case p, ok := <-points:
			if !ok {
				s.locationLost(sess, location.ErrSignalLost)
				return
			}
			s.handleSample(sess, p)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.locationLost(sess, err)
			return
		}
	}
}

// handleSample runs the per-sample pipeline: follow, warn, check deviation,
// store, publish.
func (s *NavigationService) handleSample(sess *session, position geo.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != sess {
		return
	}
	defer recoverPanic(sess.ctx, "Navigation: sample processing recovered from panic")

	if !position.IsValid() {
		s.logger.Debugw("Ignoring invalid position", "position", position)
		return
	}

	progress := s.follower.CalculateProgress(position, sess.route, sess.previous)
	warning := s.warnings.CheckForWarning(progress, sess.route)

	checkDeviation := true
	if warning != nil {
		switch warning.Kind {
		case routing.AdvanceWarning:
			s.spoken(sess, s.announcer.AnnounceAdvanceWarning(*warning.Step, s.nextStep(sess, warning.StepIndex), warning.Distance))
			progress = progress.WithAdvanceWarningGiven()
			checkDeviation = false
		case routing.ImmediateWarning:
			s.spoken(sess, s.announcer.AnnounceImmediateTurn(*warning.Step))
			progress = progress.WithImmediateWarningGiven()
			checkDeviation = false
		case routing.CheckpointWarning:
			s.spoken(sess, s.announcer.AnnounceStraightCheckpoint(warning.Distance))
			progress = progress.WithCheckpointAt(warning.Distance)
		case routing.ArrivalWarning:
			sess.previous = &progress
			s.stopLocked(ReasonArrived, s.announcer.AnnounceArrival)
			return
		}
	}

	if checkDeviation {
		s.checkDeviation(sess, position, progress.CurrentStepIndex)
	}

	sess.previous = &progress
	s.publishLocked(s.snapshotLocked(sess))
}

func (s *NavigationService) nextStep(sess *session, index int) *routing.Step {
	if next, ok := sess.route.Step(index + 1); ok {
		return &next
	}
	return nil
}

func (s *NavigationService) checkDeviation(sess *session, position geo.Point, stepIndex int) {
	state := sess.detector.CheckDeviation(position, sess.route, stepIndex)
	sess.deviation = &state

	if !sess.detector.ThresholdReached() || sess.recalculating {
		return
	}

	s.logger.Infow("Sustained deviation detected",
		"session_id", sess.id,
		"distance_m", state.Distance,
		"consecutive", state.ConsecutiveCount)
	s.spoken(sess, s.announcer.AnnounceDeviation())
	s.record(sess, EventDeviation, fmt.Sprintf("%.0f m off route", state.Distance))

	if s.provider == nil {
		sess.detector.ResetHistory()
		return
	}

	sess.recalculating = true
	go s.recalculate(sess, sess.generation, position, sess.route.Destination)
}

// recalculate requests a new route off the sample loop and applies the result
// only if the session is still the one that asked for it.
func (s *NavigationService) recalculate(sess *session, generation int, from, to geo.Point) {
	defer recoverPanic(sess.ctx, "Navigation: recalculation recovered from panic")

	ctx, cancel := context.WithTimeout(sess.ctx, recalculationTimeout)
	defer cancel()

	route, err := s.provider.ComputeRoute(ctx, from, to)
	if err == nil && (route == nil || route.IsEmpty()) {
		err = ErrEmptyRoute
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != sess || sess.generation != generation {
		s.logger.Debugw("Discarding stale recalculation", "session_id", sess.id)
		return
	}
	sess.recalculating = false
	sess.detector.ResetHistory()

	if err != nil {
		sess.failures++
		s.logger.Warnw("Route recalculation failed",
			"session_id", sess.id,
			"failures", sess.failures,
			"error", err)
		s.record(sess, EventRecalculation, "failed: "+err.Error())
		if sess.failures >= s.opts.MaxRecalculationFailures {
			s.spoken(sess, s.announcer.AnnounceExcessiveRecalculations())
		} else {
			s.spoken(sess, s.announcer.AnnounceRecalculationError(recalculationReason(err)))
		}
		return
	}

	sess.route = *route
	sess.previous = nil
	sess.deviation = nil
	sess.generation++
	sess.failures = 0
	sess.recalculations++

	s.logger.Infow("Route recalculated",
		"session_id", sess.id,
		"steps", len(route.Steps),
		"recalculations", sess.recalculations)
	s.record(sess, EventRecalculation, fmt.Sprintf("new route with %d steps", len(route.Steps)))

	if sess.recalculations >= s.opts.MaxRecalculations {
		s.spoken(sess, s.announcer.AnnounceExcessiveRecalculations())
	} else {
		s.spoken(sess, s.announcer.AnnounceRecalculationSuccess())
	}
	s.publishLocked(s.snapshotLocked(sess))
}

func recalculationReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "the request timed out"
	case errors.Is(err, ErrEmptyRoute):
		return "no route found"
	default:
		return ""
	}
}

func (s *NavigationService) locationLost(sess *session, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != sess || sess.ctx.Err() != nil {
		return
	}
	s.logger.Warnw("Location updates lost", "session_id", sess.id, "error", err)
	s.stopLocked(ReasonGPSLost, s.announcer.AnnounceGPSLost)
}

// stopLocked tears down the active session. farewell, when set, is spoken
// before the volume is restored.
func (s *NavigationService) stopLocked(reason string, farewell func() string) {
	sess := s.session
	if sess == nil {
		return
	}

	if farewell != nil {
		s.spoken(sess, farewell())
	}

	s.session = nil
	sess.cancel()
	if sess.heartbeat != nil {
		sess.heartbeat.Stop()
	}
	if s.opts.Notifier != nil {
		s.opts.Notifier.Release()
	}
	s.announcer.RestoreOriginalVolume()

	s.logger.Infow("Navigation stopped", "session_id", sess.id, "reason", reason)
	s.journal(func(ctx context.Context, j Journal) error {
		return j.SessionEnded(ctx, sess.id, reason, s.now())
	})

	snap := Snapshot{
		SessionID:      sess.id,
		State:          StateIdle,
		Progress:       sess.previous,
		Summary:        sess.route.Summary,
		Recalculations: sess.recalculations,
		Reason:         reason,
		UpdatedAt:      s.now(),
	}
	s.publishLocked(snap)
}

func (s *NavigationService) snapshotLocked(sess *session) Snapshot {
	return Snapshot{
		SessionID:      sess.id,
		State:          StateNavigating,
		Progress:       sess.previous,
		Deviation:      sess.deviation,
		Summary:        sess.route.Summary,
		Recalculations: sess.recalculations,
		UpdatedAt:      s.now(),
	}
}

func (s *NavigationService) publishLocked(snap Snapshot) {
	s.last = snap
	for id, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			s.logger.Debugw("Dropping snapshot for slow subscriber", "subscriber", id)
		}
	}
}

func (s *NavigationService) spoken(sess *session, text string) {
	s.record(sess, EventAnnouncement, text)
}

func (s *NavigationService) record(sess *session, kind, message string) {
	s.journal(func(ctx context.Context, j Journal) error {
		return j.RecordEvent(ctx, sess.id, kind, message, s.now())
	})
}

func (s *NavigationService) journal(fn func(ctx context.Context, j Journal) error) {
	if s.opts.Journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := fn(ctx, s.opts.Journal); err != nil {
		s.logger.Warnw("Failed to write session journal", "error", err)
	}
}
