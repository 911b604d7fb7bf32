package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Notifier is a haptic or notification sink used to signal that a
// navigation session is alive.
type Notifier interface {
	Pulse(ctx context.Context) error
	Release()
}

// Heartbeat pulses a notifier at a fixed interval while a session runs.
type Heartbeat struct {
	notifier Notifier
	interval time.Duration
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	stopChan chan struct{}
	running  bool
}

// NewHeartbeat creates a heartbeat for notifier.
func NewHeartbeat(notifier Notifier, interval time.Duration, logger *zap.SugaredLogger) *Heartbeat {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Heartbeat{
		notifier: notifier,
		interval: interval,
		logger:   logger,
	}
}

// Start begins pulsing until ctx is done or Stop is called. The first pulse
// is sent immediately.
func (h *Heartbeat) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running || h.notifier == nil || h.interval <= 0 {
		return
	}
	h.running = true
	h.stopChan = make(chan struct{})
	go h.loop(ctx, h.stopChan)
}

// Stop halts the heartbeat. Safe to call when not running.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.stopChan)
}

// IsRunning returns whether the heartbeat is active
func (h *Heartbeat) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

func (h *Heartbeat) loop(ctx context.Context, stop <-chan struct{}) {
	defer recoverPanic(ctx, "Heartbeat: recovered from panic")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.pulse(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			h.pulse(ctx)
		}
	}
}

func (h *Heartbeat) pulse(ctx context.Context) {
	if err := h.notifier.Pulse(ctx); err != nil {
		h.logger.Warnw("Heartbeat pulse failed", "error", err)
	}
}

// LogNotifier is a Notifier that only logs, for hosts without a haptic device.
type LogNotifier struct {
	logger *zap.SugaredLogger
}

// NewLogNotifier creates a LogNotifier. A nil logger disables logging.
func NewLogNotifier(logger *zap.SugaredLogger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Pulse(ctx context.Context) error {
	n.logger.Debugw("Navigation session active")
	return nil
}

func (n *LogNotifier) Release() {
	n.logger.Debugw("Navigation session released")
}
