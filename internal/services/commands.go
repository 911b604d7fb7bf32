package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dpup/wayfinder/internal/lib/geo"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUnknownPlace   = errors.New("unknown place")
	ErrNoPosition     = errors.New("current position unknown")
)

// Command actions.
const (
	ActionNavigate = "navigate"
	ActionStop     = "stop"
	ActionStatus   = "status"
)

var (
	navigatePrefixes = []string{"navigate to ", "take me to ", "directions to ", "go to "}
	stopCommands     = []string{"cancel", "stop", "stop navigation", "cancel navigation", "end navigation"}
	statusCommands   = []string{"where am i", "status", "repeat", "how far"}
)

// PlaceResolver maps a spoken destination name to coordinates.
type PlaceResolver interface {
	Resolve(name string) (geo.Point, bool)
}

// PlaceResolverFunc adapts a function to PlaceResolver.
type PlaceResolverFunc func(name string) (geo.Point, bool)

func (f PlaceResolverFunc) Resolve(name string) (geo.Point, bool) { return f(name) }

// Positioner reports the last known position of the user.
type Positioner interface {
	LastKnown() (geo.Point, bool)
}

// CommandResult describes what a dispatched command did.
type CommandResult struct {
	Action    string `json:"action"`
	SessionID string `json:"session_id,omitempty"`
	Place     string `json:"place,omitempty"`
	Spoken    string `json:"spoken,omitempty"`
}

// CommandDispatcher routes recognized voice commands to the navigation
// service.
type CommandDispatcher struct {
	nav      *NavigationService
	planner  RouteProvider
	places   PlaceResolver
	position Positioner
	logger   *zap.SugaredLogger
}

// NewCommandDispatcher creates a dispatcher.
func NewCommandDispatcher(nav *NavigationService, planner RouteProvider, places PlaceResolver, position Positioner, logger *zap.SugaredLogger) *CommandDispatcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &CommandDispatcher{
		nav:      nav,
		planner:  planner,
		places:   places,
		position: position,
		logger:   logger,
	}
}

// Dispatch interprets a recognized utterance.
func (d *CommandDispatcher) Dispatch(ctx context.Context, utterance string) (CommandResult, error) {
	text := normalizeUtterance(utterance)
	d.logger.Debugw("Dispatching command", "utterance", text)

	for _, prefix := range navigatePrefixes {
		if place, ok := strings.CutPrefix(text, prefix); ok && place != "" {
			return d.navigate(ctx, place)
		}
	}

	for _, cmd := range stopCommands {
		if text == cmd {
			return CommandResult{Action: ActionStop}, d.nav.Stop()
		}
	}

	for _, cmd := range statusCommands {
		if text == cmd {
			spoken, err := d.nav.AnnounceStatus()
			return CommandResult{Action: ActionStatus, Spoken: spoken}, err
		}
	}

	return CommandResult{}, fmt.Errorf("%w: %q", ErrUnknownCommand, utterance)
}

func (d *CommandDispatcher) navigate(ctx context.Context, place string) (CommandResult, error) {
	result := CommandResult{Action: ActionNavigate, Place: place}

	if d.places == nil {
		return result, fmt.Errorf("%w: %s", ErrUnknownPlace, place)
	}
	destination, ok := d.places.Resolve(place)
	if !ok {
		return result, fmt.Errorf("%w: %s", ErrUnknownPlace, place)
	}

	if d.position == nil {
		return result, ErrNoPosition
	}
	origin, ok := d.position.LastKnown()
	if !ok {
		return result, ErrNoPosition
	}

	route, err := d.planner.ComputeRoute(ctx, origin, destination)
	if err != nil {
		return result, err
	}

	id, err := d.nav.Start(ctx, *route)
	if err != nil {
		return result, err
	}
	result.SessionID = id
	return result, nil
}

func normalizeUtterance(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimRight(s, ".!?")
	return strings.Join(strings.Fields(s), " ")
}
