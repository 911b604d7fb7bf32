package announce

import (
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/dpup/wayfinder/internal/lib/geo"
	"github.com/dpup/wayfinder/internal/lib/routing"
)

// Speaker is a text-to-speech sink. Speak must not block on playback.
type Speaker interface {
	Speak(text string) error
	Stop() error
	Volume() float64
	SetVolume(volume float64) error
}

// VolumeBoost is the multiplier applied on the first priority announcement.
const VolumeBoost = 1.1

// Announcer renders navigation events into spoken sentences and delivers
// them with interrupt semantics. Every method returns the rendered text.
type Announcer struct {
	speaker Speaker
	logger  *zap.SugaredLogger

	mu             sync.Mutex
	boosted        bool
	originalVolume float64
}

// NewAnnouncer creates an announcer for speaker. A nil logger disables logging.
func NewAnnouncer(speaker Speaker, logger *zap.SugaredLogger) *Announcer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Announcer{speaker: speaker, logger: logger}
}

// AnnounceNavigationStart speaks the route summary.
func (a *Announcer) AnnounceNavigationStart(totalMeters, totalSeconds float64) string {
	text := fmt.Sprintf("Navigation started. Total distance %s, estimated %s",
		FormatDistance(totalMeters), formatMinutes(totalSeconds))
	return a.AnnounceWithPriority(text)
}

// AnnounceAdvanceWarning speaks the upcoming maneuver. The heading is taken
// from the step that follows the maneuver and is added for turns only.
func (a *Announcer) AnnounceAdvanceWarning(step routing.Step, next *routing.Step, distance float64) string {
	text := fmt.Sprintf("In %d meters, %s", roundMeters(distance), ManeuverPhrase(step))
	if step.Maneuver.IsTurn() {
		heading := step
		if next != nil {
			heading = *next
		}
		if heading.Start != heading.End {
			text += " heading " + geo.CardinalDirection(geo.Bearing(heading.Start, heading.End)).Spoken()
		}
	}
	if street := ExtractStreetName(step.Instruction); street != "" {
		text += " onto " + street
	}
	return a.AnnounceWithPriority(text)
}

// AnnounceImmediateTurn speaks the maneuver as due now.
func (a *Announcer) AnnounceImmediateTurn(step routing.Step) string {
	text := capitalize(ManeuverPhrase(step)) + " now"
	if street := ExtractStreetName(step.Instruction); street != "" {
		text += " onto " + street
	}
	return a.AnnounceWithPriority(text)
}

// AnnounceStraightCheckpoint reassures the user on a long straight section.
func (a *Announcer) AnnounceStraightCheckpoint(distance float64) string {
	return a.AnnounceWithPriority(fmt.Sprintf("Continue straight for %d meters", roundMeters(distance)))
}

// AnnounceArrival speaks the arrival message and restores the original volume.
func (a *Announcer) AnnounceArrival() string {
	text := a.AnnounceWithPriority("You have arrived at your destination")
	a.RestoreOriginalVolume()
	return text
}

// AnnounceDeviation tells the user they have left the route.
func (a *Announcer) AnnounceDeviation() string {
	return a.AnnounceWithPriority("You are off route. Recalculating")
}

// AnnounceRecalculationSuccess confirms a replacement route.
func (a *Announcer) AnnounceRecalculationSuccess() string {
	return a.AnnounceWithPriority("New route found. Continue following the directions")
}

// AnnounceRecalculationError reports a failed recalculation, with reason when known.
func (a *Announcer) AnnounceRecalculationError(reason string) string {
	if reason == "" {
		return a.AnnounceWithPriority("Unable to recalculate route")
	}
	return a.AnnounceWithPriority("Unable to recalculate route: " + reason)
}

// AnnounceExcessiveRecalculations suggests asking for help after repeated deviations.
func (a *Announcer) AnnounceExcessiveRecalculations() string {
	return a.AnnounceWithPriority("You have left the route several times. Consider stopping navigation and asking for assistance")
}

// AnnounceGPSLost reports that location updates stopped.
func (a *Announcer) AnnounceGPSLost() string {
	return a.AnnounceWithPriority("GPS signal lost. Navigation stopped")
}

// AnnounceStopped confirms the user ended navigation.
func (a *Announcer) AnnounceStopped() string {
	return a.AnnounceWithPriority("Navigation stopped")
}

// AnnounceStatus speaks where the user is along the route.
func (a *Announcer) AnnounceStatus(progress routing.Progress, route routing.Route) string {
	if progress.Arrived {
		return a.AnnounceWithPriority("You have arrived at your destination")
	}
	step, ok := route.Step(progress.CurrentStepIndex)
	if !ok {
		return a.AnnounceWithPriority("Navigation is active")
	}

	text := fmt.Sprintf("Step %d of %d. In %d meters, %s",
		progress.CurrentStepIndex+1, len(route.Steps), roundMeters(progress.DistanceToCurrentStep), ManeuverPhrase(step))
	if progress.BearingToStepEnd != nil {
		text += ". Walk " + geo.CardinalDirection(*progress.BearingToStepEnd).Spoken()
	}
	text += fmt.Sprintf(". %s remaining, about %s",
		FormatDistance(progress.TotalDistanceRemaining), formatMinutes(progress.EstimatedTimeRemaining))
	return a.AnnounceWithPriority(text)
}

// AnnounceWithPriority interrupts any current utterance, boosts the volume
// once per session, then speaks text.
func (a *Announcer) AnnounceWithPriority(text string) string {
	if err := a.speaker.Stop(); err != nil {
		a.logger.Warnw("Failed to interrupt speech", "error", err)
	}
	a.boostVolume()
	if err := a.speaker.Speak(text); err != nil {
		a.logger.Warnw("Failed to speak announcement", "text", text, "error", err)
	} else {
		a.logger.Debugw("Announced", "text", text)
	}
	return text
}

func (a *Announcer) boostVolume() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.boosted {
		return
	}
	a.originalVolume = a.speaker.Volume()
	a.boosted = true
	if err := a.speaker.SetVolume(math.Min(1, a.originalVolume*VolumeBoost)); err != nil {
		a.logger.Warnw("Failed to boost volume", "error", err)
	}
}

// RestoreOriginalVolume reverts the boost. Safe to call repeatedly.
func (a *Announcer) RestoreOriginalVolume() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.boosted {
		return
	}
	a.boosted = false
	if err := a.speaker.SetVolume(a.originalVolume); err != nil {
		a.logger.Warnw("Failed to restore volume", "error", err)
	}
}

// FormatDistance renders meters the way announcements speak them.
func FormatDistance(meters float64) string {
	if meters >= 1000 {
		return fmt.Sprintf("%.1f kilometers", meters/1000)
	}
	return fmt.Sprintf("%d meters", roundMeters(meters))
}

func formatMinutes(seconds float64) string {
	minutes := int(math.Round(seconds / 60))
	if minutes < 1 {
		minutes = 1
	}
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}

func roundMeters(meters float64) int {
	return int(math.Round(math.Max(0, meters)))
}
