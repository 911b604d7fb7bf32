package announce

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dpup/wayfinder/internal/lib/geo"
	"github.com/dpup/wayfinder/internal/lib/routing"
)

type recordingSpeaker struct {
	mu      sync.Mutex
	spoken  []string
	stops   int
	volume  float64
	volumes []float64
}

func newRecordingSpeaker(volume float64) *recordingSpeaker {
	return &recordingSpeaker{volume: volume}
}

func (s *recordingSpeaker) Speak(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	return nil
}

func (s *recordingSpeaker) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *recordingSpeaker) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *recordingSpeaker) SetVolume(v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
	s.volumes = append(s.volumes, v)
	return nil
}

func TestAnnouncer_NavigationStart(t *testing.T) {
	speaker := newRecordingSpeaker(0.5)
	a := NewAnnouncer(speaker, nil)

	assert.Equal(t, "Navigation started. Total distance 1.2 kilometers, estimated 15 minutes",
		a.AnnounceNavigationStart(1234, 900))
	assert.Equal(t, "Navigation started. Total distance 850 meters, estimated 10 minutes",
		a.AnnounceNavigationStart(850.4, 610))
	assert.Equal(t, []string{
		"Navigation started. Total distance 1.2 kilometers, estimated 15 minutes",
		"Navigation started. Total distance 850 meters, estimated 10 minutes",
	}, speaker.spoken)
}

func TestAnnouncer_AdvanceWarning(t *testing.T) {
	a := NewAnnouncer(newRecordingSpeaker(0.5), nil)
	corner := geo.Point{Latitude: 37.7749, Longitude: -122.4194}
	next := routing.Step{Start: corner, End: geo.Destination(corner, 270, 150)}

	step := routing.Step{Instruction: "Turn left onto Pine St", Maneuver: routing.TurnLeft}
	assert.Equal(t, "In 70 meters, turn left heading west onto Pine St", a.AnnounceAdvanceWarning(step, &next, 70))

	straight := routing.Step{Instruction: "Continue on Market St", Maneuver: routing.Straight}
	assert.Equal(t, "In 65 meters, continue straight onto Market St", a.AnnounceAdvanceWarning(straight, &next, 64.6))

	bare := routing.Step{Instruction: "Turn right", Maneuver: routing.TurnRight, Start: corner, End: geo.Destination(corner, 180, 80)}
	assert.Equal(t, "In 50 meters, turn right heading south", a.AnnounceAdvanceWarning(bare, nil, 50))
}

func TestAnnouncer_ImmediateAndCheckpoint(t *testing.T) {
	a := NewAnnouncer(newRecordingSpeaker(0.5), nil)

	assert.Equal(t, "Turn sharp right now onto Oak Ave",
		a.AnnounceImmediateTurn(routing.Step{Instruction: "Sharp right onto Oak Ave, then turn left", Maneuver: routing.TurnSharpRight}))
	assert.Equal(t, "Make a U-turn now", a.AnnounceImmediateTurn(routing.Step{Maneuver: routing.UTurnLeft}))
	assert.Equal(t, "Continue now", a.AnnounceImmediateTurn(routing.Step{Maneuver: routing.Unknown}))
	assert.Equal(t, "Continue straight for 400 meters", a.AnnounceStraightCheckpoint(399.7))
}

func TestAnnouncer_FixedTemplates(t *testing.T) {
	a := NewAnnouncer(newRecordingSpeaker(0.5), nil)

	assert.Equal(t, "You are off route. Recalculating", a.AnnounceDeviation())
	assert.Equal(t, "New route found. Continue following the directions", a.AnnounceRecalculationSuccess())
	assert.Equal(t, "Unable to recalculate route: network unavailable", a.AnnounceRecalculationError("network unavailable"))
	assert.Equal(t, "Unable to recalculate route", a.AnnounceRecalculationError(""))
	assert.Contains(t, a.AnnounceExcessiveRecalculations(), "left the route several times")
	assert.Equal(t, "GPS signal lost. Navigation stopped", a.AnnounceGPSLost())
}

func TestAnnouncer_VolumeBoostIsIdempotent(t *testing.T) {
	speaker := newRecordingSpeaker(0.5)
	a := NewAnnouncer(speaker, nil)

	a.RestoreOriginalVolume()
	assert.Empty(t, speaker.volumes, "restore without boost is a no-op")

	a.AnnounceDeviation()
	a.AnnounceDeviation()
	a.AnnounceDeviation()
	require.Len(t, speaker.volumes, 1)
	assert.InDelta(t, 0.55, speaker.volumes[0], 1e-9)
	assert.Equal(t, 3, speaker.stops, "every announcement interrupts")

	assert.Equal(t, "You have arrived at your destination", a.AnnounceArrival())
	assert.InDelta(t, 0.5, speaker.volume, 1e-9)

	a.RestoreOriginalVolume()
	assert.Len(t, speaker.volumes, 2)
}

func TestAnnouncer_VolumeBoostIsCapped(t *testing.T) {
	speaker := newRecordingSpeaker(0.95)
	a := NewAnnouncer(speaker, nil)
	a.AnnounceGPSLost()
	assert.Equal(t, 1.0, speaker.volume)
	a.RestoreOriginalVolume()
	assert.Equal(t, 0.95, speaker.volume)
}

func TestAnnouncer_Status(t *testing.T) {
	a := NewAnnouncer(newRecordingSpeaker(0.5), nil)
	route := routing.Route{Steps: []routing.Step{
		{Maneuver: routing.TurnLeft},
		{Maneuver: routing.Straight},
	}}
	bearing := 90.0
	progress := routing.Progress{CurrentStepIndex: 0, DistanceToCurrentStep: 42, TotalDistanceRemaining: 1500, EstimatedTimeRemaining: 1071, BearingToStepEnd: &bearing}

	assert.Equal(t, "Step 1 of 2. In 42 meters, turn left. Walk east. 1.5 kilometers remaining, about 18 minutes",
		a.AnnounceStatus(progress, route))
	assert.Equal(t, "You have arrived at your destination", a.AnnounceStatus(routing.Progress{Arrived: true}, route))
}

type mockSpeaker struct {
	mock.Mock
}

func (m *mockSpeaker) Speak(text string) error { return m.Called(text).Error(0) }
func (m *mockSpeaker) Stop() error             { return m.Called().Error(0) }
func (m *mockSpeaker) Volume() float64         { return m.Called().Get(0).(float64) }
func (m *mockSpeaker) SetVolume(v float64) error {
	return m.Called(v).Error(0)
}

func TestAnnouncer_SpeakerFailuresAreAbsorbed(t *testing.T) {
	speaker := new(mockSpeaker)
	speaker.On("Stop").Return(errors.New("no engine"))
	speaker.On("Volume").Return(0.4)
	speaker.On("SetVolume", mock.AnythingOfType("float64")).Return(errors.New("no mixer"))
	speaker.On("Speak", "You are off route. Recalculating").Return(errors.New("busy"))

	a := NewAnnouncer(speaker, nil)
	assert.Equal(t, "You are off route. Recalculating", a.AnnounceDeviation())
	speaker.AssertExpectations(t)
}

func TestExtractStreetName(t *testing.T) {
	tests := []struct {
		instruction string
		want        string
	}{
		{"Turn left onto Main Street", "Main Street"},
		{"Turn right onto Pine St, then turn left", "Pine St"},
		{"Head north on Market St toward 5th St", "Market St"},
		{"Slight left onto the footpath.", "the footpath"},
		{"Turn left onto Oak Ave\nDestination will be on the right", "Oak Ave"},
		{"Turn left on Toronto Street", "Toronto Street"},
		{"Continue onto Pontotoc Ave", "Pontotoc Ave"},
		{"Head west toward Ontonagon Rd", ""},
		{"Turn right", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractStreetName(tt.instruction), tt.instruction)
	}
}

func TestRoundaboutPhrases(t *testing.T) {
	assert.Equal(t, "second exit", RoundaboutExit("At the roundabout, take the 2nd exit onto Elm St"))
	assert.Equal(t, "third exit", RoundaboutExit("At the roundabout take the third exit"))
	assert.Equal(t, "first exit", RoundaboutExit("Take the 1st exit"))
	assert.Equal(t, "", RoundaboutExit("Enter the roundabout"))

	step := routing.Step{Instruction: "At the roundabout, take the 2nd exit onto Elm St", Maneuver: routing.RoundaboutRight}
	assert.Equal(t, "enter the roundabout and take the second exit", ManeuverPhrase(step))
}
