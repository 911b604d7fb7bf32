package speech

import (
	"fmt"
	"io"
	"sync"
)

// ConsoleSpeaker writes announcements to a writer instead of synthesizing audio.
type ConsoleSpeaker struct {
	mu     sync.Mutex
	w      io.Writer
	volume float64
}

// NewConsoleSpeaker creates a speaker writing to w at the given volume.
func NewConsoleSpeaker(w io.Writer, volume float64) *ConsoleSpeaker {
	return &ConsoleSpeaker{w: w, volume: clampVolume(volume)}
}

func (c *ConsoleSpeaker) Speak(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "[speech vol=%.2f] %s\n", c.volume, text)
	return err
}

// Stop is a no-op; console output cannot be interrupted.
func (c *ConsoleSpeaker) Stop() error { return nil }

func (c *ConsoleSpeaker) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

func (c *ConsoleSpeaker) SetVolume(volume float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = clampVolume(volume)
	return nil
}

func clampVolume(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
