package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/wayfinder/internal/lib/geo"
	"github.com/dpup/wayfinder/internal/lib/routing"
)

func TestCache_SetGetExpiry(t *testing.T) {
	c := NewCache()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set("k", map[string]int{"a": 1}, time.Minute, "test"))

	var got map[string]int
	found, err := c.Get("k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, got["a"])

	now = now.Add(2 * time.Minute)
	found, err = c.Get("k", &got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, c.Stats().FreshEntries)

	stats := c.Stats()
	assert.Equal(t, 1, stats.TotalEntries)
	assert.Equal(t, 1, stats.StaleEntries)

	assert.Equal(t, 1, c.CleanupStale())
	assert.Equal(t, 0, c.Stats().TotalEntries)
}

func TestCache_Delete(t *testing.T) {
	c := NewCache()
	require.NoError(t, c.Set("a", 1, time.Minute, "test"))
	require.NoError(t, c.Set("b", 2, time.Minute, "test"))

	c.Delete("a")
	var v int
	found, err := c.Get("a", &v)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = c.Get("b", &v)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, c.Stats().TotalEntries)
}

func TestCache_Routes(t *testing.T) {
	c := NewCache()
	origin := geo.Point{Latitude: 37.77491, Longitude: -122.41942}
	destination := geo.Point{Latitude: 37.7767, Longitude: -122.4183}
	route := routing.Route{
		Origin:      origin,
		Destination: destination,
		Steps: []routing.Step{
			{Instruction: "Turn left onto Pine St", Maneuver: routing.TurnLeft, Start: origin, End: destination, DistanceMeters: 230},
		},
		TotalDistanceMeters: 230,
	}

	require.NoError(t, c.SetRoute(origin, destination, route, time.Hour))

	// A fix a meter away shares the key.
	nearby := geo.Point{Latitude: 37.77492, Longitude: -122.41941}
	got, found, err := c.GetRoute(nearby, destination)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, route, got)

	_, found, err = c.GetRoute(destination, origin)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_PeriodicCleanupStopsWithContext(t *testing.T) {
	c := NewCache()
	require.NoError(t, c.Set("gone", 1, -time.Second, "test"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.StartPeriodicCleanup(ctx, 5*time.Millisecond, nil)

	assert.Eventually(t, func() bool { return c.Stats().TotalEntries == 0 }, time.Second, 5*time.Millisecond)
}

func TestProgressPublisher_Disabled(t *testing.T) {
	p := NewProgressPublisher(context.Background(), "", "wayfinder:progress", time.Minute, nil)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Publish(context.Background(), map[string]string{"state": "idle"}))
	assert.Equal(t, "wayfinder:progress:latest", p.LatestKey())
	assert.NoError(t, p.Close())

	p = NewProgressPublisher(context.Background(), "not a url", "wayfinder:progress", time.Minute, nil)
	assert.False(t, p.Enabled())
}
