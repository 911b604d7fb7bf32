package google

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dpup/wayfinder/internal/lib/geo"
	"github.com/dpup/wayfinder/internal/lib/routing"
)

const (
	defaultBaseURL = "https://routes.googleapis.com"

	// Field mask is required by the Routes API; without it requests are rejected.
	walkingFieldMask = "routes.duration,routes.distanceMeters,routes.description,routes.polyline.encodedPolyline," +
		"routes.legs.steps.distanceMeters,routes.legs.steps.staticDuration,routes.legs.steps.polyline.encodedPolyline," +
		"routes.legs.steps.startLocation,routes.legs.steps.endLocation,routes.legs.steps.navigationInstruction"

	arrivalInstruction = "Arrive at destination"
)

// ErrRateLimited is returned when the API responds with 429.
var ErrRateLimited = errors.New("rate limit exceeded")

// HTTPDoer is the subset of *http.Client the client needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client provides walking directions from the Google Routes API v2
type Client struct {
	apiKey     string
	httpClient HTTPDoer
	baseURL    string
	language   string
}

// NewClient creates a new Google Routes API client
func NewClient(apiKey string) *Client {
	return NewClientWithHTTPDoer(apiKey, defaultBaseURL, &http.Client{Timeout: 30 * time.Second})
}

// NewClientWithHTTPDoer creates a client with a custom transport, used by tests.
func NewClientWithHTTPDoer(apiKey, baseURL string, doer HTTPDoer) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{apiKey: apiKey, httpClient: doer, baseURL: strings.TrimRight(baseURL, "/"), language: "en-US"}
}

// WithLanguage sets the language used for instruction text.
func (c *Client) WithLanguage(code string) *Client {
	if code != "" {
		c.language = code
	}
	return c
}

// ComputeRoute requests a walking route and converts it into navigation steps.
func (c *Client) ComputeRoute(ctx context.Context, origin, destination geo.Point) (*routing.Route, error) {
	requestBody := map[string]interface{}{
		"origin":       waypoint(origin),
		"destination":  waypoint(destination),
		"travelMode":   "WALK",
		"languageCode": c.language,
		"units":        "METRIC",
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/directions/v2:computeRoutes", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", walkingFieldMask)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, apiErrorMessage(body))
	}

	var response RoutesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(response.Routes) == 0 {
		return nil, fmt.Errorf("no routes found in response")
	}

	return toNavigationRoute(response.Routes[0], origin, destination)
}

// toNavigationRoute flattens legs into steps. Google attaches each maneuver
// to the start of the step that follows it, so maneuver and instruction are
// shifted back one step to describe the action at each step's end.
func toNavigationRoute(r Route, origin, destination geo.Point) (*routing.Route, error) {
	var raw []Step
	for _, leg := range r.Legs {
		raw = append(raw, leg.Steps...)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("route has no steps")
	}

	steps := make([]routing.Step, len(raw))
	for i, s := range raw {
		duration, err := parseDuration(s.StaticDuration)
		if err != nil {
			return nil, fmt.Errorf("failed to parse step %d duration: %w", i, err)
		}

		step := routing.Step{
			Start:           s.StartLocation.point(),
			End:             s.EndLocation.point(),
			DistanceMeters:  float64(s.DistanceMeters),
			DurationSeconds: float64(duration),
			EncodedPath:     s.Polyline.EncodedPolyline,
			Maneuver:        routing.Straight,
			Instruction:     arrivalInstruction,
		}
		if i+1 < len(raw) {
			next := raw[i+1].NavigationInstruction
			step.Maneuver = routing.ParseManeuver(next.Maneuver)
			step.Instruction = next.Instructions
		}
		steps[i] = step
	}

	totalDuration, err := parseDuration(r.Duration)
	if err != nil {
		return nil, fmt.Errorf("failed to parse duration: %w", err)
	}

	summary := r.Description
	if summary == "" {
		summary = raw[0].NavigationInstruction.Instructions
	}

	return &routing.Route{
		Steps:                steps,
		Origin:               origin,
		Destination:          destination,
		TotalDistanceMeters:  float64(r.DistanceMeters),
		TotalDurationSeconds: float64(totalDuration),
		Summary:              summary,
	}, nil
}

func waypoint(p geo.Point) map[string]interface{} {
	return map[string]interface{}{
		"location": map[string]interface{}{
			"latLng": LatLng{Latitude: p.Latitude, Longitude: p.Longitude},
		},
	}
}

func apiErrorMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// parseDuration parses Google's duration format like "450s" to seconds.
// Empty strings are zero; walking steps sometimes omit the field.
func parseDuration(durationStr string) (int64, error) {
	if durationStr == "" {
		return 0, nil
	}
	d, err := strconv.ParseFloat(strings.TrimSuffix(durationStr, "s"), 64)
	if err != nil {
		return 0, err
	}
	return int64(d + 0.5), nil
}

// RoutesResponse represents the API response structure
type RoutesResponse struct {
	Routes []Route `json:"routes"`
}

// Route represents a single route in the response
type Route struct {
	Duration       string   `json:"duration"`
	DistanceMeters int32    `json:"distanceMeters"`
	Description    string   `json:"description"`
	Polyline       Polyline `json:"polyline"`
	Legs           []Leg    `json:"legs"`
}

// Leg is the part of a route between two waypoints.
type Leg struct {
	Steps []Step `json:"steps"`
}

// Step is a single navigation step as returned by the API.
type Step struct {
	DistanceMeters        int32                 `json:"distanceMeters"`
	StaticDuration        string                `json:"staticDuration"`
	Polyline              Polyline              `json:"polyline"`
	StartLocation         Location              `json:"startLocation"`
	EndLocation           Location              `json:"endLocation"`
	NavigationInstruction NavigationInstruction `json:"navigationInstruction"`
}

// NavigationInstruction carries the maneuver and its human-readable text.
type NavigationInstruction struct {
	Maneuver     string `json:"maneuver"`
	Instructions string `json:"instructions"`
}

// Polyline represents an encoded polyline
type Polyline struct {
	EncodedPolyline string `json:"encodedPolyline"`
}

// Location wraps a lat/lng pair.
type Location struct {
	LatLng LatLng `json:"latLng"`
}

func (l Location) point() geo.Point {
	return geo.Point{Latitude: l.LatLng.Latitude, Longitude: l.LatLng.Longitude}
}

// LatLng is the API's coordinate representation.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
