package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dpup/wayfinder/internal/lib/geo"
	"github.com/dpup/wayfinder/internal/lib/routing"
)

// EnvPrefix is stripped from environment overrides. Nested keys are separated
// by a double underscore, e.g. WAYFINDER_ROUTING__API_KEY.
const EnvPrefix = "WAYFINDER_"

// Config represents the complete wayfinder configuration
type Config struct {
	Navigation NavigationConfig `yaml:"navigation"`
	Routing    RoutingConfig    `yaml:"routing"`
	Speech     SpeechConfig     `yaml:"speech"`
	Publisher  PublisherConfig  `yaml:"publisher"`
	Journal    JournalConfig    `yaml:"journal"`
	Places     []Place          `yaml:"places"`
}

// NavigationConfig holds guidance thresholds and session limits
type NavigationConfig struct {
	WalkingSpeed             float64       `yaml:"walking_speed"`
	StepCompletionDistance   float64       `yaml:"step_completion_distance"`
	ArrivalDistance          float64       `yaml:"arrival_distance"`
	AdvanceWarningDistance   float64       `yaml:"advance_warning_distance"`
	AdvanceWarningLead       time.Duration `yaml:"advance_warning_lead"`
	ImmediateWarningDistance float64       `yaml:"immediate_warning_distance"`
	CheckpointDistance       float64       `yaml:"checkpoint_distance"`
	CheckpointInterval       float64       `yaml:"checkpoint_interval"`
	NearEdgeDistance         float64       `yaml:"near_edge_distance"`
	OffRouteDistance         float64       `yaml:"off_route_distance"`
	DeviationHistorySize     int           `yaml:"deviation_history_size"`
	DeviationThreshold       int           `yaml:"deviation_threshold"`
	MaxRecalculations        int           `yaml:"max_recalculations"`
	MaxRecalculationFailures int           `yaml:"max_recalculation_failures"`
	HeartbeatInterval        time.Duration `yaml:"heartbeat_interval"`
}

// RoutingConfig holds Google Routes API settings
type RoutingConfig struct {
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	Language        string        `yaml:"language"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// SpeechConfig selects and configures the announcement speaker
type SpeechConfig struct {
	// Engine is "console" or "openai".
	Engine string  `yaml:"engine"`
	Volume float64 `yaml:"volume"`

	OpenAIAPIKey string   `yaml:"openai_api_key"`
	Model        string   `yaml:"model"`
	Voice        string   `yaml:"voice"`
	Speed        float64  `yaml:"speed"`
	Player       []string `yaml:"player"`
}

// PublisherConfig holds the Redis progress stream settings
type PublisherConfig struct {
	RedisURL string        `yaml:"redis_url"`
	Channel  string        `yaml:"channel"`
	TTL      time.Duration `yaml:"ttl"`
}

// JournalConfig holds the session journal settings
type JournalConfig struct {
	Path         string `yaml:"path"`
	HistoryLimit int    `yaml:"history_limit"`
}

// Place is a saved destination that voice commands can refer to by name
type Place struct {
	Name      string   `yaml:"name"`
	Aliases   []string `yaml:"aliases"`
	Latitude  float64  `yaml:"latitude"`
	Longitude float64  `yaml:"longitude"`
}

// Point returns the place's coordinates
func (p Place) Point() geo.Point {
	return geo.Point{Latitude: p.Latitude, Longitude: p.Longitude}
}

// Thresholds converts the navigation settings into follower tuning
func (n NavigationConfig) Thresholds() routing.Thresholds {
	return routing.Thresholds{
		WalkingSpeed:         n.WalkingSpeed,
		StepCompletion:       n.StepCompletionDistance,
		Arrival:              n.ArrivalDistance,
		AdvanceWarning:       n.AdvanceWarningDistance,
		AdvanceWarningLead:   n.AdvanceWarningLead,
		ImmediateWarning:     n.ImmediateWarningDistance,
		Checkpoint:           n.CheckpointDistance,
		CheckpointInterval:   n.CheckpointInterval,
		NearEdge:             n.NearEdgeDistance,
		OffRoute:             n.OffRouteDistance,
		HistorySize:          n.DeviationHistorySize,
		ConsecutiveThreshold: n.DeviationThreshold,
	}
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	t := routing.DefaultThresholds()
	return &Config{
		Navigation: NavigationConfig{
			WalkingSpeed:             t.WalkingSpeed,
			StepCompletionDistance:   t.StepCompletion,
			ArrivalDistance:          t.Arrival,
			AdvanceWarningDistance:   t.AdvanceWarning,
			ImmediateWarningDistance: t.ImmediateWarning,
			CheckpointDistance:       t.Checkpoint,
			CheckpointInterval:       t.CheckpointInterval,
			NearEdgeDistance:         t.NearEdge,
			OffRouteDistance:         t.OffRoute,
			DeviationHistorySize:     t.HistorySize,
			DeviationThreshold:       t.ConsecutiveThreshold,
			MaxRecalculations:        5,
			MaxRecalculationFailures: 3,
			HeartbeatInterval:        30 * time.Second,
		},
		Routing: RoutingConfig{
			Language:        "en-US",
			CacheTTL:        10 * time.Minute,
			CleanupInterval: 5 * time.Minute,
		},
		Speech: SpeechConfig{
			Engine: "console",
			Volume: 0.8,
			Model:  "tts-1",
			Voice:  "alloy",
			Speed:  1.0,
		},
		Publisher: PublisherConfig{
			Channel: "wayfinder:progress",
			TTL:     time.Hour,
		},
		Journal: JournalConfig{
			Path:         "data/wayfinder.db",
			HistoryLimit: 20,
		},
	}
}

// Load reads configuration from an optional YAML file and WAYFINDER_
// environment variables, layered over DefaultConfig.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment config: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// FindPlace looks up a saved place by name or alias, ignoring case.
func (c *Config) FindPlace(name string) (Place, bool) {
	name = strings.TrimSpace(strings.ToLower(name))
	for _, p := range c.Places {
		if strings.ToLower(p.Name) == name {
			return p, true
		}
		for _, alias := range p.Aliases {
			if strings.ToLower(alias) == name {
				return p, true
			}
		}
	}
	return Place{}, false
}
