// Package main provides a command-line walk simulator for wayfinder.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dpup/wayfinder/internal/clients/google"
	"github.com/dpup/wayfinder/internal/clients/location"
	"github.com/dpup/wayfinder/internal/clients/speech"
	"github.com/dpup/wayfinder/internal/config"
	"github.com/dpup/wayfinder/internal/lib/announce"
	"github.com/dpup/wayfinder/internal/lib/export"
	"github.com/dpup/wayfinder/internal/lib/routing"
	"github.com/dpup/wayfinder/internal/services"
	"github.com/dpup/wayfinder/internal/store"
)

const (
	defaultInterval = 500 * time.Millisecond
	defaultSpacing  = 5.0

	idlePollInterval = 250 * time.Millisecond
)

var (
	configPath string

	walkFrom      string
	walkTo        string
	walkRouteFile string
	walkInterval  time.Duration
	walkOffset    float64
	walkSpacing   float64
	walkSpeaker   string
	walkJournal   bool

	exportFrom      string
	exportTo        string
	exportRouteFile string
	exportFormat    string
	exportOutput    string

	historyLimit int
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "navsim",
		Short:        "Simulate pedestrian navigation sessions",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to wayfinder.yaml")

	rootCmd.AddCommand(newWalkCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newHistoryCmd())

	return rootCmd
}

func newWalkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "walk",
		Short: "Walk a route with simulated GPS fixes",
		RunE:  runWalkCmd,
	}
	cmd.Flags().StringVar(&walkFrom, "from", "", "origin as lat,lng")
	cmd.Flags().StringVar(&walkTo, "to", "", "destination as lat,lng")
	cmd.Flags().StringVar(&walkRouteFile, "route-file", "", "route JSON to walk instead of planning one")
	cmd.Flags().DurationVar(&walkInterval, "interval", defaultInterval, "delay between simulated fixes")
	cmd.Flags().Float64Var(&walkOffset, "offset", 0, "lateral offset from the route in meters")
	cmd.Flags().Float64Var(&walkSpacing, "spacing", defaultSpacing, "distance between simulated fixes in meters")
	cmd.Flags().StringVar(&walkSpeaker, "speaker", "", "speech engine (console or openai)")
	cmd.Flags().BoolVar(&walkJournal, "journal", false, "record the session in the journal database")
	return cmd
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a route as KML or GeoJSON",
		RunE:  runExportCmd,
	}
	cmd.Flags().StringVar(&exportFrom, "from", "", "origin as lat,lng")
	cmd.Flags().StringVar(&exportTo, "to", "", "destination as lat,lng")
	cmd.Flags().StringVar(&exportRouteFile, "route-file", "", "route JSON to export instead of planning one")
	cmd.Flags().StringVar(&exportFormat, "format", "geojson", "output format (kml or geojson)")
	cmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journalled navigation sessions",
		RunE:  runHistoryCmd,
	}
	cmd.Flags().IntVar(&historyLimit, "limit", 0, "maximum sessions to list")
	return cmd
}

func runWalkCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if walkSpacing <= 0 {
		return errors.New("--spacing must be positive")
	}

	logger := zap.NewNop().Sugar()
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	route, err := loadRoute(ctx, cfg, walkRouteFile, walkFrom, walkTo)
	if err != nil {
		return err
	}

	engine := cfg.Speech.Engine
	if walkSpeaker != "" {
		engine = walkSpeaker
	}
	speaker, err := speech.New(engine, cmd.OutOrStdout(), speech.OpenAIConfig{
		APIKey: cfg.Speech.OpenAIAPIKey,
		Model:  cfg.Speech.Model,
		Voice:  cfg.Speech.Voice,
		Speed:  cfg.Speech.Speed,
		Volume: cfg.Speech.Volume,
	}, speech.CommandPlayer{Command: cfg.Speech.Player}, logger)
	if err != nil {
		return err
	}

	opts := services.NavigationOptions{
		Thresholds:               cfg.Navigation.Thresholds(),
		MaxRecalculations:        cfg.Navigation.MaxRecalculations,
		MaxRecalculationFailures: cfg.Navigation.MaxRecalculationFailures,
		Logger:                   logger,
	}
	if walkJournal {
		journal, err := store.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer func() { _ = journal.Close() }()
		opts.Journal = journal
	}

	// Without a routing key, deviations are announced but never rerouted.
	var provider services.RouteProvider
	if planner := newPlanner(cfg); planner != nil {
		provider = planner
	}

	source := location.NewReplaySource(location.SimulateWalk(*route, walkSpacing, walkOffset), walkInterval)
	nav := services.NewNavigationService(source, announce.NewAnnouncer(speaker, logger), provider, opts)

	updates, unsubscribe := nav.Subscribe()
	defer unsubscribe()

	if _, err := nav.Start(ctx, *route); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	// Snapshots may be dropped when the walk outpaces printing, so poll too.
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = nav.Stop()
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			printSnapshot(out, snap)
			if snap.State == services.StateIdle {
				fmt.Fprintf(out, "Session ended: %s\n", snap.Reason)
				return nil
			}
		case <-ticker.C:
			if snap := nav.Current(); snap.State == services.StateIdle {
				fmt.Fprintf(out, "Session ended: %s\n", snap.Reason)
				return nil
			}
		}
	}
}

func runExportCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	route, err := loadRoute(cmd.Context(), cfg, exportRouteFile, exportFrom, exportTo)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", exportOutput, err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	switch exportFormat {
	case "kml":
		name := "Walking route"
		if route.Summary != "" {
			name = "Walk via " + route.Summary
		}
		return export.WriteRouteKML(out, name, *route)
	case "geojson":
		data, err := export.RouteGeoJSON(*route)
		if err != nil {
			return err
		}
		_, err = out.Write(append(data, '\n'))
		return err
	default:
		return fmt.Errorf("unknown format %q (use kml or geojson)", exportFormat)
	}
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	limit := historyLimit
	if limit <= 0 {
		limit = cfg.Journal.HistoryLimit
	}

	journal, err := store.Open(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer func() { _ = journal.Close() }()

	sessions, err := journal.ListSessions(cmd.Context(), limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions recorded.")
		return nil
	}
	for _, s := range sessions {
		reason := s.EndReason
		if reason == "" {
			reason = "in progress"
		}
		fmt.Fprintf(out, "%s  %s  %4.0fm  %2d steps  %-10s %s\n",
			s.StartedAt.Local().Format("2006-01-02 15:04"), s.ID, s.DistanceMeters, s.Steps, reason, s.Summary)
	}
	return nil
}

// loadRoute reads a route file when given, otherwise plans one between from
// and to with Google Routes.
func loadRoute(ctx context.Context, cfg *config.Config, routeFile, from, to string) (*routing.Route, error) {
	if routeFile != "" {
		data, err := os.ReadFile(routeFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read route file: %w", err)
		}
		var route routing.Route
		if err := json.Unmarshal(data, &route); err != nil {
			return nil, fmt.Errorf("failed to parse route file: %w", err)
		}
		if route.IsEmpty() {
			return nil, services.ErrEmptyRoute
		}
		return &route, nil
	}

	if from == "" || to == "" {
		return nil, errors.New("either --route-file or both --from and --to are required")
	}
	origin, err := location.ParseCoord(from)
	if err != nil {
		return nil, err
	}
	destination, err := location.ParseCoord(to)
	if err != nil {
		return nil, err
	}
	planner := newPlanner(cfg)
	if planner == nil {
		return nil, errors.New("routing.api_key (or WAYFINDER_ROUTING__API_KEY) is required to plan a route")
	}
	return planner.ComputeRoute(ctx, origin, destination)
}

// newPlanner returns a Google Routes planner, or nil when no API key is set.
func newPlanner(cfg *config.Config) *services.RoutePlanner {
	if cfg.Routing.APIKey == "" {
		return nil
	}
	client := google.NewClientWithHTTPDoer(cfg.Routing.APIKey, cfg.Routing.BaseURL, &http.Client{Timeout: 30 * time.Second}).
		WithLanguage(cfg.Routing.Language)
	return services.NewRoutePlanner(client, nil, 0, nil)
}

func printSnapshot(w io.Writer, snap services.Snapshot) {
	if snap.Progress == nil {
		return
	}
	p := snap.Progress
	fmt.Fprintf(w, "[step %d] %5.0fm to turn, %5.0fm remaining",
		p.CurrentStepIndex+1, p.DistanceToCurrentStep, p.TotalDistanceRemaining)
	if snap.Deviation != nil && snap.Deviation.Status != routing.OnRoute {
		fmt.Fprintf(w, " (%s %.0fm)", snap.Deviation.Status, snap.Deviation.Distance)
	}
	fmt.Fprintln(w)
}
