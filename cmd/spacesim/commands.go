package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/spacesim/internal/apsides"
	"github.com/star/spacesim/internal/mjd"
	"github.com/star/spacesim/internal/postprocess"
	"github.com/star/spacesim/internal/propagation"
	"github.com/star/spacesim/internal/scene"
)

// newCheckCmd validates the scene, star catalog, and postprocess settings
// without running anything.
func newCheckCmd(logger *slog.Logger, flags *sceneFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the scene and settings files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := loadScene(flags.scene, logger)
			if err != nil {
				return err
			}
			stars, err := loadStars(flags.stars, logger)
			if err != nil {
				return err
			}
			post, err := loadPostprocess(flags.postprocess)
			if err != nil {
				return err
			}
			settings, _ := post.Load()
			cfg := loadSimConfig(logger)
			plan, err := postprocess.BuildPlan(settings, cfg.Width, cfg.Height, cfg.HDR)
			if err == nil {
				err = plan.Validate(cfg.MaxTextureDimension)
			}
			if err != nil {
				return fmt.Errorf("postprocess plan for %dx%d: %w", cfg.Width, cfg.Height, err)
			}
			placed := 0
			if stars != nil {
				placed = stars.Len()
			}
			return writeCheckReport(cmd.OutOrStdout(), h, placed, len(plan.Passes))
		},
	}
}

func writeCheckReport(w io.Writer, h *scene.Hierarchy, stars, passes int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "bodies\t%d\n", h.Len())
	fmt.Fprintf(tw, "levels\t%d\n", len(h.Levels))
	counts := h.CountByKind()
	for _, k := range []scene.MotionKind{scene.Stationary, scene.Kepler, scene.SGP4} {
		fmt.Fprintf(tw, "  %s\t%d\n", k, counts[k])
	}
	fmt.Fprintf(tw, "camera target\t%s\n", h.Bodies[h.Camera.TargetIndex].Name)
	fmt.Fprintf(tw, "stars\t%d\n", stars)
	fmt.Fprintf(tw, "postprocess passes\t%d\n", passes)
	return tw.Flush()
}

// newDumpCmd ticks a session and prints the resulting frame as JSON.
func newDumpCmd(logger *slog.Logger, flags *sceneFlags) *cobra.Command {
	var (
		at    float64
		ticks int
		dt    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print a simulated frame as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadSimConfig(logger)
			if at != 0 {
				cfg.StartMJD = at
			}
			s, _, err := newSession(cmd.Context(), logger, flags, cfg)
			if err != nil {
				return err
			}
			for range ticks {
				if err := s.Tick(cmd.Context(), dt); err != nil {
					return err
				}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(s.Latest())
		},
	}
	cmd.Flags().Float64Var(&at, "mjd", 0, "simulation start (MJD, default now)")
	cmd.Flags().IntVar(&ticks, "ticks", 0, "ticks to run after initialization")
	cmd.Flags().DurationVar(&dt, "dt", time.Second, "wall time per tick")
	return cmd
}

// newOrbitCmd prints a body's track or its apsides.
func newOrbitCmd(logger *slog.Logger, flags *sceneFlags) *cobra.Command {
	var (
		start    float64
		step     time.Duration
		n        int
		apses    bool
		horizon  time.Duration
		maxEvent int
	)
	cmd := &cobra.Command{
		Use:   "orbit <body>",
		Short: "Print a body's positions relative to the scene root, or its apsides",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := loadScene(flags.scene, logger)
			if err != nil {
				return err
			}
			i, ok := h.Lookup(args[0])
			if !ok {
				return fmt.Errorf("no body named %q", args[0])
			}
			if start == 0 {
				start = mjd.FromTime(time.Now())
			}
			prop := propagation.NewPropagator(h, propagation.Config{}, logger)
			out := cmd.OutOrStdout()

			if apses {
				res := apsides.Predict(cmd.Context(), apsides.Request{
					Propagator: prop,
					Bodies:     []int{i},
					StartMJD:   start,
					Horizon:    horizon,
					MaxEvents:  maxEvent,
				})[0]
				if res.Error != "" {
					return fmt.Errorf("%s: %s", res.Body, res.Error)
				}
				return writeApsides(out, res)
			}

			points, err := prop.Track(i, start, step, n)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "mjd\tx\ty\tz\tdistance")
			for k, p := range points {
				t := start + float64(k)*step.Seconds()/mjd.SecondsPerDay
				fmt.Fprintf(tw, "%.6f\t%.0f\t%.0f\t%.0f\t%.0f\n", t, p[0], p[1], p[2], p.Len())
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Float64Var(&start, "start", 0, "first sample (MJD, default now)")
	cmd.Flags().DurationVar(&step, "step", time.Hour, "time between samples")
	cmd.Flags().IntVar(&n, "n", 24, "number of samples")
	cmd.Flags().BoolVar(&apses, "apsides", false, "print periapsis and apoapsis passages instead")
	cmd.Flags().DurationVar(&horizon, "horizon", 365*24*time.Hour, "apsides search window")
	cmd.Flags().IntVar(&maxEvent, "max", apsides.DefaultMaxEvents, "maximum apsides to print")
	return cmd
}

func writeApsides(w io.Writer, res apsides.BodyEvents) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s around %s (%s)\n", res.Body, res.Parent, res.Motion)
	fmt.Fprintln(tw, "kind\ttime\tdistance_km\tspeed_km_s")
	for _, e := range res.Events {
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%.3f\n",
			e.Kind, e.Time.UTC().Format(time.RFC3339), e.Distance/1000, e.Speed/1000)
	}
	if len(res.Events) == 0 {
		fmt.Fprintln(tw, "none in window")
	}
	return tw.Flush()
}
