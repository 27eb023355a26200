// Command spacesim runs the solar system simulation headless and serves its
// frames, render graph, and input feed over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/star/spacesim/assets"
	"github.com/star/spacesim/internal/api"
	"github.com/star/spacesim/internal/cache"
	"github.com/star/spacesim/internal/postprocess"
	"github.com/star/spacesim/internal/scene"
	"github.com/star/spacesim/internal/sim"
	"github.com/star/spacesim/internal/space"
	"github.com/star/spacesim/internal/starfield"
	"github.com/star/spacesim/internal/stream"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: loadLogLevel(),
	}))

	if err := newRootCmd(logger).Execute(); err != nil {
		logger.Error("spacesim failed", "error", err)
		os.Exit(1)
	}
}

// sceneFlags are shared by every command that loads a scene.
type sceneFlags struct {
	scene       string
	stars       string
	postprocess string
}

func (f *sceneFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.scene, "scene", os.Getenv("SPACESIM_SCENE"), "scene YAML file (default: bundled solar system)")
	cmd.PersistentFlags().StringVar(&f.stars, "stars", os.Getenv("SPACESIM_STAR_CATALOG"), "HYG star catalog CSV")
	cmd.PersistentFlags().StringVar(&f.postprocess, "postprocess", os.Getenv("SPACESIM_POSTPROCESS"), "postprocess settings TOML, hot-reloaded by run")
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	flags := &sceneFlags{}
	root := &cobra.Command{
		Use:           "spacesim",
		Short:         "Headless solar system simulation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags.register(root)
	root.AddCommand(
		newRunCmd(logger, flags),
		newCheckCmd(logger, flags),
		newDumpCmd(logger, flags),
		newOrbitCmd(logger, flags),
	)
	return root
}

// loadScene reads the scene file, or the bundled solar system when none is
// given.
func loadScene(path string, logger *slog.Logger) (*scene.Hierarchy, error) {
	if path == "" {
		return scene.Parse(assets.SolarSystem, scene.Options{Logger: logger})
	}
	return scene.Load(path, logger)
}

// loadStars places the visible part of a star catalog on the star grid. An
// empty path disables the starfield.
func loadStars(path string, logger *slog.Logger) (*starfield.Field, error) {
	if path == "" {
		return nil, nil
	}
	stars, err := starfield.LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	grid, err := space.NewGrid(space.Config{
		CellLength:         starfield.DefaultCellLength,
		SwitchingThreshold: starfield.DefaultSwitchingThreshold,
	})
	if err != nil {
		return nil, err
	}
	field, err := starfield.NewField(stars, grid)
	if err != nil {
		return nil, err
	}
	logger.Info("star catalog loaded", "path", path, "rows", len(stars), "placed", field.Len())
	return field, nil
}

// loadPostprocess returns a store seeded from path, or the defaults.
func loadPostprocess(path string) (*postprocess.Store, error) {
	if path == "" {
		return postprocess.NewStore(postprocess.DefaultSettings()), nil
	}
	s, err := postprocess.LoadSettings(path)
	if err != nil {
		return nil, err
	}
	return postprocess.NewStore(s), nil
}

// newSession builds a session from the shared flags and the environment.
func newSession(ctx context.Context, logger *slog.Logger, flags *sceneFlags, cfg sim.Config) (*sim.Session, *postprocess.Store, error) {
	h, err := loadScene(flags.scene, logger)
	if err != nil {
		return nil, nil, err
	}
	stars, err := loadStars(flags.stars, logger)
	if err != nil {
		return nil, nil, err
	}
	post, err := loadPostprocess(flags.postprocess)
	if err != nil {
		return nil, nil, err
	}
	s, err := sim.New(ctx, h, cfg, sim.Options{Post: post, Stars: stars}, logger)
	if err != nil {
		return nil, nil, err
	}
	return s, post, nil
}

func newRunCmd(logger *slog.Logger, flags *sceneFlags) *cobra.Command {
	addr := os.Getenv("SPACESIM_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation and serve it over HTTP",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&addr, "addr", addr, "HTTP listen address")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), logger, flags, addr)
	}
	return cmd
}

func run(parent context.Context, logger *slog.Logger, flags *sceneFlags, addr string) error {
	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		return fmt.Errorf("invalid auth configuration: %w", err)
	}
	simCfg := loadSimConfig(logger)
	interval := loadTickInterval(logger)
	histCfg := loadHistoryConfig(logger)
	streamCfg := loadStreamConfig(logger)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, post, err := newSession(ctx, logger, flags, simCfg)
	if err != nil {
		return err
	}
	if flags.postprocess != "" {
		if err := post.Watch(ctx, flags.postprocess, logger); err != nil {
			logger.Warn("postprocess hot reload disabled", "error", err)
		}
	}

	history := cache.NewHistory(histCfg, logger)
	streamHandler := stream.NewHandler(history, session.Hierarchy(), streamCfg, logger)
	srv := api.NewServer(addr, logger, api.Deps{
		Sim:         session,
		History:     history,
		Stream:      streamHandler,
		Post:        post,
		Auth:        authCfg,
		MaxFrameAge: 10 * interval,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return session.Run(gctx, interval)
	})
	g.Go(func() error {
		history.Start(gctx, session)
		return nil
	})
	g.Go(func() error {
		logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled, "tick_interval", interval)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
