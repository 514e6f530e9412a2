// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// mapview serves an interactive map widget model to browser and native
// views.
//
// It loads the YAML configuration (--config or MAPVIEW_CONFIG), logs in
// to the configured portal, and creates a map with the configured
// initial state. Browser views connect over websocket at
// /comm/{comm_id}; native views connect to the unix stream socket.
//
// A JSONC command script (--script) drives the map before serving:
// drawing graphics, adding layers, switching basemaps. With --simulate
// a headless reference view is attached, so a script can be run and
// its effect inspected (--dump-state) without a browser.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/mapview/comm"
	"github.com/bureau-foundation/mapview/lib/config"
	"github.com/bureau-foundation/mapview/lib/version"
	"github.com/bureau-foundation/mapview/mapview"
	"github.com/bureau-foundation/mapview/portal"
	"github.com/bureau-foundation/mapview/viewsim"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the parsed command line.
type options struct {
	configPath string
	scriptPath string
	simulate   bool
	dumpState  bool
	serve      bool
	verbose    bool
}

func run() error {
	var opts options
	var showVersion bool

	flagSet := pflag.NewFlagSet("mapview", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "path to mapview.yaml (default: $MAPVIEW_CONFIG, or built-in defaults)")
	flagSet.StringVar(&opts.scriptPath, "script", "", "JSONC command script to run against the map")
	flagSet.BoolVar(&opts.simulate, "simulate", false, "attach a headless reference view")
	flagSet.BoolVar(&opts.dumpState, "dump-state", false, "print the synchronized state (and the simulated view) after the script")
	flagSet.BoolVar(&opts.serve, "serve", true, "serve views until interrupted; --serve=false exits after the script")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		if opts.verbose {
			fmt.Printf("mapview %s\n", version.Full())
		} else {
			fmt.Printf("mapview %s\n", version.Info())
		}
		return nil
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(os.Stderr, opts.verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runMap(ctx, cfg, opts, newOutput(os.Stdout), logger)
}

// loadConfig reads the config file named by path, or by MAPVIEW_CONFIG
// when path is empty. With neither, the defaults apply.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}
	if os.Getenv("MAPVIEW_CONFIG") != "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}
	return config.Default(), nil
}

// newLogger logs text to a terminal and JSON otherwise.
func newLogger(file *os.File, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handlerOptions := &slog.HandlerOptions{Level: level}
	if term.IsTerminal(int(file.Fd())) {
		return slog.New(slog.NewTextHandler(file, handlerOptions))
	}
	return slog.New(slog.NewJSONHandler(file, handlerOptions))
}

func runMap(ctx context.Context, cfg *config.Config, opts options, out *output, logger *slog.Logger) error {
	session, err := openSession(ctx, cfg.Portal, logger)
	if err != nil {
		return err
	}
	if session != nil {
		defer session.Close()
	}

	hub := comm.NewHub(logger)
	mapOptions := mapview.Options{
		Sink:           hub.Sink(),
		Logger:         logger,
		Reporter:       out,
		GalleryQuery:   cfg.Portal.GalleryQuery,
		GalleryOrgOnly: !cfg.Portal.OutsideOrg,
	}
	if session != nil {
		mapOptions.Session = session
		mapOptions.Gallery = session
	}
	if cfg.Map.Item != "" {
		if session == nil {
			return fmt.Errorf("map.item %s requires portal.url", cfg.Map.Item)
		}
		webMap, err := session.WebMap(ctx, cfg.Map.Item)
		if err != nil {
			return fmt.Errorf("loading web map: %w", err)
		}
		mapOptions.Item = webMap
	}

	m, err := mapview.New(mapOptions)
	if err != nil {
		return err
	}
	defer m.Close()
	hub.Register(m.CommID(), m)
	defer hub.Unregister(m.CommID())

	if err := applyInitialState(ctx, m, cfg.Map); err != nil {
		return err
	}

	m.OnClick(mapview.NewCallback("print-click", func(_ *mapview.Map, payload any) error {
		out.Event(mapview.EventMouseClick, payload)
		return nil
	}))
	m.OnDrawEnd(mapview.NewCallback("print-draw-end", func(_ *mapview.Map, payload any) error {
		out.Event(mapview.EventDrawEnd, payload)
		return nil
	}))

	var view *viewsim.View
	if opts.simulate {
		view, err = viewsim.New(viewsim.Config{
			CommID:  m.CommID(),
			Deliver: hub.Deliver,
			Logger:  logger,
		})
		if err != nil {
			return err
		}
		if err := hub.Attach(m.CommID(), view, ""); err != nil {
			return fmt.Errorf("attaching simulated view: %w", err)
		}
		defer hub.Detach(m.CommID(), view)
	}

	if opts.scriptPath != "" {
		script, err := loadScript(opts.scriptPath)
		if err != nil {
			return err
		}
		runner := &scriptRunner{m: m, view: view, logger: logger}
		if session != nil {
			runner.services = session
		}
		if err := runner.Run(ctx, script); err != nil {
			return err
		}
		logger.Info("script complete", "path", opts.scriptPath, "steps", len(script))
	}

	if opts.dumpState {
		if err := out.Dump("state", m.State()); err != nil {
			return err
		}
		if view != nil {
			rendered, err := view.Render()
			if err != nil {
				return err
			}
			if err := out.Dump("view", rendered); err != nil {
				return err
			}
		}
	}

	if !opts.serve {
		return nil
	}
	return serveViews(ctx, cfg, hub, m.CommID(), logger)
}

// openSession logs in to the configured portal. It returns nil without
// a portal URL and an anonymous session without a username.
func openSession(ctx context.Context, portalConfig config.PortalConfig, logger *slog.Logger) (*portal.Session, error) {
	if portalConfig.URL == "" {
		return nil, nil
	}
	timeout, err := portalConfig.RequestTimeout()
	if err != nil {
		return nil, err
	}
	client, err := portal.NewClient(portal.ClientConfig{
		URL:     portalConfig.URL,
		Timeout: timeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	if portalConfig.Username == "" {
		logger.Info("using anonymous portal session", "portal", client.BaseURL())
		return client.Anonymous(), nil
	}

	password, err := readPassword(portalConfig)
	if err != nil {
		return nil, err
	}
	defer password.Close()

	session, err := client.Login(ctx, portalConfig.Username, password)
	if err != nil {
		return nil, fmt.Errorf("logging in to %s: %w", client.BaseURL(), err)
	}
	logger.Info("logged in to portal", "portal", client.BaseURL(), "username", portalConfig.Username)
	return session, nil
}

// applyInitialState sets the configured starting view.
func applyInitialState(ctx context.Context, m *mapview.Map, mapConfig config.MapConfig) error {
	if mapConfig.Basemap != "" && mapConfig.Basemap != m.Basemap() {
		if _, err := m.SetBasemap(ctx, mapConfig.Basemap); err != nil {
			return err
		}
	}
	if err := m.SetZoom(mapConfig.Zoom); err != nil {
		return err
	}
	if len(mapConfig.Center) == 2 {
		if err := m.SetCenter(mapConfig.Center[0], mapConfig.Center[1]); err != nil {
			return err
		}
	}
	if mapConfig.Width != "" {
		if err := m.SetWidth(mapConfig.Width); err != nil {
			return err
		}
	}
	return nil
}
