package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("izodcore v%s\n", version)
	fmt.Println("Pocket music player core: touch wheel, buttons, audio pipeline")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  izodcore [OPTIONS]")
	fmt.Println("  izodcore ctl [OPTIONS] COMMAND [ARG]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Daemon that reads the capacitive touch wheel and buttons, drives the")
	fmt.Println("  audio pipeline, and exposes state over a Unix socket and WebSocket.")
	fmt.Println("  With -simulate (the default without hardware) the electrode front end,")
	fmt.Println("  buttons, and audio device are replaced with synthetic ones.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (optional; built-in defaults otherwise)")
	fmt.Println()
	fmt.Println("  -simulate")
	fmt.Println("        Use simulated front ends instead of hardware (default true)")
	fmt.Println()
	fmt.Println("  -input-device string")
	fmt.Println("        Linux input event device for buttons (e.g. /dev/input/event3)")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default \"/tmp/izodcore.sock\")\n")
	fmt.Println()
	fmt.Println("  -ws-listen string")
	fmt.Printf("        State WebSocket listen address (default \"127.0.0.1:3002\")\n")
	fmt.Println()
	fmt.Println("  -volume int")
	fmt.Printf("        Initial volume in percent (default %d)\n", defaultVolume)
	fmt.Println()
	fmt.Println("  -sensitivity string")
	fmt.Println("        Touch sensitivity: 1-5 or Very Low..Very High (default \"Medium\")")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("SUBCOMMANDS:")
	fmt.Println("  ctl")
	fmt.Println("        Send a command to a running core over the IPC socket")
	fmt.Println("        Commands: play pause toggle stop next prev status calibrate")
	fmt.Println("                  seek SECONDS  volume PERCENT  sensitivity LEVEL")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start in simulation with defaults")
	fmt.Println("  izodcore")
	fmt.Println()
	fmt.Println("  # Hardware buttons and audio device")
	fmt.Println("  izodcore -simulate=false -input-device /dev/input/event3")
	fmt.Println()
	fmt.Println("  # Control a running core")
	fmt.Println("  izodcore ctl toggle")
	fmt.Println("  izodcore ctl volume 70")
	fmt.Println("  izodcore ctl sensitivity High")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Hardware button input requires read access to the input device")
	fmt.Println("    (run as root or add user to 'input' group)")
	fmt.Println("  - The sensitivity profile and calibration baseline persist across runs")
	fmt.Println()
}

func main() {
	// Check for subcommand mode first
	if len(os.Args) > 1 && os.Args[1] == "ctl" {
		runCtlSubcommand()
		return
	}

	// Check for version/help flags early
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath    = flag.String("config", "", "Path to YAML config file")
		simulate      = flag.Bool("simulate", true, "Use simulated front ends instead of hardware")
		inputDevice   = flag.String("input-device", "", "Linux input event device for buttons")
		ipcSocketPath = flag.String("ipc-socket", "", "Unix domain socket path for IPC")
		wsListen      = flag.String("ws-listen", "", "State WebSocket listen address")
		volume        = flag.Int("volume", -1, "Initial volume in percent (0-100)")
		sensitivity   = flag.String("sensitivity", "", "Touch sensitivity: 1-5 or Very Low..Very High")
		logLevelStr   = flag.String("log-level", "", "Log level: error, warn, info, debug")
		showVersion   = flag.Bool("version", false, "Print version and exit")
		showHelp      = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	// Config file is the primary surface; flags override on top.
	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	overrides := FlagOverrides{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "simulate":
			overrides.Simulate = simulate
		case "input-device":
			overrides.InputDevice = inputDevice
		case "ipc-socket":
			overrides.IPCSocketPath = ipcSocketPath
		case "ws-listen":
			overrides.WSListen = wsListen
		case "volume":
			overrides.Volume = volume
		case "sensitivity":
			overrides.Sensitivity = sensitivity
		case "log-level":
			overrides.LogLevel = logLevelStr
		}
	})
	overrides.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logger, err := setupLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("core exited", "error", err)
		os.Exit(1)
	}
}

// run wires every execution context together and supervises them until a
// shutdown signal arrives or one of them fails.
func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Sensitivity profile and calibration baseline.
	store := NewProfileStore(cfg.Profile.Path, logger)
	profile, baseline, found := store.Load()
	if !found {
		level, err := ParseSensitivityLevel(cfg.Wheel.Sensitivity)
		if err != nil {
			return err
		}
		if err := profile.SetLevel(level); err != nil {
			return err
		}
	}

	bus := NewInputBus(cfg.Bus.Capacity, logger)

	// Sampling context: estimator, calibrator, profile ownership.
	est := newWheelEstimator(cfg.ToWheelConfig(), profile, baseline, logger)
	cal := newCalibrator(cfg.Wheel.SampleHz, logger)

	// The capacitive front end has no host-side driver; the synthetic
	// sampler stands in on hardware builds too until the wheel is bridged.
	sampler := newSimSampler(uint64(time.Now().UnixNano()))
	sampling := newSamplingLoop(sampler, est, cal, bus, store,
		cfg.Wheel.SampleHz, msToDuration(cfg.Calibration.IntervalMS), logger)

	// Audio context.
	tracks := make([]Track, 0, len(cfg.Tracks))
	for _, t := range cfg.Tracks {
		tracks = append(tracks, NewToneTrack(t.Name, t.ToneHz,
			time.Duration(t.DurationS*float64(time.Second)),
			cfg.Audio.SampleRate, cfg.Audio.Channels))
	}
	var output AudioOutput
	if cfg.Simulate {
		output = newSimOutput(cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.FrameSamples)
	} else {
		output = newOtoOutput(cfg.Audio.SampleRate, cfg.Audio.Channels, logger)
	}
	audio := newAudioPipeline(cfg.ToAudioConfig(), tracks, output, bus, logger)

	// Button input.
	deb := newButtonDebouncer(bus, msToDuration(cfg.Buttons.DebounceMS))
	var buttons ButtonSource
	if cfg.Simulate {
		buttons = simButtonSource{}
	} else {
		src, err := newHardwareButtonSource(cfg.Buttons.Devices, deb, logger)
		if err != nil {
			return err
		}
		buttons = src
	}

	// Aggregation context.
	dm := newDaemon(bus, audio, sampling, nil, logger)

	g, ctx := errgroup.WithContext(ctx)

	// State WebSocket.
	if cfg.StateWS.Enabled {
		server := NewServer(logger, dm.Snapshot, ServerConfig{})
		dm.hub = server.Hub()

		mux := http.NewServeMux()
		server.Register(mux, cfg.StateWS.Path)
		httpServer := &http.Server{Addr: cfg.StateWS.Listen, Handler: mux}

		g.Go(func() error {
			server.Hub().Run(ctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(ctx, server.Hub(), bus.Observe(128), logger)
			return nil
		})
		g.Go(func() error {
			logger.Info("state ws listening", "addr", cfg.StateWS.Listen, "path", cfg.StateWS.Path)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutCtx)
		})
		g.Go(func() error {
			return dm.RunSnapshots(ctx)
		})
	}

	ipc := newIPCServer(cfg.IPC.SocketPath, audio, sampling, dm, logger)

	g.Go(func() error { return sampling.Run(ctx) })
	g.Go(func() error { return audio.Run(ctx) })
	g.Go(func() error { return dm.Run(ctx) })
	g.Go(func() error { return ipc.Run(ctx) })
	g.Go(func() error { return buttons.Run(ctx) })

	if cfg.Calibration.OnStart {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if _, err := sampling.Calibrate(cctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("startup calibration failed", "error", err)
			}
			return nil
		})
	}

	logger.Info("izodcore started",
		"version", version,
		"simulate", cfg.Simulate,
		"ipc", cfg.IPC.SocketPath,
		"tracks", len(tracks))

	return g.Wait()
}

// ============================================================================
// ctl subcommand
// ============================================================================

func printCtlUsage() {
	fmt.Printf("izodcore ctl v%s\n", version)
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  izodcore ctl [OPTIONS] COMMAND [ARG]")
	fmt.Println()
	fmt.Println("COMMANDS:")
	fmt.Println("  play | pause | toggle | stop | next | prev")
	fmt.Println("  seek SECONDS        Seek within the current track")
	fmt.Println("  volume PERCENT      Set volume (0-100)")
	fmt.Println("  sensitivity LEVEL   Set touch sensitivity (1-5 or Very Low..Very High)")
	fmt.Println("  calibrate           Start touch calibration")
	fmt.Println("  status              Print the full state snapshot")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -ipc-socket string")
	fmt.Println("        Unix domain socket path for IPC (default \"/tmp/izodcore.sock\")")
	fmt.Println()
}

// runCtlSubcommand sends one command over the IPC socket and prints the
// response payload, if any.
func runCtlSubcommand() {
	fs := flag.NewFlagSet("ctl", flag.ExitOnError)
	ipcSocketPath := fs.String("ipc-socket", "/tmp/izodcore.sock", "Unix domain socket path for IPC")
	showHelp := fs.Bool("help", false, "Print help message")
	fs.Usage = printCtlUsage

	fs.Parse(os.Args[2:])
	if *showHelp || fs.NArg() == 0 {
		printCtlUsage()
		if fs.NArg() == 0 && !*showHelp {
			os.Exit(2)
		}
		return
	}

	cmd := fs.Arg(0)
	arg := fs.Arg(1)

	fail := func(err error) {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	var (
		cmdType string
		data    any
	)
	switch cmd {
	case "play", "pause", "stop", "next", "prev", "calibrate", "status":
		cmdType = cmd
	case "toggle":
		cmdType = "toggle_play"
	case "seek":
		secs, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			fail(fmt.Errorf("seek needs a position in seconds: %w", err))
		}
		cmdType = "seek"
		data = ipcSeekData{PositionS: secs}
	case "volume":
		pct, err := strconv.Atoi(arg)
		if err != nil {
			fail(fmt.Errorf("volume needs a percent value: %w", err))
		}
		cmdType = "set_volume"
		data = ipcVolumeData{Volume: pct}
	case "sensitivity":
		if arg == "" {
			fail(errors.New("sensitivity needs a level (1-5 or Very Low..Very High)"))
		}
		cmdType = "set_sensitivity"
		data = ipcSensitivityData{Level: arg}
	default:
		fail(fmt.Errorf("unknown command: %q", cmd))
	}

	resp, err := SendIPCCommand(*ipcSocketPath, cmdType, data)
	if err != nil {
		fail(err)
	}
	if len(resp) > 0 {
		fmt.Println(string(resp))
	} else {
		fmt.Println("ok")
	}
}
