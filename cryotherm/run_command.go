package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/itohio/cryotherm/pkg/calibration"
	"github.com/itohio/cryotherm/pkg/config"
	"github.com/itohio/cryotherm/pkg/daq"
	"github.com/itohio/cryotherm/pkg/report"
	"github.com/itohio/cryotherm/pkg/sample"
	"github.com/itohio/cryotherm/pkg/session"
	"github.com/itohio/cryotherm/pkg/storage"
)

type runOptions struct {
	bias       float64
	channels   string
	sampleRate float64
	scans      config.ScanCount
	window     int
	mock       bool
	port       string
	out        string
	preview    int
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	opts := runOptions{scans: 10}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Acquire, convert and persist one session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			return runSession(cmd, cfg, opts.preview)
		},
	}

	flags := cmd.Flags()
	flags.Float64Var(&opts.bias, "bias", 0, "Peak-to-peak bias amplitude (V)")
	flags.StringVar(&opts.channels, "channels", "", "Channels to scan: \"all\" or a comma separated list")
	flags.Float64Var(&opts.sampleRate, "sample-rate", 0, "Sample rate per channel (Hz)")
	flags.Var(&opts.scans, "scans", "Read cycles to acquire, or \"infinite\"")
	flags.IntVar(&opts.window, "window", 0, "Averaging window in scans (0 = one second)")
	flags.BoolVar(&opts.mock, "mock", false, "Use the simulated device")
	flags.StringVar(&opts.port, "port", "", "Serial port of the acquisition bridge")
	flags.StringVarP(&opts.out, "out", "o", "", "Output directory")
	flags.IntVar(&opts.preview, "preview", report.PreviewPoints, "Averaged windows shown per channel")

	return cmd
}

// apply copies explicitly set flags over the loaded configuration.
func (o *runOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("bias") {
		cfg.Acquisition.Bias = o.bias
	}
	if flags.Changed("channels") {
		cfg.Acquisition.Channels = o.channels
	}
	if flags.Changed("sample-rate") {
		cfg.Acquisition.SampleRate = o.sampleRate
	}
	if flags.Changed("scans") {
		cfg.Acquisition.ScanCount = o.scans
	}
	if flags.Changed("window") {
		cfg.Averaging.WindowSize = o.window
	}
	if flags.Changed("mock") && o.mock {
		cfg.Device.Driver = config.DriverMock
	}
	if flags.Changed("port") {
		cfg.Device.Port = o.port
	}
	if flags.Changed("out") {
		cfg.Output.Dir = o.out
	}
}

func calibrationFormat(cfg config.CalibrationConfig) calibration.Format {
	return calibration.Format{
		TemperatureColumn: cfg.TemperatureColumn,
		ResistanceColumn:  cfg.ResistanceColumn,
		ResistanceScale:   cfg.ResistanceScale,
	}
}

func runSession(cmd *cobra.Command, cfg *config.Config, preview int) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	table, err := calibration.LoadFile(cfg.Calibration.File, calibrationFormat(cfg.Calibration))
	if err != nil {
		return err
	}

	dev, err := daq.New(cfg)
	if err != nil {
		return err
	}

	sess := session.New(cfg, dev, table, session.WithLogger(logger))
	if err := sess.Configure(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	renderer := report.NewRenderer(out)
	renderer.TemperatureScale = cfg.Calibration.TemperatureScale
	fmt.Fprintln(out, renderer.Config(cfg, sess.Channels()))

	runCtx, stop := signal.NotifyContext(commandRootContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, runErr := sess.Run(runCtx)
	if res == nil {
		return runErr
	}

	// Whatever was acquired is persisted, even after a device failure.
	windowSize := res.WindowSize(cfg.Averaging.WindowSize)
	windows, avgErr := res.Averages(windowSize)

	persistErr := persist(cfg, res, windows, windowSize, logger)

	fmt.Fprintln(out, renderer.Stats(res))
	if len(windows) > 0 {
		fmt.Fprint(out, renderer.Windows(res, windows, preview))
	}

	return errors.Join(runErr, avgErr, persistErr)
}

func persist(cfg *config.Config, res *session.Result, windows [][]sample.Window, windowSize int, logger *zap.Logger) error {
	sinks, err := storage.Open(cfg, storage.NewSessionInfo(res, cfg, windowSize), logger)
	if err != nil {
		return fmt.Errorf("open outputs: %w", err)
	}
	err = storage.Persist(sinks, res, windows)
	if closeErr := sinks.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("close outputs: %w", closeErr))
	}
	if err == nil {
		logger.Info("session persisted",
			zap.String("session", res.ID.String()),
			zap.Int("sinks", len(sinks)),
			zap.Int("records", res.Records()))
	}
	return err
}

func commandRootContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
