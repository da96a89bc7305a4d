package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/itohio/cryotherm/pkg/calibration"
	"github.com/itohio/cryotherm/pkg/report"
)

func newCalibrationCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "calibration [file] [resistance...]",
		Short: "Inspect a calibration table and look up temperatures",
		Long: "Loads the calibration table (the configured file when none is given) and " +
			"prints the temperature interpolated for each resistance in ohms.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			file := cfg.Calibration.File
			if len(args) > 0 {
				if _, err := strconv.ParseFloat(args[0], 64); err != nil {
					file = args[0]
					args = args[1:]
				}
			}

			resistances := make([]float64, 0, len(args))
			for _, arg := range args {
				r, err := strconv.ParseFloat(arg, 64)
				if err != nil {
					return fmt.Errorf("resistance %q: %w", arg, err)
				}
				resistances = append(resistances, r)
			}

			table, err := calibration.LoadFile(file, calibrationFormat(cfg.Calibration))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			renderer := report.NewRenderer(out)
			renderer.TemperatureScale = cfg.Calibration.TemperatureScale
			fmt.Fprintln(out, renderer.Calibration(table, resistances))
			return nil
		},
	}
}
