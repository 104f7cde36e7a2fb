package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tasaciones/server/config"
	"tasaciones/server/internal/models"
	"tasaciones/server/internal/sheets"
	"tasaciones/server/internal/store"
)

type options struct {
	sheetURL    string
	csvPath     string
	address     string
	covered     float64
	uncovered   float64
	surfaceType string
	factor      float64
	asJSON      bool
	logLevel    string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "valuate",
		Short: "Price a property from a spreadsheet of comparables.",
		Long: `valuate imports comparables from a shared spreadsheet (or a local CSV export)
and prints the homogenized price per m² statistics and the low, market and
high value of the target property.`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.sheetURL, "sheet", "s", "", "Shared spreadsheet link")
	flags.StringVarP(&opts.csvPath, "csv", "f", "", "Local CSV file with the same columns as the spreadsheet")
	flags.StringVarP(&opts.address, "address", "a", "", "Target address")
	flags.Float64VarP(&opts.covered, "covered", "c", 0, "Target covered surface in m²")
	flags.Float64VarP(&opts.uncovered, "uncovered", "u", 0, "Target uncovered surface in m²")
	flags.StringVarP(&opts.surfaceType, "surface-type", "t", string(models.SurfaceBalcony), "Uncovered surface type (Garden, Patio, Terrace, Balcony, None)")
	flags.Float64Var(&opts.factor, "factor", 0, "Homogenization factor (default: the surface type's factor)")
	flags.BoolVar(&opts.asJSON, "json", false, "Print the full summary as JSON")
	flags.StringVarP(&opts.logLevel, "loglevel", "l", "warn", "Set log level. Available: debug, info, warn, error")
	cmd.MarkFlagsMutuallyExclusive("sheet", "csv")

	return cmd
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

func (o *options) targetPatch() (models.TargetPatch, error) {
	surfaceType, ok := models.ParseSurfaceType(o.surfaceType)
	if !ok {
		return models.TargetPatch{}, fmt.Errorf("%w: %q", models.ErrUnknownSurfaceType, o.surfaceType)
	}

	patch := models.TargetPatch{
		Address:          &o.address,
		CoveredSurface:   &o.covered,
		UncoveredSurface: &o.uncovered,
		SurfaceType:      &surfaceType,
	}
	if o.factor > 0 {
		patch.HomogenizationFactor = &o.factor
	}
	return patch, nil
}

func run(ctx context.Context, opts *options, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.sheetURL == "" && opts.csvPath == "" {
		return errors.New("one of --sheet or --csv is required")
	}

	logger := newLogger(opts.logLevel)

	patch, err := opts.targetPatch()
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	s := store.New(store.Options{
		Sheets: sheets.NewImporter(cfg.Sheets.BaseURL, logger),
		Logger: logger,
	})
	defer s.Close()

	if _, err := s.UpdateTarget(patch); err != nil {
		return err
	}

	if opts.sheetURL != "" {
		if _, err := s.ImportFromSpreadsheet(ctx, opts.sheetURL); err != nil {
			return err
		}
	} else {
		f, err := os.Open(opts.csvPath)
		if err != nil {
			return err
		}
		defer f.Close()

		comparables, err := sheets.Parse(f)
		if err != nil {
			return err
		}
		if _, err := s.ImportComparables(ctx, comparables); err != nil {
			return err
		}
	}

	summary := s.Summary()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	printSummary(out, s.Snapshot().Target, summary)
	return nil
}

func printSummary(out io.Writer, target models.TargetProperty, summary models.Summary) {
	if target.Address != "" {
		fmt.Fprintf(out, "Target:               %s\n", target.Address)
	}
	fmt.Fprintf(out, "Homogenized surface:  %.2f m²\n", summary.TargetHomogenizedSurface)
	fmt.Fprintf(out, "Comparables used:     %d\n", len(summary.Comparables))
	fmt.Fprintln(out, strings.Repeat("-", 40))
	fmt.Fprintf(out, "Price per m² avg:     %.2f\n", summary.Stats.Avg)
	fmt.Fprintf(out, "Price per m² min:     %.2f\n", summary.Stats.Min)
	fmt.Fprintf(out, "Price per m² max:     %.2f\n", summary.Stats.Max)
	fmt.Fprintln(out, strings.Repeat("-", 40))
	fmt.Fprintf(out, "Low:                  %.0f\n", summary.Valuation.Low)
	fmt.Fprintf(out, "Market:               %.0f\n", summary.Valuation.Market)
	fmt.Fprintf(out, "High:                 %.0f\n", summary.Valuation.High)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
