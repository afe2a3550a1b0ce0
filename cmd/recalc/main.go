// Command recalc recomputes the formulas of .xlsx workbooks.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vogtb/go-spreadsheet/packages/recalc"
	"github.com/vogtb/go-spreadsheet/packages/recalc/xlsx"
)

var (
	configPath string
	logLevel   string
	maxRows    int

	outPath   string
	watchFile bool
	quiet     bool
)

var rootCmd = &cobra.Command{
	Use:   "recalc",
	Short: "Recompute spreadsheet formulas",
	Long: `Recompute every formula of an .xlsx workbook.

Commands:
  calc   Recompute all formulas and print (or save) the results.
  lint   Report unknown functions and references to missing sheets.
  deps   Recompute and print which cells every formula read.

Examples:
  recalc calc model.xlsx
  recalc calc model.xlsx --out values.xlsx
  recalc calc model.xlsx --watch
  recalc --config recalc.yaml lint model.xlsx`,
	SilenceUsage: true,
}

var calcCmd = &cobra.Command{
	Use:   "calc FILE",
	Short: "Recompute all formulas of a workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		engine, err := cfg.Engine(logger)
		if err != nil {
			return err
		}
		run := func() error {
			return calcFile(cmd.OutOrStdout(), engine, args[0])
		}
		if err := run(); err != nil {
			if !watchFile {
				return err
			}
			logger.Error().Err(err).Msg("recalculation failed")
		}
		if !watchFile {
			return nil
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return watch(ctx, args[0], logger, run)
	},
}

var lintCmd = &cobra.Command{
	Use:   "lint FILE",
	Short: "Check formulas for unknown functions and missing sheets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		registry, err := cfg.Registry()
		if err != nil {
			return err
		}
		wb, err := xlsx.Open(args[0])
		if err != nil {
			return err
		}
		issues := recalc.Lint(wb, registry)
		for _, issue := range issues {
			fmt.Fprintln(cmd.OutOrStdout(), issue.String())
		}
		if len(issues) > 0 {
			return fmt.Errorf("%d issue(s) found", len(issues))
		}
		if !quiet {
			fmt.Fprintln(cmd.OutOrStdout(), "No issues")
		}
		return nil
	},
}

var depsCmd = &cobra.Command{
	Use:   "deps FILE [CELL]",
	Short: "Print the cells each formula read during recomputation",
	Long: `Recompute a workbook and print, for every formula cell, the cells it read.
With CELL (Sheet!A1) only that cell and the formulas depending on it are printed.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		engine, err := cfg.Engine(logger)
		if err != nil {
			return err
		}
		wb, err := xlsx.Open(args[0])
		if err != nil {
			return err
		}
		if err := engine.Recalculate(wb); err != nil {
			return err
		}
		graph := engine.Dependencies()
		out := cmd.OutOrStdout()

		if len(args) == 2 {
			key := args[1]
			if _, exists := graph.GetNode(key); !exists {
				return fmt.Errorf("%s is not in the recorded dependencies", key)
			}
			fmt.Fprintf(out, "%s reads: %s\n", key, strings.Join(graph.GetDirectPrecedents(key), ", "))
			fmt.Fprintf(out, "%s is read by: %s\n", key, strings.Join(graph.GetAllDependents(key), ", "))
			return nil
		}
		for _, key := range graph.Keys() {
			precedents := graph.GetDirectPrecedents(key)
			if len(precedents) == 0 {
				continue
			}
			fmt.Fprintf(out, "%s: %s\n", key, strings.Join(precedents, ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config")
	rootCmd.PersistentFlags().IntVar(&maxRows, "max-rows", 0, "Row bound of open-ended ranges on sheets without a dimension; overrides the config")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only print results and problems")

	calcCmd.Flags().StringVarP(&outPath, "out", "o", "", "Save a copy of the workbook with formulas replaced by their values")
	calcCmd.Flags().BoolVarP(&watchFile, "watch", "w", false, "Recompute every time the file changes")

	rootCmd.AddCommand(calcCmd, lintCmd, depsCmd)
}

// setup loads the config, applies flag overrides and builds the logger
func setup(stderr io.Writer) (*Config, zerolog.Logger, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if quiet {
		cfg.LogLevel = "warn"
	}
	if maxRows > 0 {
		cfg.MaxRows = maxRows
	}
	logger, err := cfg.Logger(stderr)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

// calcFile loads, recomputes and reports one workbook
func calcFile(out io.Writer, engine *recalc.Engine, path string) error {
	wb, err := xlsx.Open(path)
	if err != nil {
		return err
	}
	if err := engine.Recalculate(wb); err != nil {
		return err
	}

	for _, sheetName := range wb.SheetNames {
		sheet := wb.Sheets[sheetName]
		for _, address := range sheet.Addresses() {
			cell := sheet.Cells[address]
			if !cell.HasFormula() {
				continue
			}
			fmt.Fprintf(out, "%s\t%s\t%s\n", recalc.QualifiedAddress(sheetName, address), cell.Type, display(cell))
		}
	}

	if outPath == "" {
		return nil
	}
	written, err := xlsx.Save(path, outPath, wb)
	if err != nil {
		return err
	}
	if !quiet {
		fmt.Fprintf(out, "saved %d value(s) to %s\n", written, outPath)
	}
	return nil
}

func display(cell *recalc.Cell) string {
	if cell.Display != "" {
		return cell.Display
	}
	switch v := cell.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprint(v)
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
