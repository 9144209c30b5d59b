// Package cli implements the smformula command line: building design
// matrices, fitting formula models and parsing linear constraints.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	// Both dialects are installed in the CLI.
	_ "github.com/adgarrio/statformula/backend/formulaic"
	_ "github.com/adgarrio/statformula/backend/patsy"
	"github.com/adgarrio/statformula/formula"
	"github.com/adgarrio/statformula/frame"
)

var (
	engineFlag   string
	orderingFlag string
	verboseFlag  bool
	sheetFlag    string
)

var rootCmd = &cobra.Command{
	Use:   "smformula",
	Short: "Build design matrices and fit linear models from formulas",
	Long: `smformula evaluates Wilkinson-style formulas such as "y ~ x1 + C(g)"
against CSV or XLSX data with either the patsy or the formulaic dialect.

The default dialect comes from SM_DEFAULT_FORMULA_ENGINE, else patsy.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verboseFlag {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&engineFlag, "engine", "", "Formula engine: patsy or formulaic")
	rootCmd.PersistentFlags().StringVar(&orderingFlag, "ordering", "", "Term ordering for formulaic: degree, sort or none")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&sheetFlag, "sheet", "", "Sheet to read from XLSX data (default: first sheet)")
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "err", err)
		return 1
	}
	return 0
}

// newManager builds a manager for the engine and ordering flags, falling
// back to the given defaults when a flag is unset.
func newManager(engine, ordering string) (*formula.Manager, error) {
	if engineFlag != "" {
		engine = engineFlag
	}
	if orderingFlag != "" {
		ordering = orderingFlag
	}
	opts, err := formula.NewOptions(formula.Engine(engine))
	if err != nil {
		return nil, err
	}
	if ordering != "" {
		if err := opts.SetOrdering(formula.Ordering(ordering)); err != nil {
			return nil, err
		}
	}
	return formula.NewManager("", formula.WithOptions(opts), formula.WithLogger(slog.Default()))
}

// loadData reads a CSV file, or an XLSX workbook when the extension says
// so.
func loadData(path, sheet string) (*frame.Frame, error) {
	if sheetFlag != "" {
		sheet = sheetFlag
	}
	var fr *frame.Frame
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		fr, err = frame.ReadXLSX(path, sheet)
	default:
		fr, err = frame.ReadCSV(path)
	}
	if err != nil {
		return nil, err
	}
	slog.Debug("data loaded", "path", path, "rows", fr.Len(), "columns", fr.Names())
	return fr, nil
}

func naAction(m *formula.Manager, action string) (any, error) {
	if action == "" {
		return nil, nil
	}
	na, err := m.GetNAAction(action, nil)
	if err != nil {
		return nil, fmt.Errorf("--na-action: %w", err)
	}
	return na, nil
}
