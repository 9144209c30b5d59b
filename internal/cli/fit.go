package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adgarrio/statformula/regression"
)

var (
	fitModelFile   string
	fitConstraints []string
	fitTerms       bool
	fitNAAction    string
)

var fitCmd = &cobra.Command{
	Use:   "fit [<formula> <data-file>]",
	Short: "Fit a linear model by OLS and run Wald tests",
	Long: `Fit y ~ X by ordinary least squares and print the coefficient table.
Each --constraint is tested with a Wald F test; --terms tests every term
of the design.

The model may instead be read from a TOML file with --model.

Examples:
  smformula fit "y ~ x1 + x2" data.csv --constraint "x1 = x2"
  smformula fit "y ~ x1 + C(g)" data.csv --terms
  smformula fit --model model.toml`,
	Args: func(cmd *cobra.Command, args []string) error {
		if fitModelFile != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: runFit,
}

func init() {
	rootCmd.AddCommand(fitCmd)
	fitCmd.Flags().StringVar(&fitModelFile, "model", "", "TOML model file")
	fitCmd.Flags().StringArrayVar(&fitConstraints, "constraint", nil, "Linear constraint to test (repeatable)")
	fitCmd.Flags().BoolVar(&fitTerms, "terms", false, "Test each term jointly")
	fitCmd.Flags().StringVar(&fitNAAction, "na-action", "", "Missing-value handling: drop, raise or ignore (formulaic only)")
}

func runFit(cmd *cobra.Command, args []string) error {
	mf := &ModelFile{
		Constraints: fitConstraints,
		TestTerms:   fitTerms,
		NAAction:    fitNAAction,
	}
	if fitModelFile != "" {
		var err error
		if mf, err = LoadModelFile(fitModelFile); err != nil {
			return err
		}
		mf.Constraints = append(mf.Constraints, fitConstraints...)
		mf.TestTerms = mf.TestTerms || fitTerms
	} else {
		mf.Formula, mf.Data = args[0], args[1]
	}

	m, err := newManager(mf.Engine, mf.Ordering)
	if err != nil {
		return err
	}
	data, err := loadData(mf.Data, mf.Sheet)
	if err != nil {
		return err
	}
	na, err := naAction(m, mf.NAAction)
	if err != nil {
		return err
	}

	opts := []regression.Option{}
	if na != nil {
		opts = append(opts, regression.WithNAAction(na))
	}
	model, err := regression.FromFormula(m, mf.Formula, data, opts...)
	if err != nil {
		return err
	}
	res, err := model.Fit()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := res.Summary(out); err != nil {
		return err
	}

	if len(mf.Constraints) > 0 {
		fmt.Fprintln(out, "\n=== Wald tests ===")
		for _, c := range mf.Constraints {
			w, err := res.WaldTest(c)
			if err != nil {
				return fmt.Errorf("constraint %q: %w", c, err)
			}
			fmt.Fprintf(out, "%-32s %s\n", c, w)
		}
	}
	if mf.TestTerms {
		tests, err := res.WaldTestTerms(false)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "\n=== Term tests ===")
		for _, t := range tests {
			fmt.Fprintf(out, "%-32s %s\n", t.Term, t.Result)
		}
	}
	return nil
}
