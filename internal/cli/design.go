package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/adgarrio/statformula/formula"
)

var (
	designNAAction string
	designHead     int
)

var designCmd = &cobra.Command{
	Use:   "design <formula> <data-file>",
	Short: "Print the design matrix of a formula",
	Long: `Evaluate a formula against a data file and print the column names,
the columns each term occupies and the first rows of each matrix.

Examples:
  smformula design "y ~ x1 + C(g)" data.csv
  smformula design "~ log(x1) * x2" data.xlsx --engine formulaic --head 10`,
	Args: cobra.ExactArgs(2),
	RunE: runDesign,
}

func init() {
	rootCmd.AddCommand(designCmd)
	designCmd.Flags().StringVar(&designNAAction, "na-action", "", "Missing-value handling: drop, raise or ignore (formulaic only)")
	designCmd.Flags().IntVar(&designHead, "head", 5, "Number of rows to print")
}

func runDesign(cmd *cobra.Command, args []string) error {
	m, err := newManager("", "")
	if err != nil {
		return err
	}
	data, err := loadData(args[1], "")
	if err != nil {
		return err
	}
	na, err := naAction(m, designNAAction)
	if err != nil {
		return err
	}

	lhs, rhs, err := m.GetArrays(args[0], data, formula.WithNAAction(na))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	desc, err := m.GetDescription(rhs)
	if err != nil {
		return err
	}
	n, k := rhs.Dims()
	fmt.Fprintf(out, "engine: %s\nterms: %s\nrows: %d of %d\n", m.Engine(), desc, n, data.Len())

	slices, err := m.GetTermNameSlices(rhs)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "\n=== Terms ===")
	for _, s := range slices {
		fmt.Fprintf(out, "%-24s columns [%d, %d)\n", s.Name, s.Start, s.Stop)
	}

	if lhs != nil {
		printHead(cmd, "Response", lhs)
	}
	printHead(cmd, fmt.Sprintf("Design (%d columns)", k), rhs)
	return nil
}

func printHead(cmd *cobra.Command, title string, m *formula.Matrix) {
	out := cmd.OutOrStdout()
	r, c := m.Dims()
	rows := designHead
	if rows <= 0 || rows > r {
		rows = r
	}
	fmt.Fprintf(out, "\n=== %s ===\n", title)
	for j, name := range m.Columns {
		fmt.Fprintf(out, "  [%d] %s\n", j, name)
	}
	fmt.Fprintf(out, "%v\n", mat.Formatted(m.Slice(0, rows, 0, c), mat.Prefix(" ")))
}
