package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

var constraintNames string

var constraintsCmd = &cobra.Command{
	Use:   "constraints <constraint>...",
	Short: "Parse linear constraints into R and q",
	Long: `Parse one or more constraints over named variables into the system
R b = q and print both.

Examples:
  smformula constraints "a + b = 1" --names a,b,c
  smformula constraints "a = b = 0" "c = 2" --names a,b,c --engine formulaic`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConstraints,
}

func init() {
	rootCmd.AddCommand(constraintsCmd)
	constraintsCmd.Flags().StringVar(&constraintNames, "names", "", "Comma-separated variable names (required)")
	_ = constraintsCmd.MarkFlagRequired("names")
}

func runConstraints(cmd *cobra.Command, args []string) error {
	m, err := newManager("", "")
	if err != nil {
		return err
	}
	names := strings.Split(constraintNames, ",")
	for i := range names {
		names[i] = strings.TrimSpace(names[i])
	}

	var spec any = args[0]
	if len(args) > 1 {
		spec = args
	}
	lc, err := m.GetLinearConstraints(spec, names)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "engine: %s\nvariables: %s\n", m.Engine(), strings.Join(lc.VariableNames, ", "))
	fmt.Fprintln(out, "\n=== R ===")
	fmt.Fprintf(out, "%v\n", mat.Formatted(lc.ConstraintMatrix, mat.Prefix(" ")))
	fmt.Fprintln(out, "\n=== q ===")
	fmt.Fprintf(out, "%v\n", mat.Formatted(lc.ConstraintValues, mat.Prefix(" ")))
	return nil
}
