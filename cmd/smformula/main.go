// smformula builds design matrices and fits linear models from formulas.
package main

import (
	"os"

	"github.com/adgarrio/statformula/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
