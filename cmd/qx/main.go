package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/quincelang/quince/pkg/quince/errors"
	"github.com/quincelang/quince/pkg/quince/expr"
	"github.com/quincelang/quince/pkg/quince/repl"
)

// Version is set at build time via -ldflags
var Version = "0.1.0-dev"

var (
	evalFlag    = flag.String("e", "", "Evaluate an expression and exit")
	versionFlag = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("qx version %s\n", Version)
		return
	}

	if *evalFlag != "" {
		parsed, err := expr.ParseExpr(*evalFlag)
		if err != nil {
			fmt.Fprintln(os.Stderr, errors.AsQuince(err).PrettyString())
			os.Exit(1)
		}
		v, err := expr.Eval(parsed, expr.MapResolver{})
		if err != nil {
			fmt.Fprintln(os.Stderr, errors.AsQuince(err).PrettyString())
			os.Exit(1)
		}
		fmt.Println(v.Inspect())
		return
	}

	repl.Start(os.Stdout, Version)
}
