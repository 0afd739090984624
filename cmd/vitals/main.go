package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ppiankov/vitals/internal/cli"
	"github.com/ppiankov/vitals/internal/model"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		var cfgErr *model.ConfigurationError
		if errors.As(err, &cfgErr) {
			fmt.Fprintln(os.Stderr, "Set the missing values in the environment, a .env file or ~/.vitals/config.yaml.")
			os.Exit(2)
		}
		os.Exit(1)
	}
}
