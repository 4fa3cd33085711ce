package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/acwooding/dmp-test-ci/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, cmd.ErrSuiteFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
