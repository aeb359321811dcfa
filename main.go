package main

import (
	"fmt"
	"os"

	"pdns-migrate/internal/cmd"
)

func main() {
	err := cmd.Execute()
	code := cmd.ExitCode(err)
	if err != nil && code != 0 {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(code)
}
