package main

import (
	"fmt"
	"os"

	"chargeway/backend/services/charging-service/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
