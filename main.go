package main

import (
	"fmt"
	"os"

	_ "time/tzdata"

	"intent-scheduler/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
