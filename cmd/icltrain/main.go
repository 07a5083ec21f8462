package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"icltrain/internal/cli"
)

func main() {
	// Deploy environments inject REDIS_URL etc. through a .env file; a
	// missing file is not an error. Loaded here so everything below sees a
	// settled environment.
	_ = godotenv.Load()

	result, err := cli.Run(context.Background(), os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(result.ExitCode)
}
