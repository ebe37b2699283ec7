package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		fatal(err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "umad"
	app.Usage = "UMA receiver with multi-settlement support"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   "config/umad.yaml",
			Usage:   "path to the YAML config file, empty for defaults",
			EnvVars: []string{"UMAD_CONFIG"},
		},
	}
	app.Commands = []*cli.Command{
		serveCommand,
		quoteCommand,
		lnurlCommand,
	}
	return app
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[umad] %v\n", err)
	os.Exit(1)
}
