package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var version = "dev"

func init() {
	// -v is taken by --verbose.
	cli.VersionFlag = &cli.BoolFlag{Name: "version", Usage: "print the version"}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := hintFor(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

func newApp() *cli.App {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "profile",
			Aliases: []string{"p"},
			Usage:   "Connection profile from config.toml",
			EnvVars: []string{"RABBITLOG_PROFILE"},
		},
		&cli.StringFlag{
			Name:  "config-dir",
			Usage: "Directory holding config.toml (default: $XDG_CONFIG_HOME/rabbitlog)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable debug logging",
		},
	}
	runFlags := append([]cli.Flag{
		&cli.StringFlag{
			Name:  "log-file",
			Usage: "Append received messages to `PATH`",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "Serve Prometheus metrics on `ADDR` (e.g. :9464)",
		},
	}, flags...)

	return &cli.App{
		Name:    "rabbitlog",
		Usage:   "Collect log messages from a RabbitMQ fanout exchange into a file",
		Version: version,
		Flags:   runFlags,
		Action:  run,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Consume log messages until interrupted (default)",
				Flags:  runFlags,
				Action: run,
			},
			{
				Name:   "inspect",
				Usage:  "Show the exchange, queue and bindings the broker holds",
				Flags:  flags,
				Action: inspect,
			},
		},
	}
}
