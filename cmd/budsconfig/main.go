package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli"

	"github.com/chaz8081/budsconfig/internal/config"
)

var version = "dev"

// cfg is loaded once in the app's Before hook.
var cfg *config.Config

func main() {
	app := cli.NewApp()
	app.Name = "budsconfig"
	app.Usage = "configure OpenPineBuds earbuds over Bluetooth LE"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "path to config file (default: ~/.config/budsconfig/config.yaml)",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "override log_level (debug, info, warn, error)",
		},
	}
	app.Before = setup
	app.Commands = []cli.Command{
		{
			Name:   "init",
			Usage:  "Write a default config file",
			Action: initCommand,
		},
		{
			Name:  "scan",
			Usage: "List nearby earbuds advertising the configuration service",
			Flags: []cli.Flag{
				cli.DurationFlag{
					Name:  "timeout, t",
					Usage: "how long to scan (default: scan.timeout)",
				},
			},
			Action: scanCommand,
		},
		{
			Name:   "show",
			Usage:  "Read and print the current button mapping",
			Flags:  []cli.Flag{addressFlag},
			Action: showCommand,
		},
		{
			Name:      "set",
			Usage:     "Rebind gestures and save to the earbuds",
			ArgsUsage: "<side>.<gesture>=<action> ...",
			Flags: []cli.Flag{
				addressFlag,
				cli.BoolFlag{
					Name:  "defaults",
					Usage: "start from the factory mapping instead of the device's",
				},
			},
			Action: setCommand,
		},
		{
			Name:      "rename",
			Usage:     "Change the advertised device name",
			ArgsUsage: "<name>",
			Flags: []cli.Flag{
				addressFlag,
				cli.BoolFlag{
					Name:  "truncate",
					Usage: "cut names longer than 32 bytes instead of failing",
				},
			},
			Action: renameCommand,
		},
		{
			Name:  "checksum",
			Usage: "Print the CRC-16/XMODEM of an apply command frame",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "address, a",
					Usage: "read the mapping from this device instead of using factory defaults",
				},
				cli.StringFlag{
					Name:  "command",
					Value: "apply-and-save",
					Usage: "apply-and-save, apply-without-save, reset-to-defaults or reboot",
				},
				cli.StringFlag{
					Name:  "target",
					Value: "both",
					Usage: "both, left or right",
				},
			},
			Action: checksumCommand,
		},
		{
			Name:   "actions",
			Usage:  "List the assignable actions and gestures",
			Action: actionsCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "budsconfig: %v\n", err)
		os.Exit(1)
	}
}

var addressFlag = cli.StringFlag{
	Name:  "address, a",
	Usage: "device address (default: device.address)",
}

// setup loads the config and installs the default logger.
func setup(c *cli.Context) error {
	var err error
	cfg, err = loadConfig(c.GlobalString("config"))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if lvl := c.GlobalString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	defaultPath := config.DefaultConfigPath()
	cfg, err := config.LoadOrDefault(defaultPath)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
	}
	return cfg, nil
}
