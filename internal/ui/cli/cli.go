package cli

import (
	"flag"

	"sketchbridge/internal/core/config"
)

const defaultConfigPath = config.DefaultPath

type cliOptions struct {
	configPath string
	imports    int
	ui         bool
	verbose    bool
	version    bool
}

func parseOptions(args []string) (cliOptions, error) {
	var opts cliOptions
	fs := flag.NewFlagSet("sketchbridge", flag.ContinueOnError)

	fs.StringVar(&opts.configPath, "config", defaultConfigPath, "Path to config file")
	fs.IntVar(&opts.imports, "imports", 0, "Print the N most recent imports from the task store and exit")
	fs.BoolVar(&opts.ui, "ui", false, "Show a live dashboard of imports recorded in the task store")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}
	return opts, nil
}
