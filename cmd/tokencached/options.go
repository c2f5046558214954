package main

import (
	"errors"

	"github.com/jessevdk/go-flags"
)

// options are the command-line flags. Listen and LogLevel override the
// config file.
type options struct {
	Config      string `short:"c" long:"config" default:"tokencached.yaml" description:"path to the YAML config file"`
	Listen      string `short:"l" long:"listen" description:"listen address, overrides the config file"`
	LogLevel    string `long:"log-level" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"log level, overrides the config file"`
	CheckConfig bool   `long:"check-config" description:"validate the config file and exit"`
}

// parseOptions parses args. help reports that usage was printed and the
// process should exit cleanly.
func parseOptions(args []string) (opts *options, help bool, err error) {
	opts = &options{}
	if _, err := flags.ParseArgs(opts, args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, true, nil
		}
		return nil, false, err
	}
	return opts, false, nil
}

// apply copies flag overrides onto cfg.
func (o *options) apply(cfg *Config) {
	if o.Listen != "" {
		cfg.Listen = o.Listen
	}
	if o.LogLevel != "" {
		cfg.Observe.LogLevel = o.LogLevel
	}
}
