// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	yaml "github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"

	"github.com/staranto/tabfetch/internal/cache"
	"github.com/staranto/tabfetch/internal/fetch"
)

// configSources builds a value chain of the given env vars followed by the
// namespaced and global keys of the config file at path.
func configSources(ns, path, name string, env ...string) cli.ValueSourceChain {
	var chain []cli.ValueSource
	for _, e := range env {
		chain = append(chain, cli.EnvVar(e))
	}
	if path == "" {
		return cli.NewValueSourceChain(chain...)
	}
	if ns != "" {
		chain = append(chain, yaml.YAML(ns+"."+name, altsrc.StringSourcer(path)))
	}
	chain = append(chain, yaml.YAML(name, altsrc.StringSourcer(path)))
	return cli.NewValueSourceChain(chain...)
}

// NewGlobalFlags returns the output flags shared by commands that print
// results. params[0] is the command namespace and params[1] the config file.
func NewGlobalFlags(params ...string) (flags []cli.Flag) {
	ns, path := nsAndPath(params)

	flags = []cli.Flag{
		&cli.BoolWithInverseFlag{
			Name:    "color",
			Aliases: []string{"c"},
			Usage:   "enable colored text output",
			Sources: configSources(ns, path, "color"),
			Value:   false,
		},
		&cli.StringFlag{
			Name:    "columns",
			Usage:   "comma-separated list of columns to show",
			Sources: configSources(ns, path, "columns"),
			Validator: func(value string) error {
				return FlagValidators(value, JammedFlagValidator, ColumnsValidator)
			},
		},
		&cli.StringFlag{
			Name:    "filter",
			Aliases: []string{"f"},
			Usage:   "comma-separated list of filters to apply to results",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format",
			Sources: configSources(ns, path, "output"),
			Value:   "text",
			Validator: func(value string) error {
				return FlagValidators(value, JammedFlagValidator, OutputValidator)
			},
		},
		&cli.StringFlag{
			Name:    "sort",
			Aliases: []string{"s"},
			Usage:   "comma-separated list of columns to sort the results by",
			Sources: configSources(ns, path, "sort"),
		},
		&cli.BoolWithInverseFlag{
			Name:    "titles",
			Aliases: []string{"t"},
			Usage:   "show titles with text output",
			Sources: configSources(ns, path, "titles"),
			Value:   false,
		},
	}

	return
}

// NewFetchFlags returns the flags that configure the fetcher and the cache
// engine.
func NewFetchFlags(params ...string) []cli.Flag {
	ns, path := nsAndPath(params)

	return []cli.Flag{
		&cli.StringFlag{
			Name:    "base-url",
			Aliases: []string{"u"},
			Usage:   "endpoint serving {base-url}/posts/{key}, http(s):// or s3://",
			Sources: configSources(ns, path, "base-url", "TABFETCH_BASE_URL", "VITE_BASE_URL"),
			Validator: func(value string) error {
				return FlagValidators(value, JammedFlagValidator)
			},
		},
		&cli.IntFlag{
			Name:    "retries",
			Aliases: []string{"r"},
			Usage:   "attempts per key before giving up",
			Sources: configSources(ns, path, "retries", "TABFETCH_RETRIES"),
			Value:   cache.DefaultRetries,
			Validator: func(value int) error {
				return FlagValidators(value, MinIntValidator(1))
			},
		},
		&cli.DurationFlag{
			Name:    "delay",
			Aliases: []string{"d"},
			Usage:   "wait between failed attempts",
			Sources: configSources(ns, path, "delay", "TABFETCH_DELAY"),
			Value:   cache.DefaultDelay,
			Validator: func(value time.Duration) error {
				return FlagValidators(value, NonNegativeDurationValidator)
			},
		},
		&cli.DurationFlag{
			Name:    "ttl",
			Usage:   "how long a fetched value stays fresh",
			Sources: configSources(ns, path, "ttl", "TABFETCH_TTL"),
			Value:   cache.DefaultTTL,
			Validator: func(value time.Duration) error {
				return FlagValidators(value, NonNegativeDurationValidator)
			},
		},
		&cli.StringFlag{
			Name:    "field",
			Usage:   "JSON field extracted from each response",
			Sources: configSources(ns, path, "field"),
			Value:   fetch.DefaultField,
		},
		&cli.StringFlag{
			Name:    "profile",
			Usage:   "AWS shared config profile for s3:// base URLs",
			Sources: configSources(ns, path, "profile", "AWS_PROFILE"),
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "AWS region for s3:// base URLs",
			Sources: configSources(ns, path, "region", "AWS_REGION"),
		},
	}
}

func nsAndPath(params []string) (ns, path string) {
	if len(params) > 0 {
		ns = params[0]
	}
	if len(params) > 1 {
		path = params[1]
	}
	return
}
