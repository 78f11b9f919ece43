// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	"github.com/staranto/tabfetch/internal/meta"
	"github.com/staranto/tabfetch/internal/output"
)

var ErrNoKeys = errors.New("at least one KEY is required")

// GetCommandAction is the action handler for the "get" subcommand. Every key
// goes through one engine, so a key repeated on the command line or across
// --repeat passes is served from the cache while it is fresh. Keys that fail
// are reported and skipped; the command fails at the end if any did.
func GetCommandAction(ctx context.Context, cmd *cli.Command) error {
	m := GetMeta(cmd)
	if len(m.Args) > 1 {
		log.Debugf("Executing action for %v", m.Args[1:])
	}

	keys := cmd.Args().Slice()
	if len(keys) == 0 {
		return ErrNoKeys
	}

	engine, err := NewEngine(ctx, cmd)
	if err != nil {
		return err
	}

	repeat := int(cmd.Int("repeat"))
	interval := cmd.Duration("interval")

	var failed, total int
	for pass := 0; pass < repeat; pass++ {
		if pass > 0 && interval > 0 {
			if err := wait(ctx, interval); err != nil {
				return err
			}
		}

		for _, key := range keys {
			total++
			if _, err := engine.Get(ctx, key); err != nil {
				failed++
				log.WithError(err).WithField("key", key).Debug("get failed")
				fmt.Fprintf(stderr(cmd), "error: %s: %s\n", key, err)
			}
		}
	}

	stats := engine.Stats()
	log.WithFields(log.Fields{
		"hits":      stats.Hits,
		"misses":    stats.Misses,
		"fetches":   stats.Fetches,
		"failures":  stats.Failures,
		"evictions": stats.Evictions,
	}).Debug("engine stats")

	rows := output.Rows(engine.Entries(), engine.Now())
	if err := output.Spit(stdout(cmd), rows, engine.Data(), output.Options{
		Format:  cmd.String("output"),
		Titles:  cmd.Bool("titles"),
		Color:   cmd.Bool("color"),
		Filter:  cmd.String("filter"),
		Sort:    cmd.String("sort"),
		Columns: output.ParseColumns(cmd.String("columns")),
	}); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d gets failed", failed, total)
	}
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetCommandBuilder constructs the cli.Command definition for the "get"
// command.
func GetCommandBuilder(cmd *cli.Command, meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "get",
		Usage:     "fetch keys through the cache and print the results",
		UsageText: `tabfetch get [options] KEY...`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "repeat",
				Usage: "run the whole batch this many times",
				Value: 1,
				Validator: func(value int) error {
					return FlagValidators(value, MinIntValidator(1))
				},
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "pause between --repeat passes",
				Validator: func(value time.Duration) error {
					return FlagValidators(value, NonNegativeDurationValidator)
				},
			},
		},
		Output: true,
		Action: GetCommandAction,
		Meta:   meta,
	}).Build()
}
