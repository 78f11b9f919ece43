// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"io"
	"os"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	"github.com/staranto/tabfetch/internal/cache"
	"github.com/staranto/tabfetch/internal/fetch"
	"github.com/staranto/tabfetch/internal/meta"
	"github.com/staranto/tabfetch/internal/version"
)

// GetMeta returns the meta.Meta stored in the command's Metadata. If missing
// or of an unexpected type, it returns the zero value.
func GetMeta(cmd *cli.Command) meta.Meta {
	if cmd == nil || cmd.Metadata == nil {
		return meta.Meta{}
	}
	if m, ok := cmd.Metadata["meta"].(meta.Meta); ok {
		return m
	}
	return meta.Meta{}
}

// RetryOptionsFromFlags reads --retries and --delay.
func RetryOptionsFromFlags(cmd *cli.Command) cache.RetryOptions {
	return cache.RetryOptions{
		Retries: int(cmd.Int("retries")),
		Delay:   cmd.Duration("delay"),
	}
}

// NewEngine builds the fetcher selected by --base-url and puts a cache engine
// in front of it, configured from --ttl, --retries and --delay.
func NewEngine(ctx context.Context, cmd *cli.Command) (*cache.Engine, error) {
	f, err := fetch.New(ctx, cmd.String("base-url"),
		fetch.WithField(cmd.String("field")),
		fetch.WithUserAgent("tabfetch/"+version.Version),
		fetch.WithProfile(cmd.String("profile")),
		fetch.WithRegion(cmd.String("region")),
	)
	if err != nil {
		return nil, err
	}

	ro := RetryOptionsFromFlags(cmd)
	log.WithFields(log.Fields{
		"base-url": cmd.String("base-url"),
		"ttl":      cmd.Duration("ttl"),
		"retry":    ro.String(),
	}).Debug("engine configured")

	return cache.New(f,
		cache.WithTTL(cmd.Duration("ttl")),
		cache.WithRetryOptions(ro),
	), nil
}

// stdout and stderr resolve the root command's writers so tests can capture
// them.
func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func stderr(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

// CommandBuilder constructs a cli.Command for subcommands that talk to the
// endpoint. It wires metadata, the fetch flags and, when Output is set, the
// output flags.
type CommandBuilder struct {
	Name      string
	Usage     string
	UsageText string
	Flags     []cli.Flag
	Output    bool
	Action    func(context.Context, *cli.Command) error
	Meta      meta.Meta
}

// Build returns a configured cli.Command from the builder.
func (b *CommandBuilder) Build() *cli.Command {
	flags := append(b.Flags, NewFetchFlags(b.Name, b.Meta.Config.Source)...)
	if b.Output {
		flags = append(flags, NewGlobalFlags(b.Name, b.Meta.Config.Source)...)
	}

	return &cli.Command{
		Name:      b.Name,
		Usage:     b.Usage,
		UsageText: b.UsageText,
		Metadata: map[string]any{
			"meta": b.Meta,
		},
		Flags:  flags,
		Action: b.Action,
	}
}
