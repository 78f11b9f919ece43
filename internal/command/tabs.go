// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"errors"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/staranto/tabfetch/internal/meta"
	"github.com/staranto/tabfetch/internal/tabs"
)

var ErrNotATerminal = errors.New("tabs needs an interactive terminal, use get instead")

// isTerminal is swapped out in tests.
var isTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// TabsCommandAction is the action handler for the "tabs" subcommand. It runs
// the interactive widget with one tab per key, all backed by one engine.
func TabsCommandAction(ctx context.Context, cmd *cli.Command) error {
	if !isTerminal() {
		return ErrNotATerminal
	}

	engine, err := NewEngine(ctx, cmd)
	if err != nil {
		return err
	}

	model := tabs.New(ctx, engine, cmd.Args().Slice())
	_, err = tea.NewProgram(model, tea.WithContext(ctx), tea.WithAltScreen()).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// TabsCommandBuilder constructs the cli.Command definition for the "tabs"
// command.
func TabsCommandBuilder(cmd *cli.Command, meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "tabs",
		Usage:     "browse keys as tabs, fetching through the cache on selection",
		UsageText: `tabfetch tabs [options] [KEY...]`,
		Action:    TabsCommandAction,
		Meta:      meta,
	}).Build()
}
