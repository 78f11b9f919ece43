// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/apex/log"

	"github.com/staranto/tabfetch/internal/command"
	"github.com/staranto/tabfetch/internal/config"
	mylog "github.com/staranto/tabfetch/internal/log"
	"github.com/staranto/tabfetch/internal/version"
)

var ctx = context.Background()

func main() {
	os.Exit(realMain())
}

func realMain() int {
	mylog.InitLogger()

	args := os.Args

	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "No command specified.")
		args = append(args, "--help")
	} else {
		_, _ = config.Load()
		args = mangleArguments(args)
	}

	// Short-circuit --version/-v.
	for _, a := range args {
		if a == "--version" || a == "-v" {
			fmt.Println(version.Version)
			return 0
		}
	}

	app, err := command.InitApp(ctx, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if err := app.Run(ctx, args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	return 0
}

// mangleArguments splices a named argument set from the config file in right
// after the subcommand. "tabfetch get @quick 1 2" uses the list under
// get.quick; with no @set, get.defaults is used if present. Explicit args
// come after the set so they win.
func mangleArguments(args []string) []string {
	// We know the first two args are going to be the executable and command.
	preamble := make([]string, 2, len(args)+4)
	copy(preamble, args[:2])

	// Short-circuit for --help/-h. If help is requested, just keep the preamble
	// and add --help flag.
	for _, a := range args {
		if a == "--help" || a == "-h" {
			return append(preamble, "--help")
		}
	}

	set := "defaults"
	rest := make([]string, 0, len(args)-2)
	found := false
	for _, a := range args[2:] {
		if !found && strings.HasPrefix(a, "@") && len(a) > 1 {
			set = a[1:]
			found = true
			continue
		}
		rest = append(rest, a)
	}

	setArgs, _ := config.GetStringSlice(args[1] + "." + set)
	for _, arg := range setArgs {
		preamble = append(preamble, strings.Fields(arg)...)
	}

	args = append(preamble, rest...)
	log.Debugf("set=%s, args=%v", set, args)
	return args
}
