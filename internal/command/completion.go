// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT

package command

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/staranto/tabfetch/internal/meta"
)

const bashCompletionScript = `# bash completion for tabfetch
# Fallback if bash-completion is not installed
if ! declare -F _get_comp_words_by_ref >/dev/null 2>&1; then
  _get_comp_words_by_ref() {
    cur=${COMP_WORDS[COMP_CWORD]}
    prev=${COMP_WORDS[COMP_CWORD-1]}
  }
fi

_tabfetch()
{
    local cur prev cmd
    COMPREPLY=()
    _get_comp_words_by_ref -n : cur prev

    if [[ ${COMP_CWORD} -eq 1 ]]; then
        COMPREPLY=( $(compgen -W "get tabs completion --help --version" -- "$cur") )
        return 0
    fi

    cmd=${COMP_WORDS[1]}
    local fetch="--base-url -u --retries -r --delay -d --ttl --field --profile --region"
    local common="--color -c --columns --filter -f --output -o --sort -s --titles -t"

    case "$cmd" in
        get)
            local opts="$fetch $common --repeat --interval"
            ;;
        tabs)
            local opts="$fetch"
            ;;
        completion)
            local opts="bash zsh"
            COMPREPLY=( $(compgen -W "$opts" -- "$cur") )
            return 0
            ;;
        *)
            local opts="$fetch"
            ;;
    esac

    if [[ "$prev" == "--output" || "$prev" == "-o" ]]; then
        COMPREPLY=( $(compgen -W "text json raw yaml" -- "$cur") )
        return 0
    fi

    # Keys are free-form, so only flags are offered.
    if [[ "$cur" == -* ]]; then
        COMPREPLY=( $(compgen -W "$opts" -- "$cur") )
    fi
    return 0
}

complete -F _tabfetch tabfetch
`

const zshCompletionScript = `#compdef tabfetch

_tabfetch() {
  local -a cmds
  cmds=(
    'get:fetch keys through the cache and print the results'
    'tabs:browse keys as tabs'
    'completion:generate shell completion script'
  )

  local -a fetch
  fetch=(
  '(-u --base-url)'{-u,--base-url}'[endpoint base URL]:url'
  '(-r --retries)'{-r,--retries}'[attempts per key]:retries'
  '(-d --delay)'{-d,--delay}'[wait between attempts]:delay'
  '--ttl[freshness window]:ttl'
  '--field[JSON field to extract]:field'
  '--profile[AWS profile]:profile'
  '--region[AWS region]:region'
  )

  local -a common
  common=(
  '(-c --color)'{-c,--color}'[enable colored text]'
  '--columns[columns to show]:columns'
  '(-f --filter)'{-f,--filter}'[filters to apply]:filters'
  '(-o --output)'{-o,--output}'[output format]:format:(text json raw yaml)'
  '(-s --sort)'{-s,--sort}'[sort columns]:columns'
  '(-t --titles)'{-t,--titles}'[show titles]'
  )

  if (( CURRENT == 2 )); then
    _describe -t commands 'tabfetch commands' cmds
    return
  fi

  local curcontext="$curcontext" state line
  case $words[2] in
    get)
      _arguments -C \
        $fetch \
        $common \
        '--repeat[run the batch N times]:count' \
        '--interval[pause between passes]:interval' \
        '*:key'
      ;;
    tabs)
      _arguments -C \
        $fetch \
        '*:key'
      ;;
    completion)
      _arguments '1: :((bash zsh))'
      ;;
    *)
      _arguments -C $fetch '*:key'
      ;;
  esac
}

# If this file is sourced directly (not autoloaded via fpath), ensure compsys is initialized and register the completion
if ! typeset -f compdef >/dev/null 2>&1; then
  autoload -Uz compinit && compinit -i
fi
compdef _tabfetch tabfetch
`

func CompletionCommandAction(ctx context.Context, cmd *cli.Command) error {
	shell := ""
	if args := cmd.Args().Slice(); len(args) > 0 {
		shell = args[0]
	}

	w := stdout(cmd)
	switch shell {
	case "bash":
		fmt.Fprint(w, bashCompletionScript)
	case "zsh":
		fmt.Fprint(w, zshCompletionScript)
	default:
		// Try to detect from SHELL or print help
		sh := os.Getenv("SHELL")
		if strings.HasSuffix(sh, "zsh") {
			fmt.Fprint(w, zshCompletionScript)
		} else if strings.HasSuffix(sh, "bash") {
			fmt.Fprint(w, bashCompletionScript)
		} else {
			fmt.Fprintln(stderr(cmd), "usage: tabfetch completion [bash|zsh]")
			return nil
		}
	}
	return nil
}

func CompletionCommandBuilder(cmd *cli.Command, meta meta.Meta) *cli.Command {
	return &cli.Command{
		Name:      "completion",
		Usage:     "generate shell completion script",
		UsageText: "tabfetch completion [bash|zsh]",
		Metadata: map[string]any{
			"meta": meta,
		},
		Action: CompletionCommandAction,
	}
}
