// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package help provides help subcommand.
package help

import (
	"flag"
	"fmt"
	"io"

	"github.com/maruel/subcommands"

	"go.chromium.org/infra/build/cxxclean/config"
)

// Cmd returns the Command for the `help` subcommand provided by this package.
func Cmd() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "help [<command>|config|-advanced]",
		ShortDesc: "prints help about a command",
		LongDesc: `Prints commands and globally-available flags or help about a specific command.
Use -advanced to display all commands.
"help config" prints a template of the project config file.`,
		CommandRun: func() subcommands.CommandRun {
			ret := &helpCmdRun{}
			ret.Flags.BoolVar(&ret.advanced, "advanced", false, "show advanced commands")
			return ret
		},
	}
}

type helpCmdRun struct {
	subcommands.CommandRunBase
	advanced bool
}

func (h *helpCmdRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	switch {
	case len(args) == 0:
		subcommands.Usage(a.GetOut(), a, h.advanced)
		fmt.Fprintln(a.GetOut(), "Common flags accepted by all commands:")
		flag.CommandLine.SetOutput(a.GetOut())
		flag.PrintDefaults()
		return 0
	case len(args) == 1 && args[0] == "config":
		printConfig(a.GetOut())
		return 0
	}
	return subcommands.CmdHelp.CommandRun().Run(a, args, env)
}

func printConfig(w io.Writer) {
	fmt.Fprintf(w, "# save as %s at the project root.\n", config.DefaultFilename)
	fmt.Fprint(w, config.Template)
}
