// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package scandeps is scandeps subcommand for debugging include directive
// scanning.
package scandeps

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"

	"go.chromium.org/infra/build/cxxclean/scandeps"
)

const usage = `scan include directives

 $ cxxclean scandeps -file <file> [-I <dir>]...

prints #include/#define directives found in <file> with line,
byte range and conditional depth, which are used to edit the file.
If -I is given, it also prints spelling of <file> to be included
with the search dirs.
If <file> is *.hmap, prints header map entries.
`

// Cmd returns the Command for the `scandeps` subcommand provided by this package.
func Cmd() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "scandeps -file <file>",
		ShortDesc: "scan include directives",
		LongDesc:  usage,
		Advanced:  true,
		CommandRun: func() subcommands.CommandRun {
			c := &run{}
			c.init()
			return c
		},
	}
}

type run struct {
	subcommands.CommandRunBase

	fname string
	dirs  dirsFlag
}

type dirsFlag []string

func (d *dirsFlag) String() string { return strings.Join(*d, ",") }

func (d *dirsFlag) Set(s string) error {
	*d = append(*d, s)
	return nil
}

func (c *run) init() {
	c.Flags.StringVar(&c.fname, "file", "", "file to scan")
	c.Flags.Var(&c.dirs, "I", "header search dir. can be repeated")
}

func (c *run) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, c, env)
	err := c.run(ctx, os.Stdout)
	if err != nil {
		switch {
		case errors.Is(err, flag.ErrHelp):
			fmt.Fprintf(os.Stderr, "%v\n%s\n", err, usage)
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func (c *run) run(ctx context.Context, w io.Writer) error {
	if c.fname == "" {
		return fmt.Errorf("missing -file: %w", flag.ErrHelp)
	}
	buf, err := os.ReadFile(c.fname)
	if err != nil {
		return err
	}
	if strings.HasSuffix(c.fname, ".hmap") {
		m, err := scandeps.ParseHeaderMap(ctx, buf)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%s\t%s\n", k, m[k])
		}
		return nil
	}
	for _, d := range scandeps.ScanDirectives(ctx, c.fname, buf) {
		fmt.Fprintf(w, "%d\t%s\t%s\t[%d,%d)\tdepth=%d", d.Line, d.Kind, d.Spelling, d.Start, d.Next, d.Depth)
		if d.Value != "" {
			fmt.Fprintf(w, "\t%s", d.Value)
		}
		fmt.Fprintln(w)
	}
	if len(c.dirs) > 0 {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		var dirs []scandeps.Dir
		for _, d := range c.dirs {
			dirs = append(dirs, scandeps.Dir{Path: d})
		}
		sp := scandeps.NewSearchPath(ctx, wd, dirs)
		abs, err := filepath.Abs(c.fname)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "spelling\t%s\n", sp.Spelling(ctx, abs, filepath.Join(wd, "main.cc")))
	}
	return nil
}
