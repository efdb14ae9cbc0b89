// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package clean is clean subcommand to minimize #include.
package clean

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

	log "github.com/golang/glog"
	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"

	"go.chromium.org/infra/build/cxxclean/analysis"
	"go.chromium.org/infra/build/cxxclean/config"
	"go.chromium.org/infra/build/cxxclean/facts"
	"go.chromium.org/infra/build/cxxclean/history"
	"go.chromium.org/infra/build/cxxclean/o11y/clog"
	"go.chromium.org/infra/build/cxxclean/rewrite"
	"go.chromium.org/infra/build/cxxclean/scandeps"
	"go.chromium.org/infra/build/cxxclean/toolsupport/compdb"
	"go.chromium.org/infra/build/cxxclean/ui"
)

const usage = `minimize #include and add forward declarations.

 $ cxxclean clean -p compile_commands.json -facts <dir> [-n [-diff]]

<dir> has fact files (*.json) of translation units, produced by
the AST front end. Translation units in compile_commands.json
that have no fact file are skipped.

Files are rewritten once after all translation units are analyzed.
With -n, edits are printed instead. With -n -diff, they are printed
as unified diff.
`

// Cmd returns the Command for the `clean` subcommand provided by this package.
func Cmd() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "clean -p compile_commands.json -facts <dir> [-n [-diff]]",
		ShortDesc: "minimize #include",
		LongDesc:  usage,
		CommandRun: func() subcommands.CommandRun {
			c := &run{}
			c.init()
			return c
		},
	}
}

type run struct {
	subcommands.CommandRunBase

	compdb     string
	factsDir   string
	configFile string
	flags      flagMap
	only       string
	dryRun     bool
	diff       bool
}

// flagMap is flag value of key=value, passed to config as ctx.flags.
type flagMap map[string]string

func (f flagMap) String() string {
	var kvs []string
	for k, v := range f {
		kvs = append(kvs, k+"="+v)
	}
	sort.Strings(kvs)
	return strings.Join(kvs, ",")
}

func (f flagMap) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("want key=value: %q", s)
	}
	f[k] = v
	return nil
}

func (c *run) init() {
	c.flags = make(flagMap)
	c.Flags.StringVar(&c.compdb, "p", "compile_commands.json", "compilation database")
	c.Flags.StringVar(&c.factsDir, "facts", "", "directory of fact files")
	c.Flags.StringVar(&c.configFile, "config", config.DefaultFilename, "config file. default config is used if it doesn't exist")
	c.Flags.Var(c.flags, "config_flag", "key=value passed to config as ctx.flags. can be repeated")
	c.Flags.StringVar(&c.only, "only", "", "only process translation units whose path contains this")
	c.Flags.BoolVar(&c.dryRun, "n", false, "print edits instead of rewriting files")
	c.Flags.BoolVar(&c.diff, "diff", false, "with -n, print edits as unified diff")
}

func (c *run) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, c, env)
	err := c.run(ctx)
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

func (c *run) run(ctx context.Context) error {
	if c.factsDir == "" {
		return fmt.Errorf("missing -facts: %w", flag.ErrHelp)
	}
	cfg, err := c.loadConfig(ctx)
	if err != nil {
		return err
	}

	spin := ui.Default.NewSpinner()
	spin.Start("loading %s", c.compdb)
	cmds, err := compdb.Load(ctx, c.compdb)
	spin.Stop(err)
	if err != nil {
		return err
	}
	spin = ui.Default.NewSpinner()
	spin.Start("loading facts in %s", c.factsDir)
	factFiles, err := facts.LoadDir(ctx, c.factsDir)
	spin.Stop(err)
	if err != nil {
		return err
	}

	m := history.NewMerged()
	progress := ui.NewProgress(ui.Default, len(cmds))
	var failed []string
	for _, cmd := range cmds {
		if err := ctx.Err(); err != nil {
			return err
		}
		tu := cmd.Path()
		if c.only != "" && !strings.Contains(tu, c.only) {
			progress.Step(tu, true, nil)
			continue
		}
		f, ok := factFiles[facts.TUKey(tu)]
		if !ok {
			if log.V(1) {
				clog.Infof(ctx, "no facts for %s", tu)
			}
			progress.Step(tu, true, nil)
			continue
		}
		err := cleanTU(clog.NewTUSpan(ctx, tu), cfg, cmd, f, m)
		if err != nil && !errors.Is(err, analysis.ErrFatalParse) {
			failed = append(failed, tu)
		}
		progress.Step(tu, false, err)
	}
	for _, conflict := range m.Conflicts() {
		ui.Default.Warningf("conflict: %s", conflict)
	}
	switch {
	case c.dryRun && c.diff:
		err := printDiffs(os.Stdout, m)
		if err != nil {
			return err
		}
	case c.dryRun:
		printEdits(m)
	default:
		results := rewrite.Overwrite(ctx, m)
		nerrs := 0
		for _, p := range m.Paths() {
			if err := results[p]; err != nil {
				ui.Default.Errorf("%v", err)
				nerrs++
			}
		}
		if nerrs > 0 {
			return fmt.Errorf("failed to rewrite %d files", nerrs)
		}
	}
	ui.Default.Infof("%s", progress.Summary())
	if len(failed) > 0 {
		return fmt.Errorf("failed to analyze %d translation units: %q", len(failed), failed)
	}
	return nil
}

func (c *run) loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx, c.configFile, c.flags)
	if errors.Is(err, os.ErrNotExist) && c.configFile == config.DefaultFilename {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		clog.Infof(ctx, "no %s. use default config", c.configFile)
		cfg = config.Default(wd)
		return cfg, cfg.LoadIgnore(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", c.configFile, err)
	}
	return cfg, nil
}

// cleanTU analyzes the translation unit of cmd with facts f, and
// merges its edits into m.
func cleanTU(ctx context.Context, cfg *config.Config, cmd compdb.Command, f *facts.File, m *history.Merged) error {
	params, err := cmd.Params(ctx)
	if err != nil {
		return err
	}
	a := analysis.New(analysis.Options{
		TU:              cmd.Path(),
		Classifier:      cfg,
		CaseInsensitive: cfg.CaseInsensitive,
		SearchPath:      scandeps.NewSearchPath(ctx, cmd.Directory, params.SearchDirs()),
	})
	err = facts.Replay(ctx, a, f, facts.Options{
		Forced: params.Includes,
		PCH:    params.PCH,
		Skip:   cfg.IsSkip,
	})
	if err != nil {
		return err
	}
	err = a.Analyze(ctx)
	if errors.Is(err, analysis.ErrFatalParse) {
		for _, msg := range a.CompileErrors().Messages {
			clog.Warningf(ctx, "compile error: %s", msg)
		}
		a.MergeInto(m)
		return err
	}
	if err != nil {
		return err
	}
	_, err = a.Clean(ctx)
	if err != nil {
		return err
	}
	if !a.MergeInto(m) {
		clog.Warningf(ctx, "%s already merged", cmd.Path())
	}
	return nil
}

func printEdits(m *history.Merged) {
	for _, h := range m.Histories() {
		if h.IsEmpty() {
			continue
		}
		fmt.Println(ui.Render(ui.Bold, filepath.FromSlash(h.Path)))
		for _, op := range h.Ops {
			fmt.Println(formatOp(op))
		}
	}
}

func printDiffs(w io.Writer, m *history.Merged) error {
	nerrs := 0
	for _, h := range m.Histories() {
		if h.IsEmpty() {
			continue
		}
		d, err := rewrite.DiffFile(h)
		if err != nil {
			ui.Default.Errorf("%v", err)
			nerrs++
			continue
		}
		_, err = w.Write(d)
		if err != nil {
			return err
		}
	}
	if nerrs > 0 {
		return fmt.Errorf("failed to diff %d files", nerrs)
	}
	return nil
}

func formatOp(op history.Op) string {
	text := strings.TrimRight(op.Text, "\r\n")
	switch op.Kind {
	case history.Delete:
		return ui.Render(ui.Red, fmt.Sprintf("%5d - [%d,%d)", op.Line, op.Start, op.End))
	case history.Replace:
		return ui.Render(ui.Yellow, fmt.Sprintf("%5d ~ %s", op.Line, text))
	default:
		var sb strings.Builder
		for i, line := range strings.Split(text, "\n") {
			if i > 0 {
				sb.WriteByte('\n')
			}
			fmt.Fprintf(&sb, "%5d + %s", op.Line, strings.TrimRight(line, "\r"))
		}
		return ui.Render(ui.Green, sb.String())
	}
}
