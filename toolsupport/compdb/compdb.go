// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package compdb loads JSON compilation database (compile_commands.json).
// https://clang.llvm.org/docs/JSONCompilationDatabase.html
package compdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/golang/glog"

	"go.chromium.org/infra/build/cxxclean/o11y/clog"
	"go.chromium.org/infra/build/cxxclean/scandeps"
	"go.chromium.org/infra/build/cxxclean/toolsupport/cmdutil"
	"go.chromium.org/infra/build/cxxclean/toolsupport/gccutil"
	"go.chromium.org/infra/build/cxxclean/toolsupport/msvcutil"
	"go.chromium.org/infra/build/cxxclean/toolsupport/shutil"
)

// Command is an entry of compilation database.
type Command struct {
	// Directory is the working directory of the compilation.
	Directory string `json:"directory"`

	// File is the main translation unit source, relative to Directory.
	File string `json:"file"`

	// Arguments is the compile command argv.
	Arguments []string `json:"arguments,omitempty"`

	// Command is the compile command as a single shell escaped string.
	// Used only when Arguments is empty.
	Command string `json:"command,omitempty"`

	Output string `json:"output,omitempty"`
}

// Load loads compilation database in fname.
func Load(ctx context.Context, fname string) ([]Command, error) {
	buf, err := os.ReadFile(fname)
	if err != nil {
		return nil, err
	}
	var cmds []Command
	err = json.Unmarshal(buf, &cmds)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", fname, err)
	}
	for i, c := range cmds {
		if c.File == "" || c.Directory == "" {
			return nil, fmt.Errorf("%s: entry %d: missing directory or file", fname, i)
		}
		if len(c.Arguments) == 0 && c.Command == "" {
			return nil, fmt.Errorf("%s: entry %d %s: missing arguments or command", fname, i, c.File)
		}
	}
	if log.V(1) {
		clog.Infof(ctx, "loaded %d commands from %s", len(cmds), fname)
	}
	return cmds, nil
}

// Path returns absolute path of the main source file.
func (c Command) Path() string {
	if filepath.IsAbs(c.File) {
		return filepath.Clean(c.File)
	}
	return filepath.Join(c.Directory, c.File)
}

// IsMSVC reports whether the command is cl.exe or clang-cl.
func (c Command) IsMSVC() bool {
	var argv0 string
	if len(c.Arguments) > 0 {
		argv0 = c.Arguments[0]
	} else {
		argv0, _, _ = strings.Cut(strings.TrimSpace(c.Command), " ")
		argv0 = strings.Trim(argv0, `"`)
	}
	argv0 = strings.ReplaceAll(argv0, `\`, "/")
	base := strings.ToLower(filepath.Base(argv0))
	base = strings.TrimSuffix(base, ".exe")
	return base == "cl" || base == "clang-cl"
}

// Args returns argv of the command.
func (c Command) Args() ([]string, error) {
	if len(c.Arguments) > 0 {
		return c.Arguments, nil
	}
	if c.IsMSVC() {
		return cmdutil.Split(c.Command)
	}
	return shutil.Split(c.Command)
}

// Params returns header search parameters of the command.
// Relative search dirs are resolved from Directory.
func (c Command) Params(ctx context.Context) (scandeps.Params, error) {
	args, err := c.Args()
	if err != nil {
		return scandeps.Params{}, fmt.Errorf("failed to split command of %s: %w", c.File, err)
	}
	if len(args) == 0 {
		return scandeps.Params{}, errors.New("empty command")
	}
	var p scandeps.Params
	if c.IsMSVC() {
		p, err = msvcutil.CompileParams(ctx, args, nil)
	} else {
		p, err = gccutil.CompileParams(ctx, args, nil)
	}
	if err != nil {
		return p, fmt.Errorf("failed to parse command of %s: %w", c.File, err)
	}
	abs := func(p string) string {
		if filepath.IsAbs(p) {
			return filepath.ToSlash(filepath.Clean(p))
		}
		return filepath.ToSlash(filepath.Join(c.Directory, p))
	}
	for i := range p.Dirs {
		p.Dirs[i].Path = abs(p.Dirs[i].Path)
	}
	for i := range p.Sysroots {
		p.Sysroots[i] = abs(p.Sysroots[i])
	}
	for i := range p.Includes {
		p.Includes[i] = abs(p.Includes[i])
	}
	for i := range p.PCH {
		p.PCH[i] = abs(p.PCH[i])
	}
	return p, nil
}
