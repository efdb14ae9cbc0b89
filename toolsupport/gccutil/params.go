// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package gccutil provides utilities for gcc/clang command lines.
package gccutil

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	log "github.com/golang/glog"

	"go.chromium.org/infra/build/cxxclean/o11y/clog"
	"go.chromium.org/infra/build/cxxclean/scandeps"
)

// flags that take the next arg as value.
var separateFlags = map[string]bool{
	"-I":                  true,
	"--include-directory": true,
	"-iquote":             true,
	"-isystem":            true,
	"-idirafter":          true,
	"-cxx-isystem":        true,
	"-isysroot":           true,
	"--sysroot":           true,
	"-include":            true,
	"-include-pch":        true,
	"-D":                  true,
}

// CompileParams parses args and returns header search parameters.
// It only parses major command line flags.
// full set of command line flags for include dirs can be found in
// https://clang.llvm.org/docs/ClangCommandLineReference.html#include-path-management
func CompileParams(ctx context.Context, args, env []string) (scandeps.Params, error) {
	p := scandeps.Params{
		Defines: make(map[string]string),
	}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if i == 0 {
			cmdname := filepath.Base(arg)
			switch {
			case cmdname == arg:
				// found in PATH.
			case strings.HasSuffix(cmdname, "clang"),
				strings.HasSuffix(cmdname, "clang++"),
				strings.HasSuffix(cmdname, "gcc"),
				strings.HasSuffix(cmdname, "g++"):
				// add toolchain top dir as sysroots too
				p.Sysroots = append(p.Sysroots, filepath.ToSlash(filepath.Dir(filepath.Dir(arg))))
			}
			continue
		}
		if separateFlags[arg] {
			if i+1 >= len(args) {
				return p, fmt.Errorf("missing value for %s", arg)
			}
			i++
			apply(&p, arg, args[i])
			continue
		}
		switch {
		case strings.HasPrefix(arg, "--include-directory="):
			apply(&p, "-I", strings.TrimPrefix(arg, "--include-directory="))
		case strings.HasPrefix(arg, "--sysroot="):
			apply(&p, "--sysroot", strings.TrimPrefix(arg, "--sysroot="))
		case strings.HasPrefix(arg, "-include-pch"):
			apply(&p, "-include-pch", strings.TrimPrefix(arg, "-include-pch"))
		case strings.HasPrefix(arg, "-include"):
			apply(&p, "-include", strings.TrimPrefix(arg, "-include"))
		case strings.HasPrefix(arg, "-iquote"):
			apply(&p, "-iquote", strings.TrimPrefix(arg, "-iquote"))
		case strings.HasPrefix(arg, "-isystem"):
			apply(&p, "-isystem", strings.TrimPrefix(arg, "-isystem"))
		case strings.HasPrefix(arg, "-idirafter"):
			apply(&p, "-idirafter", strings.TrimPrefix(arg, "-idirafter"))
		case strings.HasPrefix(arg, "-isysroot"):
			apply(&p, "-isysroot", strings.TrimPrefix(arg, "-isysroot"))
		case strings.HasPrefix(arg, "-I"):
			apply(&p, "-I", strings.TrimPrefix(arg, "-I"))
		case strings.HasPrefix(arg, "-D"):
			apply(&p, "-D", strings.TrimPrefix(arg, "-D"))

		case !strings.HasPrefix(arg, "-"):
			switch filepath.Ext(arg) {
			case ".c", ".cc", ".cxx", ".cpp", ".m", ".mm", ".S":
				p.Files = append(p.Files, arg)
			}
		}
	}
	if log.V(1) {
		clog.Infof(ctx, "params files=%q dirs=%d sysroots=%q includes=%q pch=%q", p.Files, len(p.Dirs), p.Sysroots, p.Includes, p.PCH)
	}
	return p, nil
}

func apply(p *scandeps.Params, flag, value string) {
	switch flag {
	case "-I", "--include-directory", "-iquote":
		p.Dirs = append(p.Dirs, scandeps.Dir{Path: value})
	case "-isystem", "-idirafter", "-cxx-isystem":
		p.Dirs = append(p.Dirs, scandeps.Dir{Path: value, System: true})
	case "--sysroot", "-isysroot":
		p.Sysroots = append(p.Sysroots, value)
	case "-include":
		p.Includes = append(p.Includes, value)
	case "-include-pch":
		p.PCH = append(p.PCH, value)
	case "-D":
		defineMacro(p.Defines, value)
	}
}

func defineMacro(defines map[string]string, arg string) {
	// arg: macro=value
	macro, value, ok := strings.Cut(arg, "=")
	if !ok || value == "" {
		// `-D MACRO` or `-D MACRO=`
		return
	}
	switch value[0] {
	case '<', '"':
		// <path.h> or "path.h"?
		defines[macro] = value
	}
}
