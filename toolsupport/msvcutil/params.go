// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package msvcutil provides utilities for cl.exe/clang-cl command lines.
package msvcutil

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	log "github.com/golang/glog"

	"go.chromium.org/infra/build/cxxclean/o11y/clog"
	"go.chromium.org/infra/build/cxxclean/scandeps"
)

// CompileParams parses args and returns header search parameters.
// It only parses major command line flags.
// full set of command line flags for include dirs can be found in
// https://learn.microsoft.com/en-us/cpp/build/reference/compiler-options-listed-by-category?view=msvc-170
// https://clang.llvm.org/docs/ClangCommandLineReference.html#include-path-management
func CompileParams(ctx context.Context, args, env []string) (scandeps.Params, error) {
	p := scandeps.Params{
		Defines: make(map[string]string),
	}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if i == 0 {
			if runtime.GOOS != "windows" {
				arg = strings.ReplaceAll(arg, `\`, "/")
			}
			cmdname := filepath.Base(arg)
			cmdname = strings.TrimSuffix(cmdname, filepath.Ext(cmdname))
			if cmdname == "clang-cl" && strings.Contains(arg, "/") {
				// add toolchain top dir as sysroots too
				p.Sysroots = append(p.Sysroots, filepath.ToSlash(filepath.Dir(filepath.Dir(arg))))
			}
			continue
		}
		switch arg {
		case "-I", "/I", "-D", "/D", "/imsvc", "-imsvc", "/FI", "-FI":
			if i+1 >= len(args) {
				return p, fmt.Errorf("missing value for %s", arg)
			}
			i++
			apply(&p, arg[1:], args[i])
			continue
		}
		if len(arg) < 2 || (arg[0] != '-' && arg[0] != '/') {
			switch filepath.Ext(arg) {
			case ".c", ".cc", ".cxx", ".cpp", ".S":
				p.Files = append(p.Files, filepath.ToSlash(arg))
			}
			continue
		}
		flag := arg[1:]
		switch {
		case strings.HasPrefix(flag, "imsvc"):
			apply(&p, "imsvc", strings.TrimPrefix(flag, "imsvc"))
		case strings.HasPrefix(flag, "winsysroot"):
			apply(&p, "winsysroot", strings.TrimPrefix(flag, "winsysroot"))
		case strings.HasPrefix(flag, "FI"):
			apply(&p, "FI", strings.TrimPrefix(flag, "FI"))
		case strings.HasPrefix(flag, "Yu"):
			apply(&p, "Yu", strings.TrimPrefix(flag, "Yu"))
		case strings.HasPrefix(flag, "I"):
			apply(&p, "I", strings.TrimPrefix(flag, "I"))
		case strings.HasPrefix(flag, "D"):
			apply(&p, "D", strings.TrimPrefix(flag, "D"))
		case arg[0] == '/' && strings.Count(arg, "/") > 1:
			// absolute path on posix, e.g. /src/foo.cc
			switch filepath.Ext(arg) {
			case ".c", ".cc", ".cxx", ".cpp", ".S":
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
	case "I":
		p.Dirs = append(p.Dirs, scandeps.Dir{Path: filepath.ToSlash(value)})
	case "imsvc":
		p.Dirs = append(p.Dirs, scandeps.Dir{Path: filepath.ToSlash(value), System: true})
	case "winsysroot":
		p.Sysroots = append(p.Sysroots, filepath.ToSlash(value))
	case "FI":
		p.Includes = append(p.Includes, filepath.ToSlash(value))
	case "Yu":
		if value != "" {
			p.PCH = append(p.PCH, filepath.ToSlash(value))
		}
	case "D":
		defineMacro(p.Defines, value)
	}
}

func defineMacro(defines map[string]string, arg string) {
	// arg: macro=value
	macro, value, ok := strings.Cut(arg, "=")
	if !ok || value == "" {
		// `/D MACRO` or `/D MACRO=`
		return
	}
	switch value[0] {
	case '<', '"':
		// <path.h> or "path.h"?
		defines[macro] = value
	}
}
