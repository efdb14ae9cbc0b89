// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package config provides project config for `cxxclean`.
//
// Config is a starlark file (default `.cxxclean.star` at the project
// root), that defines `init(ctx)` to return
//
//	module(
//	    "config",
//	    user_dirs = ["base", "net"],   # dirs of files to edit.
//	    outer_dirs = ["third_party"],  # dirs never to edit.
//	    skip = ["base/*_win.h"],      # files never to edit, nor their includes.
//	    case_insensitive = False,
//	)
//
// All attributes are optional. Dirs and patterns are relative to the
// directory of the config file.
//
// `.cxxcleanignore` next to the config file lists files never to edit in
// gitignore syntax, the same as skip.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"
	ignore "github.com/sabhiram/go-gitignore"
	starjson "go.starlark.net/lib/json"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

const entryPoint = "init"

// DefaultFilename is the default config filename.
const DefaultFilename = ".cxxclean.star"

// IgnoreFilename is the filename of ignore patterns in Root.
const IgnoreFilename = ".cxxcleanignore"

// Template is a config file with all attributes.
const Template = `# cxxclean project config.
def init(ctx):
    return module(
        "config",
        user_dirs = [],
        outer_dirs = ["third_party"],
        skip = [],
        case_insensitive = ctx.flags.get("case_insensitive", "") == "true",
    )
`

// Config is a project config.
type Config struct {
	// Root is the dir of the config file.
	Root string

	// UserDirs are absolute dirs of user files.
	// Empty means all non-system files are user files.
	UserDirs []string

	// OuterDirs are absolute dirs of files never edited.
	OuterDirs []string

	// Skip are path.Match patterns of absolute paths of files never
	// edited. Files included from them are never edited either.
	Skip []string

	// CaseInsensitive is set if config specifies case_insensitive.
	CaseInsensitive *bool

	ignore *ignore.GitIgnore
}

// Default returns config used when no config file exists.
func Default(root string) *Config {
	return &Config{
		Root: filepath.ToSlash(filepath.Clean(root)),
	}
}

// Load loads config from fname.
// flags are passed to `init` as ctx.flags.
func Load(ctx context.Context, fname string, flags map[string]string) (*Config, error) {
	buf, err := os.ReadFile(fname)
	if err != nil {
		return nil, err
	}
	absName, err := filepath.Abs(fname)
	if err != nil {
		return nil, err
	}
	c, err := Parse(ctx, absName, buf, flags)
	if err != nil {
		return nil, err
	}
	err = c.LoadIgnore(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// LoadIgnore loads IgnoreFilename in c.Root, if any.
func (c *Config) LoadIgnore(ctx context.Context) error {
	fname := filepath.Join(filepath.FromSlash(c.Root), IgnoreFilename)
	if _, err := os.Stat(fname); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	gi, err := ignore.CompileIgnoreFile(fname)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", fname, err)
	}
	log.Infof("load %s", fname)
	c.ignore = gi
	return nil
}

// Parse parses config in buf, loaded from fname.
func Parse(ctx context.Context, fname string, buf []byte, flags map[string]string) (*Config, error) {
	thread := &starlark.Thread{
		Name: "load",
		Print: func(thread *starlark.Thread, msg string) {
			log.Infof("thread:%s %s", thread.Name, msg)
		},
		Load: func(*starlark.Thread, string) (starlark.StringDict, error) {
			return nil, errors.New("load is not allowed in config")
		},
	}
	globals, err := starlark.ExecFile(thread, fname, buf, predeclared())
	if err != nil {
		log.Warnf("thread:%s failed to exec file %s: %v", thread.Name, fname, err)
		var eerr *starlark.EvalError
		if errors.As(err, &eerr) {
			log.Warnf("stacktrace:\n%s", eerr.Backtrace())
		}
		return nil, err
	}
	fun, ok := globals[entryPoint]
	if !ok {
		return nil, fmt.Errorf("%s is not defined in %s", entryPoint, fname)
	}
	if _, ok := fun.(starlark.Callable); !ok {
		return nil, fmt.Errorf("%s %s is not callable in %s", entryPoint, fun.Type(), fname)
	}
	root := path.Dir(filepath.ToSlash(fname))
	thread.Name = entryPoint
	hctx := starlarkstruct.FromStringDict(starlark.String("ctx"), map[string]starlark.Value{
		"flags": starFlags(flags),
		"root":  starlark.String(root),
	})
	ret, err := starlark.Call(thread, fun, []starlark.Value{hctx}, nil)
	if err != nil {
		log.Warnf("thread:%s failed to run %s: %v", thread.Name, entryPoint, err)
		var eerr *starlark.EvalError
		if errors.As(err, &eerr) {
			log.Warnf("stacktrace:\n%s", eerr.Backtrace())
		}
		return nil, fmt.Errorf("failed to run %s: %w", entryPoint, err)
	}
	m, ok := ret.(*starlarkstruct.Module)
	if !ok {
		return nil, fmt.Errorf("%s returned %s, want module", entryPoint, ret.Type())
	}
	cfg := Default(root)
	cfg.UserDirs, err = stringList(m, "user_dirs", cfg.abs)
	if err != nil {
		return nil, err
	}
	cfg.OuterDirs, err = stringList(m, "outer_dirs", cfg.abs)
	if err != nil {
		return nil, err
	}
	cfg.Skip, err = stringList(m, "skip", func(p string) string {
		p = cfg.abs(p)
		if _, err := path.Match(p, ""); err != nil {
			log.Warnf("bad skip pattern %q: %v", p, err)
		}
		return p
	})
	if err != nil {
		return nil, err
	}
	if v, err := m.Attr("case_insensitive"); err == nil && v != nil {
		b, ok := v.(starlark.Bool)
		if !ok {
			return nil, fmt.Errorf("case_insensitive=%s, want bool", v.Type())
		}
		ci := bool(b)
		cfg.CaseInsensitive = &ci
	}
	log.Infof("config %s: user_dirs=%q outer_dirs=%q skip=%q", fname, cfg.UserDirs, cfg.OuterDirs, cfg.Skip)
	return cfg, nil
}

func predeclared() starlark.StringDict {
	runtimeModule := &starlarkstruct.Module{
		Name: "runtime",
		Members: map[string]starlark.Value{
			"os":   starlark.String(runtime.GOOS),
			"arch": starlark.String(runtime.GOARCH),
		},
	}
	runtimeModule.Freeze()
	return starlark.StringDict{
		"runtime": runtimeModule,
		"json":    starjson.Module,
		"struct":  starlark.NewBuiltin("struct", starlarkstruct.Make),
		"module":  starlark.NewBuiltin("module", starlarkstruct.MakeModule),
	}
}

func starFlags(flags map[string]string) starlark.Value {
	dict := starlark.NewDict(len(flags))
	for k, v := range flags {
		dict.SetKey(starlark.String(k), starlark.String(v))
	}
	dict.Freeze()
	return dict
}

func stringList(m *starlarkstruct.Module, name string, conv func(string) string) ([]string, error) {
	v, err := m.Attr(name)
	if err != nil || v == nil {
		// not set.
		return nil, nil
	}
	iter, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("%s=%s, want list", name, v.Type())
	}
	var ret []string
	it := iter.Iterate()
	defer it.Done()
	var x starlark.Value
	for it.Next(&x) {
		s, ok := starlark.AsString(x)
		if !ok {
			return nil, fmt.Errorf("%s: %s, want string", name, x.Type())
		}
		ret = append(ret, conv(s))
	}
	return ret, nil
}

func (c *Config) abs(p string) string {
	p = filepath.ToSlash(p)
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(c.Root, p)
}

func (c *Config) key(p string) string {
	p = filepath.ToSlash(filepath.Clean(p))
	if c.CaseInsensitive != nil && *c.CaseInsensitive {
		return strings.ToLower(p)
	}
	return p
}

func (c *Config) under(dirs []string, p string) bool {
	p = c.key(p)
	for _, d := range dirs {
		d = c.key(d)
		if d == "/" || p == d || strings.HasPrefix(p, d+"/") {
			return true
		}
	}
	return false
}

// IsUser reports whether the file at p may be edited.
// It implements filetree.Classifier.
func (c *Config) IsUser(p string) bool {
	if c.IsSkip(p) || c.under(c.OuterDirs, p) {
		return false
	}
	if len(c.UserDirs) == 0 {
		return true
	}
	return c.under(c.UserDirs, p)
}

// IsSkip reports whether the file at p matches skip patterns
// or ignore patterns.
func (c *Config) IsSkip(p string) bool {
	p = c.key(p)
	for _, pat := range c.Skip {
		ok, err := path.Match(c.key(pat), p)
		if err == nil && ok {
			return true
		}
	}
	if c.ignore != nil {
		if rel, ok := strings.CutPrefix(p, c.key(c.Root)+"/"); ok {
			return c.ignore.MatchesPath(rel)
		}
	}
	return false
}
