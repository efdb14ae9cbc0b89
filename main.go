// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// cxxclean minimizes #include of C++ sources.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	log "github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/system/signals"

	"go.chromium.org/infra/build/cxxclean/o11y/clog"
	"go.chromium.org/infra/build/cxxclean/runtimex"
	"go.chromium.org/infra/build/cxxclean/subcmd/clean"
	"go.chromium.org/infra/build/cxxclean/subcmd/help"
	"go.chromium.org/infra/build/cxxclean/subcmd/scandeps"
	"go.chromium.org/infra/build/cxxclean/subcmd/version"
	"go.chromium.org/infra/build/cxxclean/ui"
)

const executableVersion = "v0.1.0"

func getApplication(ctx context.Context) *cli.Application {
	return &cli.Application{
		Name:  "cxxclean",
		Title: "C++ include cleaner",
		Context: func(context.Context) context.Context {
			return clog.NewSpan(ctx, "", uuid.New().String(), map[string]string{
				"version": executableVersion,
			})
		},
		Commands: []*subcommands.Command{
			clean.Cmd(),
			scandeps.Cmd(),

			help.Cmd(),
			version.Cmd(executableVersion),
		},
		EnvVars: map[string]subcommands.EnvVarDefinition{},
	}
}

func main() {
	os.Exit(cxxcleanMain())
}

func cxxcleanMain() int {
	flag.Parse()
	ui.Init()
	defer ui.Restore()

	// Flush the log on exit to not lose any messages.
	defer log.Flush()

	// Print a stack trace when a panic occurs.
	defer func() {
		if r := recover(); r != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			log.Fatalf("panic: %v\n%s", r, buf)
		}
	}()

	// Print build information to the log.
	buildinfo, ok := debug.ReadBuildInfo()
	if ok {
		log.Infof("main module: %s %s", moduleInfo(&buildinfo.Main), vcsInfo(buildinfo))
		log.Infof("%s", runtimex.CPUInfo())
		if log.V(1) {
			for _, m := range buildinfo.Deps {
				log.Infof("deps module: %s", moduleInfo(m))
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer signals.HandleInterrupt(cancel)()

	app := getApplication(ctx)
	return subcommands.Run(app, flag.Args())
}

func moduleInfo(m *debug.Module) string {
	if m == nil {
		return "<nil>"
	}
	return fmt.Sprintf("path:%s version:%s sum:%s replace:%s", m.Path, m.Version, m.Sum, moduleInfo(m.Replace))
}

func vcsInfo(buildinfo *debug.BuildInfo) string {
	m := make(map[string]string)
	for _, bs := range buildinfo.Settings {
		if strings.HasPrefix(bs.Key, "vcs.") {
			m[bs.Key] = bs.Value
		}
	}
	return fmt.Sprintf("vcs[revision=%s time=%s modified=%s]", m["vcs.revision"], m["vcs.time"], m["vcs.modified"])
}
