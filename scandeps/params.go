// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package scandeps

import (
	"path"
	"path/filepath"
)

// Params is header search parameters of a compile command.
type Params struct {
	// Files are source files of the compile command.
	Files []string

	// Dirs are header search dirs in command line order.
	Dirs []Dir

	// Sysroots are sysroot dirs, including the toolchain top dir.
	Sysroots []string

	// Includes are forced includes (-include, /FI).
	Includes []string

	// PCH are precompiled headers (-include-pch, /Yu).
	PCH []string

	// Defines are macros defined to include spelling,
	// e.g. FOO_H -> <foo.h>.
	Defines map[string]string
}

// SearchDirs returns Dirs and builtin system dirs of Sysroots.
func (p Params) SearchDirs() []Dir {
	dirs := append([]Dir(nil), p.Dirs...)
	for _, s := range p.Sysroots {
		s = filepath.ToSlash(s)
		dirs = append(dirs,
			Dir{Path: path.Join(s, "usr/include"), System: true},
			Dir{Path: path.Join(s, "include"), System: true})
	}
	return dirs
}
