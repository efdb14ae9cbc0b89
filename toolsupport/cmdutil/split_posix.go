// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build !windows

package cmdutil

import "strings"

// Split splits cmd.exe's cmdline, e.g. "command" of compile_commands.json
// generated for clang-cl, in the manner of CommandLineToArgvW.
func Split(cmdline string) ([]string, error) {
	var args []string
	var sb strings.Builder
	inarg := false
	inquote := false
	backslashes := 0
	for _, ch := range cmdline {
		switch ch {
		case '\\':
			backslashes++
			inarg = true
			continue
		case '"':
			// 2n backslashes + " -> n backslashes, toggle quote.
			// 2n+1 backslashes + " -> n backslashes, literal ".
			sb.WriteString(strings.Repeat(`\`, backslashes/2))
			if backslashes%2 == 1 {
				sb.WriteByte('"')
			} else {
				inquote = !inquote
			}
			backslashes = 0
			inarg = true
			continue
		}
		sb.WriteString(strings.Repeat(`\`, backslashes))
		backslashes = 0
		if (ch == ' ' || ch == '\t') && !inquote {
			if inarg {
				args = append(args, sb.String())
				sb.Reset()
				inarg = false
			}
			continue
		}
		sb.WriteRune(ch)
		inarg = true
	}
	sb.WriteString(strings.Repeat(`\`, backslashes))
	if inarg {
		args = append(args, sb.String())
	}
	return args, nil
}
