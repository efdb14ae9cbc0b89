// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package shutil

import (
	"fmt"
	"strings"
)

// Split splits a POSIX shell command line, e.g. "command" of
// compile_commands.json.
// It supports single quote, double quote and backslash escape.
// It returns error for pipe line, redirection, variable expansion or
// env var settings.
func Split(cmdline string) ([]string, error) {
	var args []string
	var sb strings.Builder
	inarg := false
	var quote rune
	escaped := false
	for _, ch := range cmdline {
		if escaped {
			escaped = false
			if quote == '"' && !strings.ContainsRune(`"\$`+"`", ch) {
				// backslash is literal in double quote, except
				// before these.
				sb.WriteByte('\\')
			}
			sb.WriteRune(ch)
			continue
		}
		switch quote {
		case '\'':
			if ch == '\'' {
				quote = 0
				continue
			}
			sb.WriteRune(ch)
			continue
		case '"':
			switch ch {
			case '"':
				quote = 0
			case '\\':
				escaped = true
			case '$', '`':
				return nil, fmt.Errorf("failed to split: cmdline contains shell metachar %c in double quote", ch)
			default:
				sb.WriteRune(ch)
			}
			continue
		}
		switch ch {
		case ' ', '\t', '\n':
			if inarg {
				args = append(args, sb.String())
				sb.Reset()
				inarg = false
			}
			continue
		case '\\':
			escaped = true
		case '\'', '"':
			quote = ch
		case ';', '&', '|', '<', '>', '$', '`', '(', ')':
			return nil, fmt.Errorf("failed to split: cmdline contains shell metachar %c", ch)
		default:
			sb.WriteRune(ch)
		}
		inarg = true
	}
	if escaped {
		return nil, fmt.Errorf("failed to split: trailing backslash")
	}
	if quote != 0 {
		return nil, fmt.Errorf("failed to split: unterminated quote %c", quote)
	}
	if inarg {
		args = append(args, sb.String())
	}
	if len(args) >= 1 && strings.Contains(args[0], "=") {
		// if initial args contains =, it would set env var and need to invoke via sh
		return nil, fmt.Errorf("argv[0] is env set %q", args[0])
	}
	return args, nil
}
