// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ui_test

import (
	"testing"

	"github.com/charmbracelet/x/ansi"

	"go.chromium.org/infra/build/cxxclean/ui"
)

func TestRender(t *testing.T) {
	for _, tc := range []struct {
		style ui.Style
		in    string
	}{
		{style: ui.Bold, in: "/src/a.h"},
		{style: ui.Red, in: "    2 - [15,30)"},
		{style: ui.Green, in: "    3 + #include \"a.h\"\n    3 + #include <vector>"},
		{style: ui.Yellow, in: "conflict\n"},
	} {
		got := ui.Render(tc.style, tc.in)
		if s := ansi.Strip(got); s != tc.in {
			t.Errorf("ui.Render(%d, %q)=%q; want %q without escape sequences", tc.style, tc.in, s, tc.in)
		}
	}
}
