// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ui

import (
	log "github.com/golang/glog"
	"golang.org/x/sys/windows"
)

// consoleModes are original modes of stdout and stderr consoles.
var consoleModes = map[uint32]uint32{}

// Init enables virtual terminal processing of stdout and stderr
// to render colors and cursor movements.
func Init() {
	for _, std := range []uint32{windows.STD_OUTPUT_HANDLE, windows.STD_ERROR_HANDLE} {
		h, err := windows.GetStdHandle(std)
		if err != nil {
			log.Warningf("GetStdHandle(%d): %v", int32(std), err)
			continue
		}
		var mode uint32
		err = windows.GetConsoleMode(h, &mode)
		if err != nil {
			// not a console.
			continue
		}
		if mode&windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING != 0 {
			continue
		}
		consoleModes[std] = mode
		err = windows.SetConsoleMode(h, mode|windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING)
		if err != nil {
			log.Errorf("SetConsoleMode(%d): %v", int32(std), err)
		}
	}
}

// Restore restores console modes changed by Init.
func Restore() {
	for std, mode := range consoleModes {
		h, err := windows.GetStdHandle(std)
		if err != nil {
			continue
		}
		err = windows.SetConsoleMode(h, mode)
		if err != nil {
			log.Errorf("SetConsoleMode(%d) restore: %v", int32(std), err)
		}
	}
}
