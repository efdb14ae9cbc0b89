// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build !windows

package runtimex

// getproccount returns 0, as runtime.NumCPU respects CPU affinity.
func getproccount() int { return 0 }
