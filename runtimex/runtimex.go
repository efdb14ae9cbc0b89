// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package runtimex provides the number of usable CPUs and host CPU info.
package runtimex

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

var ncpu = func() int {
	if n := getproccount(); n > 0 {
		return n
	}
	return runtime.NumCPU()
}()

// NumCPU returns the number of logical CPUs usable by the current process.
//
// On Windows, runtime.NumCPU only counts a single processor group (up to
// 64), so it uses GetActiveProcessorCount for all processor groups.
func NumCPU() int {
	return ncpu
}

// CPUInfo returns host CPU description for logging.
func CPUInfo() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "cpu brand=%q vendor=%q ", cpuid.CPU.BrandName, cpuid.CPU.VendorString)
	fmt.Fprintf(&sb, "physicalCores=%d threadsPerCore=%d logicalCores=%d ", cpuid.CPU.PhysicalCores, cpuid.CPU.ThreadsPerCore, cpuid.CPU.LogicalCores)
	fmt.Fprintf(&sb, "usable=%d vm=%t", NumCPU(), cpuid.CPU.VM())
	return sb.String()
}
