// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package scandeps scans C/C++ preprocessor directives and spells
// #include paths.
//
// It only checks the following forms
//
//	#include "foo.h"
//	#include <foo.h>
//	#include FOO_H
//	#include_next <foo.h>
//	#import "foo.h"
//	#define FOO_H "foo.h"
//
// and reports byte ranges of the lines, so that #include lines can be
// deleted or replaced without re-parsing the file.
//
// It doesn't allow comments nor multiline (\ at the end of line)
// for the directives.
package scandeps
