// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package facts reads per translation unit fact files produced by an AST
// front end, and replays them into analysis.
package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/golang/glog"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	"go.chromium.org/infra/build/cxxclean/o11y/clog"
	"go.chromium.org/infra/build/cxxclean/runtimex"
	"go.chromium.org/infra/build/cxxclean/sync/semaphore"
)

// File is a fact file of a translation unit.
type File struct {
	// TU is the main source path of the translation unit.
	TU string `json:"tu"`

	// Files are inclusion instances in registration order.
	// Parents come before their children.
	Files    []FileFact    `json:"files"`
	Uses     []UseFact     `json:"uses,omitempty"`
	Records  []RecordFact  `json:"records,omitempty"`
	Decls    []DeclFact    `json:"decls,omitempty"`
	Forwards []ForwardFact `json:"forwards,omitempty"`
	Errors   []ErrorFact   `json:"errors,omitempty"`
}

// FileFact is an inclusion instance.
type FileFact struct {
	// ID is the producer's id of the instance, referenced by Loc.
	ID int `json:"id"`

	Name string `json:"name"`
	Path string `json:"path"`

	// Parent is the id of the includer. 0 for the main file.
	Parent int `json:"parent,omitempty"`

	// Line is the line of #include in the includer.
	Line int `json:"line,omitempty"`

	System bool `json:"system,omitempty"`
	Forced bool `json:"forced,omitempty"`
	PCH    bool `json:"pch,omitempty"`
}

// Loc is a source location.
type Loc struct {
	File int `json:"file"`
	Line int `json:"line"`
}

// UseFact is a use of a declaration.
type UseFact struct {
	From Loc    `json:"from"`
	To   Loc    `json:"to"`
	Name string `json:"name,omitempty"`
}

// Record is a class, struct or union.
type Record struct {
	Name       string   `json:"name"`
	Tag        string   `json:"tag,omitempty"`
	Namespaces []string `json:"namespaces,omitempty"`
	Def        Loc      `json:"def"`
	Template   bool     `json:"template,omitempty"`
	Anonymous  bool     `json:"anonymous,omitempty"`
}

// RecordFact is a use of a record.
type RecordFact struct {
	Loc    Loc    `json:"loc"`
	Record Record `json:"record"`
	Soft   bool   `json:"soft,omitempty"`
}

// UsingRef is a using-declaration or using-directive a reference
// relied on. Loc.File is 0 if untraceable.
type UsingRef struct {
	Name string `json:"name"`
	Loc  Loc    `json:"loc"`
}

// Decl is a referenced declaration.
type Decl struct {
	// Kind is a name of analysis.DeclKind, e.g. "function".
	Kind   string     `json:"kind"`
	Name   string     `json:"name"`
	Loc    Loc        `json:"loc"`
	Record *Record    `json:"record,omitempty"`
	Soft   bool       `json:"soft,omitempty"`
	Using  []UsingRef `json:"using,omitempty"`
}

// DeclFact is a reference to a declaration.
type DeclFact struct {
	Loc  Loc  `json:"loc"`
	Decl Decl `json:"decl"`
}

// ForwardFact is an existing forward declaration.
type ForwardFact struct {
	Loc    Loc    `json:"loc"`
	Record Record `json:"record"`
}

// ErrorFact is a compile error.
type ErrorFact struct {
	Message string `json:"message"`
	Fatal   bool   `json:"fatal,omitempty"`
}

// compressedExt is the extension of zstd compressed fact files.
const compressedExt = ".json.zst"

// Load loads a fact file. *.json.zst is decompressed with zstd.
func Load(ctx context.Context, fname string) (*File, error) {
	buf, err := os.ReadFile(fname)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(fname, compressedExt) {
		buf, err = decompress(buf)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress %s: %w", fname, err)
		}
	}
	f := &File{}
	err = json.Unmarshal(buf, f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", fname, err)
	}
	if f.TU == "" {
		return nil, fmt.Errorf("%s: no tu", fname)
	}
	if log.V(1) {
		clog.Infof(ctx, "loaded %s: tu=%s files=%d uses=%d records=%d decls=%d", fname, f.TU, len(f.Files), len(f.Uses), len(f.Records), len(f.Decls))
	}
	return f, nil
}

func decompress(buf []byte) ([]byte, error) {
	rd, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer rd.Close()
	return rd.DecodeAll(buf, nil)
}

// LoadDir loads all *.json and *.json.zst fact files in dir.
// It returns fact files keyed by cleaned, slash-separated tu path.
func LoadDir(ctx context.Context, dir string) (map[string]*File, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	compressed, err := filepath.Glob(filepath.Join(dir, "*"+compressedExt))
	if err != nil {
		return nil, err
	}
	matches = append(matches, compressed...)
	var mu sync.Mutex
	m := make(map[string]*File)
	sema := semaphore.New("facts", runtimex.NumCPU())
	eg, ctx := errgroup.WithContext(ctx)
	for _, fname := range matches {
		eg.Go(func() error {
			var f *File
			err := sema.Do(ctx, func(ctx context.Context) error {
				var err error
				f, err = Load(ctx, fname)
				return err
			})
			if err != nil {
				return err
			}
			tu := TUKey(f.TU)
			mu.Lock()
			defer mu.Unlock()
			if _, ok := m[tu]; ok {
				return fmt.Errorf("%s: duplicate facts for %s", fname, f.TU)
			}
			m[tu] = f
			return nil
		})
	}
	err = eg.Wait()
	if err != nil {
		return nil, err
	}
	return m, nil
}

// TUKey returns key of tu path to look up fact files.
func TUKey(tu string) string {
	return filepath.ToSlash(filepath.Clean(strings.TrimSpace(tu)))
}
