// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package scandeps

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	log "github.com/golang/glog"

	"go.chromium.org/infra/build/cxxclean/o11y/clog"
)

// header map (*.hmap) layout. all little endian.
//
//	magic          [4]byte "pamh"
//	version        uint16 (1)
//	reserved       uint16
//	string_offset  uint32
//	string_count   uint32
//	hash_capacity  uint32
//	max_value_len  uint32
//	buckets        [hash_capacity]{key, prefix, suffix uint32}
//	strings        NUL terminated strings at string_offset
//
// https://source.chromium.org/chromium/chromium/src/+/main:build/config/ios/write_framework_hmap.py
const hmapHeaderSize = 4 + 2 + 2 + 4*4

var errHmapMagic = errors.New("wrong hmap magic")

type hmapHeader struct {
	Magic        [4]byte
	Version      uint16
	Reserved     uint16
	StringOffset uint32
	StringCount  uint32
	HashCapacity uint32
	MaxValueLen  uint32
}

type hmapBucket struct {
	Key, Prefix, Suffix uint32
}

// ParseHeaderMap parses *.hmap file.
// It returns include name -> header path.
func ParseHeaderMap(ctx context.Context, buf []byte) (map[string]string, error) {
	if len(buf) < hmapHeaderSize {
		return nil, fmt.Errorf("failed to parse hmap header: too short %d", len(buf))
	}
	var hdr hmapHeader
	err := binary.Read(bytes.NewReader(buf[:hmapHeaderSize]), binary.LittleEndian, &hdr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse hmap header: %w", err)
	}
	if hdr.Magic != [4]byte{'p', 'a', 'm', 'h'} {
		return nil, errHmapMagic
	}
	if hdr.Version != 1 {
		return nil, fmt.Errorf("unknown hmap version %d", hdr.Version)
	}
	if int(hdr.StringOffset) > len(buf) {
		return nil, fmt.Errorf("invalid string_offset=%d hmap size=%d", hdr.StringOffset, len(buf))
	}
	strs := buf[hdr.StringOffset:]
	str := func(field string, i uint32) (string, error) {
		if i == 0 {
			return "", nil
		}
		if int(i) >= len(strs) {
			return "", fmt.Errorf("out of index %s=%d", field, i)
		}
		s := strs[i:]
		e := bytes.IndexByte(s, 0)
		if e < 0 {
			return "", fmt.Errorf("unterminated %s=%d", field, i)
		}
		return string(s[:e]), nil
	}

	r := bytes.NewReader(buf[hmapHeaderSize:])
	m := make(map[string]string)
	for i := 0; i < int(hdr.HashCapacity) && r.Len() > 0; i++ {
		var b hmapBucket
		err := binary.Read(r, binary.LittleEndian, &b)
		if err != nil {
			return nil, fmt.Errorf("failed to get hmap bucket:%d: %w", i, err)
		}
		key, err := str("key", b.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to get hmap bucket:%d: %w", i, err)
		}
		if key == "" {
			continue
		}
		prefix, err := str("prefix", b.Prefix)
		if err != nil {
			return nil, fmt.Errorf("failed to get hmap bucket:%d: %w", i, err)
		}
		suffix, err := str("suffix", b.Suffix)
		if err != nil {
			return nil, fmt.Errorf("failed to get hmap bucket:%d: %w", i, err)
		}
		m[key] = prefix + suffix
	}
	if log.V(1) {
		clog.Infof(ctx, "hmap %d entries", len(m))
	}
	return m, nil
}
