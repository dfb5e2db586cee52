// Copyright 2024 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package blkhdr packs a block's size and status flags into one 8-byte
// word, and walks from a header to its neighbors using boundary tags.
//
// A header (and, for free blocks, a footer) is never modeled as a Go
// struct with separate fields. It is one opaque 64-bit word, read and
// written in place over the heap's backing bytes, exactly like the
// bit-packed footer word in cache/mempool of the original gopkg: size
// and flags share a word, and only accessor functions are allowed to
// know the bit layout.
package blkhdr

import "unsafe"

const (
	// WordSize is the width of a header or footer word.
	WordSize = 8

	// flagAlloc is bit 0: this block is allocated.
	flagAlloc = uint64(1) << 0

	// flagPrevAlloc is bit 1: the preceding block is allocated.
	flagPrevAlloc = uint64(1) << 1

	// sizeMask keeps bits 3..63; bit 2 is reserved and always zero.
	sizeMask = ^uint64(0x7)
)

// Header is one 8-byte header (or footer) word: size packed with the
// two status flags. The zero Header describes a free, size-0 block
// whose predecessor is free — callers always construct one via Pack.
type Header uint64

// Pack builds a Header from a payload size (a multiple of 8) and the
// two status flags.
func Pack(size uint64, alloc, prevAlloc bool) Header {
	h := Header(size & sizeMask)
	if alloc {
		h |= Header(flagAlloc)
	}
	if prevAlloc {
		h |= Header(flagPrevAlloc)
	}
	return h
}

// Size returns the block's payload size in bytes (header excluded).
func (h Header) Size() uint64 { return uint64(h) & sizeMask }

// Alloc reports whether this block is allocated.
func (h Header) Alloc() bool { return uint64(h)&flagAlloc != 0 }

// PrevAlloc reports whether the immediately preceding block is allocated.
func (h Header) PrevAlloc() bool { return uint64(h)&flagPrevAlloc != 0 }

// WithSize returns h with its size replaced, flags untouched.
func (h Header) WithSize(size uint64) Header {
	return Header(size&sizeMask) | Header(uint64(h) & ^sizeMask)
}

// WithAlloc returns h with its A flag set to v, everything else untouched.
func (h Header) WithAlloc(v bool) Header {
	if v {
		return h | Header(flagAlloc)
	}
	return h &^ Header(flagAlloc)
}

// WithPrevAlloc returns h with its P flag set to v, everything else untouched.
func (h Header) WithPrevAlloc(v bool) Header {
	if v {
		return h | Header(flagPrevAlloc)
	}
	return h &^ Header(flagPrevAlloc)
}

// At returns a pointer to the 8-byte word at offset off in mem. The
// caller MUST ensure off+8 <= len(mem); this is the one place the
// package trusts its caller instead of checking, matching how
// unsafex/malloc indexes into its arena via unsafe.Add.
func At(mem []byte, off uintptr) *uint64 {
	return (*uint64)(unsafe.Add(unsafe.Pointer(&mem[0]), off))
}

// Read loads the header (or footer) word at off.
func Read(mem []byte, off uintptr) Header {
	return Header(*At(mem, off))
}

// Write stores h as the word at off.
func Write(mem []byte, off uintptr, h Header) {
	*At(mem, off) = uint64(h)
}

// SetAlloc flips only the A bit of the word at off.
func SetAlloc(mem []byte, off uintptr, v bool) {
	Write(mem, off, Read(mem, off).WithAlloc(v))
}

// SetPrevAlloc flips only the P bit of the word at off.
func SetPrevAlloc(mem []byte, off uintptr, v bool) {
	Write(mem, off, Read(mem, off).WithPrevAlloc(v))
}
