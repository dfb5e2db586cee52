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

package provider

import (
	"unsafe"

	"github.com/bytedance/gopkg/lang/dirtmake"
)

// DefaultInitialCap is the backing capacity an Arena grows to on its
// first Extend, doubled until the request fits and capped at the
// Arena's maxBytes bound when that is set.
const DefaultInitialCap = 64 * 1024

// Arena is an in-process Provider: the heap region is a single slice,
// grown but never shrunk, never relocated except by Extend. Low is
// always 0; High tracks how many bytes have been handed out so far.
//
// Growth reallocates with github.com/bytedance/gopkg/lang/dirtmake,
// not make(), because a real heap provider's extended pages arrive
// uninitialized (sbrk/mmap don't zero on the allocator's behalf
// beyond what the kernel already zeroed once) and spec.md is explicit
// that zero-fill is Calloc's job, not the provider's or the core's.
type Arena struct {
	buf      []byte
	maxBytes int // 0 means unbounded
}

// NewArena creates an empty Arena. maxBytes bounds the total size the
// arena may grow to; 0 means unbounded. This bound is what lets the
// "Exhaustion" scenario in spec.md §8 be driven deterministically in
// tests instead of actually exhausting process memory.
func NewArena(maxBytes int) *Arena {
	return &Arena{maxBytes: maxBytes}
}

// Low implements Provider.
func (a *Arena) Low() uintptr { return 0 }

// High implements Provider.
func (a *Arena) High() uintptr { return uintptr(len(a.buf)) }

// Bytes implements Provider.
func (a *Arena) Bytes() []byte { return a.buf }

// Extend implements Provider.
func (a *Arena) Extend(n int) (oldHigh uintptr, ok bool) {
	if n < 0 {
		return 0, false
	}
	oldLen := len(a.buf)
	newLen := oldLen + n
	if a.maxBytes > 0 && newLen > a.maxBytes {
		return 0, false
	}
	if newLen <= cap(a.buf) {
		a.buf = a.buf[:newLen]
		return uintptr(oldLen), true
	}

	newCap := cap(a.buf)
	if newCap == 0 {
		newCap = DefaultInitialCap
	}
	for newCap < newLen {
		newCap *= 2
	}
	if a.maxBytes > 0 && newCap > a.maxBytes {
		newCap = a.maxBytes
	}

	grown := alignedBytes(newLen, newCap)
	copy(grown, a.buf)
	a.buf = grown
	return uintptr(oldLen), true
}

// alignedBytes returns length bytes of capacity capacity whose
// backing array starts at a 16-byte-aligned address. spec.md §3
// invariant I6 requires every returned payload pointer to be 16-byte
// aligned; since the allocator places the first real block right
// after the 8-byte prologue, that invariant holds heap-wide as long
// as the arena's own base address is 16-aligned. dirtmake.Bytes
// offers no alignment guarantee on its own, so 16 bytes of padding
// are requested and sliced away.
func alignedBytes(length, capacity int) []byte {
	raw := dirtmake.Bytes(capacity+16, capacity+16)
	base := uintptr(unsafe.Pointer(&raw[0]))
	pad := int((base + 15) &^ 15 - base)
	return raw[pad : pad+length : pad+capacity]
}
