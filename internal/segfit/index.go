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

// Package segfit is the segregated free index: NumClasses doubly
// linked lists of free blocks, indexed by size class. Unlike
// unsafex/malloc's BuddyAllocator, which keeps its free lists as
// ordinary Go []int slices because buddy offsets are just integers
// with no backing object, here the link storage has to live inside
// the free blocks themselves - spec.md's "untyped byte region
// interpreted as a link cell when free". So Insert/Remove take the
// heap's backing bytes and write/read 8-byte link words directly,
// the same way cache/mempool reads its footer word in place rather
// than keeping a side table.
package segfit

import "github.com/cloudwego/segheap/internal/blkhdr"

// NumClasses is the number of segregated size classes (spec.md §3).
const NumClasses = 15

// classMaxM[i] is the largest m = (size-8)/16 admitted by class i, for
// i < NumClasses-1. The last class has no upper bound. Values come
// directly from spec.md §3's table; they are not a clean closed form
// for classes 4 and 5 (6 and 8, not 4's neighbors), so the table is
// kept explicit rather than derived - see DESIGN.md's Open Question
// note.
var classMaxM = [NumClasses - 1]uint64{
	1, 2, 3, 4, // classes 0-3: exactly one size each
	6, 8, // classes 4-5
	16, 32, 64, 128, 256, 512, 1024, 2048, // classes 6-13
}

// ClassFor returns the segregated index (0..NumClasses-1) that admits
// a block of the given payload size.
func ClassFor(size uint64) int {
	m := (size - 8) / 16
	for i, maxM := range classMaxM {
		if m <= maxM {
			return i
		}
	}
	return NumClasses - 1
}

// Index holds the NumClasses free-list heads. heads[i] is the header
// offset of the most-recently-freed block in class i, or 0 (the
// prologue offset, never a real free block) meaning the list is
// empty.
type Index struct {
	heads [NumClasses]uintptr
}

// Head returns the head offset of class i, or 0 if empty.
func (x *Index) Head(i int) uintptr { return x.heads[i] }

// linkOffsets returns the offsets, within mem, of the next and prev
// link words stored in the free block's payload (spec.md §3: first 8
// bytes next, next 8 bytes prev).
func linkOffsets(h uintptr) (next, prev uintptr) {
	p := blkhdr.Payload(h)
	return p, p + blkhdr.WordSize
}

func readLink(mem []byte, off uintptr) uintptr {
	return uintptr(*blkhdr.At(mem, off))
}

func writeLink(mem []byte, off uintptr, v uintptr) {
	*blkhdr.At(mem, off) = uint64(v)
}

// Next returns the next free block in the same class as the free
// block whose header is at h, or 0 if h is the tail of its list.
func Next(mem []byte, h uintptr) uintptr {
	nextOff, _ := linkOffsets(h)
	return readLink(mem, nextOff)
}

// Prev returns the previous free block in the same class as the free
// block whose header is at h, or 0 if h is the head of its list.
func Prev(mem []byte, h uintptr) uintptr {
	_, prevOff := linkOffsets(h)
	return readLink(mem, prevOff)
}

// Insert pushes the free block at header offset h onto the head of
// class i (LIFO, per spec.md §4.2's rationale: the block just freed
// is the most likely to refit the next similarly sized request).
func (x *Index) Insert(mem []byte, h uintptr, i int) {
	nextOff, prevOff := linkOffsets(h)
	oldHead := x.heads[i]
	writeLink(mem, nextOff, oldHead)
	writeLink(mem, prevOff, 0)
	if oldHead != 0 {
		_, oldHeadPrevOff := linkOffsets(oldHead)
		writeLink(mem, oldHeadPrevOff, h)
	}
	x.heads[i] = h
}

// Remove unlinks the free block at header offset h from class i. The
// caller must pass the class h actually occupies; Remove never
// recomputes the class from the block's header.
func (x *Index) Remove(mem []byte, h uintptr, i int) {
	nextOff, prevOff := linkOffsets(h)
	next := readLink(mem, nextOff)
	prev := readLink(mem, prevOff)

	if prev != 0 {
		pNextOff, _ := linkOffsets(prev)
		writeLink(mem, pNextOff, next)
	} else {
		x.heads[i] = next
	}
	if next != 0 {
		_, nPrevOff := linkOffsets(next)
		writeLink(mem, nPrevOff, prev)
	}
}
