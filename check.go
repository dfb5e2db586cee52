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

package segheap

import (
	"encoding/binary"
	"unsafe"

	"github.com/bytedance/gopkg/util/xxhash3"

	"github.com/cloudwego/segheap/internal/blkhdr"
	"github.com/cloudwego/segheap/internal/segfit"
	"github.com/cloudwego/segheap/stats"
)

// Check walks the whole heap once, verifying invariants I1-I6 of
// spec.md §8, and returns a stats.Report. It is read-only and
// optional - never called from Alloc/Free/Realloc/Calloc unless
// Option.CheckAfterEachCall asked for it. line is a caller-supplied
// source location, logged alongside any violation, mirroring how
// cznic-exp/lldb plumbs a line number through its own Verify.
func (a *Allocator) Check(line int) (bool, stats.Report) {
	mem := a.p.Bytes()
	var rep stats.Report
	ok := true

	violate := func(format string, args ...interface{}) {
		ok = false
		if a.opt.Logger != nil {
			a.opt.Logger.Printf("segheap: check(%d): "+format, append([]interface{}{line}, args...)...)
		}
	}

	headerWords := make([]byte, 0, 512)
	var word [8]byte

	prevAllocExpected := true // the leftmost real block's P must read 1 (prologue trick)
	prevWasFree := false
	lastOff := a.p.Low()
	off := a.p.Low() + blkhdr.WordSize

	for off < a.p.High() {
		h := blkhdr.Read(mem, off)
		size := h.Size()

		if (size-8)%16 != 0 || size < minPayload {
			violate("block at %d has unlawful size %d", off, size)
			break
		}
		if h.PrevAlloc() != prevAllocExpected {
			violate("block at %d has P=%v, want %v", off, h.PrevAlloc(), prevAllocExpected)
		}
		if !h.Alloc() && prevWasFree {
			violate("block at %d is free and follows a free block", off)
		}

		binary.LittleEndian.PutUint64(word[:], uint64(h))
		headerWords = append(headerWords, word[:]...)

		payloadOff := blkhdr.Payload(off)
		if uintptr(unsafe.Pointer(&mem[payloadOff]))%16 != 0 {
			violate("block at %d has misaligned payload", off)
		}

		if h.Alloc() {
			rep.AllocBlocks++
			rep.AllocBytes += int64(size)
		} else {
			rep.FreeBlocks++
			rep.FreeBytes += int64(size)
			cls := segfit.ClassFor(size)
			rep.FreeByClass[cls]++

			foot := blkhdr.Read(mem, blkhdr.Footer(off, size))
			if foot.Size() != size {
				violate("free block at %d has footer size %d, want %d", off, foot.Size(), size)
			}
		}

		prevAllocExpected = h.Alloc()
		prevWasFree = !h.Alloc()
		lastOff = off
		off = blkhdr.NextHeader(off, size)
	}
	if off != a.p.High() {
		violate("heap walk ended at %d, want %d (tiling broken)", off, a.p.High())
	}

	rep.TotalBlocks = rep.AllocBlocks + rep.FreeBlocks
	if rep.TotalBlocks == 0 {
		if a.tail != a.p.Low() {
			violate("tail anchor is %d on an empty heap, want %d", a.tail, a.p.Low())
		}
	} else if lastOff != a.tail {
		violate("tail anchor is %d, want %d", a.tail, lastOff)
	}

	for i := 0; i < segfit.NumClasses; i++ {
		var count int64
		for node := a.idx.Head(i); node != 0; node = segfit.Next(mem, node) {
			sz := blkhdr.Read(mem, node).Size()
			if segfit.ClassFor(sz) != i {
				violate("block at %d (size %d) sits in list %d, wants list %d", node, sz, i, segfit.ClassFor(sz))
			}
			count++
		}
		if count != rep.FreeByClass[i] {
			violate("list %d has %d entries, heap walk found %d free blocks of that class", i, count, rep.FreeByClass[i])
		}
	}

	rep.Digest = xxhash3.Hash(headerWords)
	return ok, rep
}
