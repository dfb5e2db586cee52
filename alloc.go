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
	"fmt"
	"unsafe"

	"github.com/bytedance/gopkg/lang/mcache"

	"github.com/cloudwego/segheap/internal/blkhdr"
	"github.com/cloudwego/segheap/internal/segfit"
	"github.com/cloudwego/segheap/provider"
)

// minPayload is the smallest payload a block can hold: an 8-byte next
// link, an 8-byte prev link, and an 8-byte footer.
const minPayload = 24

// minSplitLeftover is the smallest leftover, after carving a request
// out of a free block, worth turning into its own free block (a
// header plus minPayload).
const minSplitLeftover = blkhdr.WordSize + minPayload

// Allocator is the top-level entry point: Alloc, Free, Realloc,
// Calloc and Check. It owns one provider.Provider exclusively and
// keeps all state (free-list heads, tail anchor) unsynchronized - see
// doc.go.
type Allocator struct {
	p    provider.Provider
	idx  segfit.Index
	tail uintptr // header offset of the highest-address block, or Low() if the heap holds only the prologue
	opt  Option
}

// NewAllocator wires an Allocator to p, writing the 8-byte prologue
// word (spec.md §2/§6's Init). p must be fresh - NewAllocator assumes
// it owns the whole of p from Low() onward.
func NewAllocator(p provider.Provider, opt *Option) (*Allocator, error) {
	if p == nil {
		return nil, fmt.Errorf("segheap: provider must not be nil")
	}
	a := &Allocator{p: p, opt: opt.withDefaults()}

	low := p.Low()
	old, ok := p.Extend(blkhdr.WordSize)
	if !ok {
		return nil, fmt.Errorf("segheap: provider failed to extend for the prologue word")
	}
	if old != low {
		return nil, fmt.Errorf("segheap: provider is not fresh: Extend returned %d, want %d", old, low)
	}

	mem := p.Bytes()
	blkhdr.Write(mem, old, blkhdr.Pack(0, true, true))
	a.tail = old
	return a, nil
}

func quantize(size uint64) uint64 {
	if size <= minPayload {
		return minPayload
	}
	k := (size - minPayload + 15) / 16
	return minPayload + 16*k
}

// Alloc services a variable-sized allocation request (spec.md §4.3).
// It returns nil for a zero-byte request or on out-of-memory.
func (a *Allocator) Alloc(size int) []byte {
	if size <= 0 {
		return nil
	}
	buf := a.alloc(size)
	a.maybeSelfCheck()
	return buf
}

func (a *Allocator) alloc(size int) []byte {
	q := quantize(uint64(size))
	mem := a.p.Bytes()

	if block, class, found := a.findFit(mem, q); found {
		return a.place(mem, block, class, q, size)
	}
	return a.extendAndPlace(size, q)
}

// findFit implements spec.md §4.3 step 3: first-fit within a class
// for classes that hold more than one size, otherwise an exact head
// check, promoting to the next class on a miss.
func (a *Allocator) findFit(mem []byte, q uint64) (block uintptr, class int, found bool) {
	start := segfit.ClassFor(q)
	for i := start; i < segfit.NumClasses; i++ {
		if i <= 3 {
			if h := a.idx.Head(i); h != 0 {
				return h, i, true
			}
			continue
		}
		for off := a.idx.Head(i); off != 0; off = segfit.Next(mem, off) {
			if blkhdr.Read(mem, off).Size() >= q {
				return off, i, true
			}
		}
	}
	return 0, 0, false
}

// place carves q bytes out of the free block at b (found in class),
// splitting the remainder into a new free block when worthwhile, and
// returns the caller-visible payload (spec.md §4.3 step 4).
func (a *Allocator) place(mem []byte, b uintptr, class int, q uint64, reqSize int) []byte {
	a.idx.Remove(mem, b, class)

	h := blkhdr.Read(mem, b)
	blockSize := h.Size()
	leftover := blockSize - q

	if leftover >= minSplitLeftover {
		blkhdr.Write(mem, b, blkhdr.Pack(q, true, h.PrevAlloc()))

		r := blkhdr.NextHeader(b, q)
		rSize := leftover - blkhdr.WordSize
		rHeader := blkhdr.Pack(rSize, false, true)
		blkhdr.Write(mem, r, rHeader)
		blkhdr.Write(mem, blkhdr.Footer(r, rSize), blkhdr.Pack(rSize, false, false))
		a.idx.Insert(mem, r, segfit.ClassFor(rSize))

		if b == a.tail {
			a.tail = r
		}
	} else {
		blkhdr.Write(mem, b, blkhdr.Pack(blockSize, true, h.PrevAlloc()))
		if b != a.tail {
			nh := blkhdr.NextHeader(b, blockSize)
			blkhdr.SetPrevAlloc(mem, nh, true)
		}
	}

	return payloadSlice(mem, b, q, reqSize)
}

// extendAndPlace implements spec.md §4.3 step 5: grow the heap by
// exactly what's needed for one new block.
func (a *Allocator) extendAndPlace(reqSize int, q uint64) []byte {
	mem := a.p.Bytes()
	prevAlloc := blkhdr.Read(mem, a.tail).Alloc()

	oldHigh, ok := a.p.Extend(int(blkhdr.WordSize + q))
	if !ok {
		if a.opt.Logger != nil {
			a.opt.Logger.Printf("segheap: provider exhausted extending for %d bytes", q)
		}
		return nil
	}

	mem = a.p.Bytes()
	blkhdr.Write(mem, oldHigh, blkhdr.Pack(q, true, prevAlloc))
	a.tail = oldHigh

	return payloadSlice(mem, oldHigh, q, reqSize)
}

// payloadSlice returns the caller-visible slice for a block: len equal
// to the request, cap bounded to the block's own payload size. Built
// with unsafe.Slice the same way unsafex/malloc.BuddyAllocator.Alloc
// does, rather than a two-index reslice of mem - mem[off:off+blockSize]
// would carry the whole remaining arena capacity as cap, letting an
// append past len write straight into the next block's header.
func payloadSlice(mem []byte, h uintptr, blockSize uint64, reqSize int) []byte {
	off := blkhdr.Payload(h)
	ptr := unsafe.Add(unsafe.Pointer(&mem[0]), off)
	return unsafe.Slice((*byte)(ptr), blockSize)[:reqSize]
}

// Free releases a previously allocated payload (spec.md §4.4). A nil
// or zero-length payload, or any pointer outside [lo, hi), is a
// documented no-op; releasing an interior pointer or double-freeing a
// block is undefined behavior per spec.md §7 and is not detected.
func (a *Allocator) Free(payload []byte) {
	if len(payload) == 0 {
		return
	}
	mem := a.p.Bytes()
	dataOff, ok := offsetOf(mem, payload)
	if !ok {
		return
	}
	if dataOff < blkhdr.WordSize || dataOff >= a.p.High() {
		return
	}
	a.free(mem, dataOff-blkhdr.WordSize)
	a.maybeSelfCheck()
}

// free runs the four coalescing cases of spec.md §4.4 for the block
// whose header is at h.
func (a *Allocator) free(mem []byte, h uintptr) {
	size := blkhdr.Read(mem, h).Size()

	nextFree := false
	if h != a.tail {
		nh := blkhdr.NextHeader(h, size)
		nextFree = !blkhdr.Read(mem, nh).Alloc()
	}
	prevFree := !blkhdr.Read(mem, h).PrevAlloc()

	var surv uintptr
	var survSize uint64

	switch {
	case prevFree && nextFree:
		prevFooterSize := blkhdr.Read(mem, blkhdr.PrevFooter(h)).Size()
		l := blkhdr.PrevHeader(h, prevFooterSize)
		r := blkhdr.NextHeader(h, size)
		rSize := blkhdr.Read(mem, r).Size()
		lSize := blkhdr.Read(mem, l).Size()

		a.idx.Remove(mem, l, segfit.ClassFor(lSize))
		a.idx.Remove(mem, r, segfit.ClassFor(rSize))

		survSize = lSize + size + rSize + 16
		lP := blkhdr.Read(mem, l).PrevAlloc()
		blkhdr.Write(mem, l, blkhdr.Pack(survSize, false, lP))
		blkhdr.Write(mem, blkhdr.Footer(l, survSize), blkhdr.Pack(survSize, false, false))
		if r == a.tail {
			a.tail = l
		}
		surv = l

	case nextFree:
		nh := blkhdr.NextHeader(h, size)
		nSize := blkhdr.Read(mem, nh).Size()
		a.idx.Remove(mem, nh, segfit.ClassFor(nSize))

		survSize = size + nSize + blkhdr.WordSize
		hP := blkhdr.Read(mem, h).PrevAlloc()
		blkhdr.Write(mem, h, blkhdr.Pack(survSize, false, hP))
		blkhdr.Write(mem, blkhdr.Footer(h, survSize), blkhdr.Pack(survSize, false, false))
		if nh == a.tail {
			a.tail = h
		}
		surv = h

	case prevFree:
		prevFooterSize := blkhdr.Read(mem, blkhdr.PrevFooter(h)).Size()
		l := blkhdr.PrevHeader(h, prevFooterSize)
		lSize := blkhdr.Read(mem, l).Size()
		a.idx.Remove(mem, l, segfit.ClassFor(lSize))

		survSize = lSize + size + blkhdr.WordSize
		lP := blkhdr.Read(mem, l).PrevAlloc()
		blkhdr.Write(mem, l, blkhdr.Pack(survSize, false, lP))
		blkhdr.Write(mem, blkhdr.Footer(l, survSize), blkhdr.Pack(survSize, false, false))
		if h == a.tail {
			a.tail = l
		} else {
			nh := blkhdr.NextHeader(h, size)
			blkhdr.SetPrevAlloc(mem, nh, false)
		}
		surv = l

	default:
		survSize = size
		hP := blkhdr.Read(mem, h).PrevAlloc()
		blkhdr.Write(mem, h, blkhdr.Pack(survSize, false, hP))
		blkhdr.Write(mem, blkhdr.Footer(h, survSize), blkhdr.Pack(survSize, false, false))
		if h != a.tail {
			nh := blkhdr.NextHeader(h, size)
			blkhdr.SetPrevAlloc(mem, nh, false)
		}
		surv = h
	}

	a.idx.Insert(mem, surv, segfit.ClassFor(survSize))
}

// Realloc implements spec.md §4.5: alloc if old is nil, free-and-nil
// if newSize is zero, otherwise alloc-copy-free.
func (a *Allocator) Realloc(oldPayload []byte, newSize int) []byte {
	if oldPayload == nil {
		return a.Alloc(newSize)
	}
	if newSize == 0 {
		a.Free(oldPayload)
		return nil
	}
	newBuf := a.Alloc(newSize)
	if newBuf == nil {
		return nil
	}
	n := len(oldPayload)
	if newSize < n {
		n = newSize
	}
	copy(newBuf, oldPayload[:n])
	a.Free(oldPayload)
	return newBuf
}

// Calloc implements spec.md §4.5's zero-fill variant: count*size
// bytes, allocated and zeroed. Overflow in the multiplication is
// treated as an allocation failure (nil), matching the spec's
// contract that invalid sizes simply fail rather than corrupt state.
func (a *Allocator) Calloc(count, size int) []byte {
	if count < 0 || size < 0 {
		return nil
	}
	total := count * size
	if size != 0 && total/size != count {
		return nil
	}
	buf := a.Alloc(total)
	if buf == nil {
		return nil
	}
	zeroFill(buf)
	return buf
}

// zeroFill zeros buf using a doubling copy seeded from a small
// mcache-borrowed chunk, rather than a byte-by-byte loop: one cold
// zeroing pass over a small buffer, then bulk copies whose size
// doubles each round. mcache gives the seed chunk the same way
// bufiox/defaultbuf.go borrows its read-ahead buffer from mcache.
func zeroFill(buf []byte) {
	if len(buf) == 0 {
		return
	}
	const seedSize = 4096
	chunk := mcache.Malloc(seedSize)
	defer mcache.Free(chunk)
	for i := range chunk {
		chunk[i] = 0
	}

	n := copy(buf, chunk)
	for n < len(buf) {
		n += copy(buf[n:], buf[:n])
	}
}

type sliceHeader struct {
	Data unsafe.Pointer
	Len  int
	Cap  int
}

// offsetOf returns payload's byte offset within mem, computed from
// raw pointers the same way unsafex/malloc.BuddyAllocator.Free and
// cache/mempool.Free locate their own headers - except here the
// underflow case is checked explicitly rather than relied on to wrap
// into an out-of-range value.
func offsetOf(mem []byte, payload []byte) (uintptr, bool) {
	if len(mem) == 0 {
		return 0, false
	}
	base := uintptr(unsafe.Pointer(&mem[0]))
	p := uintptr((*sliceHeader)(unsafe.Pointer(&payload)).Data)
	if p < base {
		return 0, false
	}
	return p - base, true
}

func (a *Allocator) maybeSelfCheck() {
	if !a.opt.CheckAfterEachCall {
		return
	}
	if ok, _ := a.Check(0); !ok && a.opt.Logger != nil {
		a.opt.Logger.Printf("segheap: self-check failed after call")
	}
}
