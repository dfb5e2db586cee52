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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/segheap/internal/segfit"
	"github.com/cloudwego/segheap/provider"
)

func newTestAllocator(t *testing.T, maxBytes int) *Allocator {
	t.Helper()
	a, err := NewAllocator(provider.NewArena(maxBytes), nil)
	require.NoError(t, err)
	return a
}

func TestInitLeavesAnEmptyConsistentHeap(t *testing.T) {
	a := newTestAllocator(t, 0)
	ok, rep := a.Check(0)
	require.True(t, ok)
	assert.Zero(t, rep.TotalBlocks)
}

func TestAllocZeroReturnsNil(t *testing.T) {
	a := newTestAllocator(t, 0)
	assert.Nil(t, a.Alloc(0))
}

func TestAllocReturnsAlignedPayload(t *testing.T) {
	a := newTestAllocator(t, 0)
	for _, sz := range []int{1, 24, 25, 100, 4096} {
		p := a.Alloc(sz)
		require.NotNil(t, p)
		assert.Len(t, p, sz)
	}
	ok, _ := a.Check(0)
	require.True(t, ok)
}

// Scenario 1 (spec.md §8): two small allocations, free the first, then
// a big allocation that extends the heap; list 0 must still hold
// exactly the freed block.
func TestScenarioSplitAndExtend(t *testing.T) {
	a := newTestAllocator(t, 0)
	p1 := a.Alloc(24)
	_ = a.Alloc(24)
	a.Free(p1)

	mem := a.p.Bytes()
	require.NotZero(t, a.idx.Head(0))
	assert.Zero(t, segfit.Next(mem, a.idx.Head(0)))

	q := a.Alloc(2048)
	require.NotNil(t, q)

	mem = a.p.Bytes()
	require.NotZero(t, a.idx.Head(0))
	assert.Zero(t, segfit.Next(mem, a.idx.Head(0)))
	ok, _ := a.Check(0)
	require.True(t, ok)
}

// Scenario 2: coalesce-both. Four 40-byte blocks; freeing the outer
// two then the middle one must merge all three into one 136-byte
// free block (class 5) and delist every participant.
func TestScenarioCoalesceBoth(t *testing.T) {
	a := newTestAllocator(t, 0)
	aP := a.Alloc(40)
	bP := a.Alloc(40)
	cP := a.Alloc(40)
	_ = a.Alloc(40)

	a.Free(aP)
	a.Free(cP)
	a.Free(bP)

	ok, rep := a.Check(0)
	require.True(t, ok)
	assert.EqualValues(t, 1, rep.FreeBlocks)
	assert.EqualValues(t, 136, rep.FreeBytes)
	assert.EqualValues(t, 1, rep.FreeByClass[segfit.ClassFor(136)])
}

// Scenario 3: split on reuse. A 200-byte block, once freed and
// reallocated at 40 bytes, must split into a 40-byte allocated block
// and a 152-byte free remainder (class 6).
func TestScenarioSplitOnReuse(t *testing.T) {
	a := newTestAllocator(t, 0)
	big := a.Alloc(200)
	a.Free(big)

	small := a.Alloc(40)
	require.NotNil(t, small)
	assert.Len(t, small, 40)

	ok, rep := a.Check(0)
	require.True(t, ok)
	require.EqualValues(t, 1, rep.FreeBlocks)
	assert.EqualValues(t, 152, rep.FreeBytes)
	assert.EqualValues(t, 1, rep.FreeByClass[segfit.ClassFor(152)])
}

// Scenario 4: resize grow preserves content and leaves the old block
// free (possibly coalesced).
func TestScenarioResizeGrow(t *testing.T) {
	a := newTestAllocator(t, 0)
	p := a.Alloc(24)
	for i := range p {
		p[i] = 0xAB
	}

	q := a.Realloc(p, 100)
	require.NotNil(t, q)
	require.Len(t, q, 100)
	for i := 0; i < 24; i++ {
		assert.Equal(t, byte(0xAB), q[i])
	}

	ok, _ := a.Check(0)
	require.True(t, ok)
}

// Scenario 5: resize shrink preserves the retained prefix.
func TestScenarioResizeShrink(t *testing.T) {
	a := newTestAllocator(t, 0)
	p := a.Alloc(100)
	for i := range p {
		p[i] = byte(i)
	}

	q := a.Realloc(p, 16)
	require.NotNil(t, q)
	require.Len(t, q, 16)
	for i := 0; i < 16; i++ {
		assert.Equal(t, byte(i), q[i])
	}

	ok, _ := a.Check(0)
	require.True(t, ok)
}

// Scenario 6: exhaustion against a capped provider returns nil but
// leaves the heap invariant-consistent, and subsequent frees still
// coalesce.
func TestScenarioExhaustion(t *testing.T) {
	a := newTestAllocator(t, 8+32*4) // room for exactly four 32-byte blocks (8-byte header + 24-byte payload)
	var ps [][]byte
	for i := 0; i < 4; i++ {
		p := a.Alloc(24)
		require.NotNil(t, p)
		ps = append(ps, p)
	}
	require.Nil(t, a.Alloc(24))

	ok, _ := a.Check(0)
	require.True(t, ok)

	a.Free(ps[0])
	a.Free(ps[1])
	ok, rep := a.Check(0)
	require.True(t, ok)
	assert.EqualValues(t, 1, rep.FreeBlocks)
}

func TestReleaseOfNilAndOutOfRangeIsNoOp(t *testing.T) {
	a := newTestAllocator(t, 0)
	a.Free(nil)
	a.Free([]byte{})
	a.Free(make([]byte, 32)) // a slice this allocator never produced

	ok, _ := a.Check(0)
	require.True(t, ok)
}

func TestRoundTripRestoresConsistentState(t *testing.T) {
	a := newTestAllocator(t, 0)
	okBefore, repBefore := a.Check(0)
	require.True(t, okBefore)

	for _, sz := range []int{24, 40, 128, 1000} {
		p := a.Alloc(sz)
		require.NotNil(t, p)
		a.Free(p)
	}

	okAfter, repAfter := a.Check(0)
	require.True(t, okAfter)
	assert.Equal(t, repBefore.TotalBlocks, repAfter.TotalBlocks)
}

func TestReallocOfNilBehavesAsAlloc(t *testing.T) {
	a := newTestAllocator(t, 0)
	p := a.Realloc(nil, 64)
	require.NotNil(t, p)
	assert.Len(t, p, 64)
}

func TestReallocToZeroBehavesAsFree(t *testing.T) {
	a := newTestAllocator(t, 0)
	p := a.Alloc(64)
	require.Nil(t, a.Realloc(p, 0))

	ok, rep := a.Check(0)
	require.True(t, ok)
	assert.EqualValues(t, 1, rep.FreeBlocks)
}

func TestCallocZeroesAndMultiplies(t *testing.T) {
	a := newTestAllocator(t, 0)
	buf := a.Calloc(8, 32)
	require.Len(t, buf, 256)
	for _, b := range buf {
		assert.Zero(t, b)
	}
}

func TestCallocOverflowReturnsNil(t *testing.T) {
	a := newTestAllocator(t, 0)
	assert.Nil(t, a.Calloc(1<<62, 1<<62))
}
