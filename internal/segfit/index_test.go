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

package segfit

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassFor(t *testing.T) {
	tests := []struct {
		size  uint64
		class int
	}{
		{24, 0},
		{40, 1},
		{56, 2},
		{72, 3},
		{88, 4}, {104, 4},
		{120, 5}, {136, 5},
		{152, 6}, {264, 6},
		{280, 7}, {520, 7},
		{536, 8}, {1032, 8},
		{1048, 9}, {2056, 9},
		{2072, 10}, {4104, 10},
		{4120, 11}, {8200, 11},
		{8216, 12}, {16392, 12},
		{16408, 13}, {32776, 13},
		{32792, 14}, {1 << 20, 14},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.class, ClassFor(tt.size), "size=%d", tt.size)
	}
}

// newFreeBlock writes a minimal free-block header at off so Insert/
// Remove have somewhere to stash their link words.
func newFreeBlock(mem []byte, off uintptr, size uint64) {
	*(*uint64)(unsafe.Add(unsafe.Pointer(&mem[0]), off)) = size &^ 0x7
}

func TestInsertRemoveLIFO(t *testing.T) {
	mem := make([]byte, 512)
	var idx Index

	newFreeBlock(mem, 8, 24)
	newFreeBlock(mem, 40, 24)
	newFreeBlock(mem, 72, 24)

	idx.Insert(mem, 8, 0)
	idx.Insert(mem, 40, 0)
	idx.Insert(mem, 72, 0)

	require.Equal(t, uintptr(72), idx.Head(0))
	assert.Equal(t, uintptr(40), Next(mem, 72))
	assert.Equal(t, uintptr(8), Next(mem, 40))
	assert.Equal(t, uintptr(0), Next(mem, 8))

	idx.Remove(mem, 40, 0)
	assert.Equal(t, uintptr(8), Next(mem, 72))
	assert.Equal(t, uintptr(72), Prev(mem, 8))

	idx.Remove(mem, 72, 0)
	require.Equal(t, uintptr(8), idx.Head(0))
	assert.Equal(t, uintptr(0), Prev(mem, 8))

	idx.Remove(mem, 8, 0)
	require.Equal(t, uintptr(0), idx.Head(0))
}
