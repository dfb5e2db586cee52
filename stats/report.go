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

// Package stats holds the self-audit report Allocator.Check produces.
// The field shape is modeled on lldb.AllocStats from cznic-exp's
// lldb package, which a Filer-backed allocator fills in on a
// successful Verify - same idea here, one level up, over an in-
// process byte arena instead of a file.
package stats

// Report summarizes one Allocator.Check pass.
type Report struct {
	// TotalBlocks is AllocBlocks + FreeBlocks.
	TotalBlocks int64

	// AllocBytes is the sum of allocated blocks' payload sizes.
	AllocBytes int64

	// AllocBlocks is the number of allocated blocks.
	AllocBlocks int64

	// FreeBytes is the sum of free blocks' payload sizes.
	FreeBytes int64

	// FreeBlocks is the number of free blocks.
	FreeBlocks int64

	// FreeByClass[i] is the number of free blocks in segregated
	// class i, in heap-walk order (not list order).
	FreeByClass [15]int64

	// Digest is a structural checksum of the heap's header words,
	// computed with xxhash3. Two heaps with the same Digest have the
	// same sequence of block sizes and alloc/free flags; it says
	// nothing about payload content.
	Digest uint64
}
