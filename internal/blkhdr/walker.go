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

package blkhdr

// All offsets here are byte offsets from the start of the heap's
// backing bytes (what spec.md calls the boundary-tag walker). None of
// them touch memory: Footer, NextHeader and PrevHeader take the size
// they need to step over a payload as an argument, which the caller
// reads from a header or footer word.

// Payload returns the offset of the first payload byte of the block
// whose header is at h.
func Payload(h uintptr) uintptr { return h + WordSize }

// Footer returns the offset of the footer word of the block whose
// header is at h and whose payload size is size. Only meaningful for
// free blocks, which are the only ones that carry a footer.
func Footer(h uintptr, size uint64) uintptr { return h + size }

// NextHeader returns the offset of the header immediately following
// the block whose header is at h and whose payload size is size.
func NextHeader(h uintptr, size uint64) uintptr { return h + WordSize + size }

// PrevFooter returns the offset of the previous block's footer. Only
// valid when Read(mem, h).PrevAlloc() is false.
func PrevFooter(h uintptr) uintptr { return h - WordSize }

// PrevHeader returns the offset of the previous block's header, given
// the size recorded in that block's footer. Only valid when
// Read(mem, h).PrevAlloc() is false.
func PrevHeader(h uintptr, prevFooterSize uint64) uintptr {
	return h - WordSize - prevFooterSize
}
