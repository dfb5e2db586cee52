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

// Package provider is the external heap-provider collaborator
// described in spec.md §6: the allocator only ever asks it for the
// current bounds or for more bytes at the end. Everything about how
// those bytes are actually backed - a single growable slice here, a
// real sbrk/mmap elsewhere - is outside the allocator's concern.
package provider

// Provider is the contract the allocator core consumes. Low is
// constant for the life of a Provider; High only ever grows.
type Provider interface {
	// Low returns the heap's base offset.
	Low() uintptr

	// High returns the heap's current end offset.
	High() uintptr

	// Extend grows the heap by n bytes and returns the previous High
	// (the offset the new bytes start at), or ok=false if the
	// provider cannot grow further. On failure the provider's state
	// is unchanged.
	Extend(n int) (oldHigh uintptr, ok bool)

	// Bytes returns the provider's current backing storage. The
	// returned slice aliases the provider's memory and MUST be
	// re-fetched after any Extend call - a growing provider is free
	// to relocate its backing array.
	Bytes() []byte
}
