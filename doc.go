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

// Package segheap is a single-threaded dynamic storage allocator over
// one contiguous, monotonically-growable byte region supplied by a
// provider.Provider.
//
// Every block carries an 8-byte header (size plus two status bits);
// free blocks additionally carry a footer and intrusive next/prev
// links inside their own payload, and are indexed by one of 15
// segregated size classes for near-constant-time placement. See
// DESIGN.md and SPEC_FULL.md for the full design.
//
// An Allocator is not safe for concurrent use - same contract as
// bytedance/gopkg's mcache, except mcache serializes internally with
// a sync.Pool and Allocator deliberately does not, because spec.md
// rules out thread safety as a goal.
package segheap
