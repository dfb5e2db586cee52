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

import "log"

// Option configures an Allocator. Modeled on
// concurrency/gopool.Option/DefaultOption from the original gopkg: a
// plain struct of tuning knobs passed at construction time, never
// read from flags or the environment.
type Option struct {
	// CheckAfterEachCall runs Check after every Alloc/Free/Realloc/
	// Calloc and logs any invariant violation. It walks the whole
	// heap, so it's a debug-build knob, not something to leave on in
	// production use.
	CheckAfterEachCall bool

	// Logger receives diagnostic output from Check failures and from
	// provider Extend failures. Defaults to log.Default().
	Logger *log.Logger
}

// DefaultOption returns an Option with conservative defaults: no
// per-call self-audit, logging to log.Default().
func DefaultOption() *Option {
	return &Option{
		CheckAfterEachCall: false,
		Logger:             log.Default(),
	}
}

func (o *Option) withDefaults() Option {
	if o == nil {
		return *DefaultOption()
	}
	out := *o
	if out.Logger == nil {
		out.Logger = log.Default()
	}
	return out
}
