// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dbcontext

import "sync"

// Awaitable is a pending result. storage.Request satisfies it, as does *Future.
type Awaitable interface {
	// Done is closed once the result is available.
	Done() <-chan struct{}

	// Result returns the value or error. Only meaningful after Done is closed.
	Result() (any, error)
}

// Future is an Awaitable settled by hand. It settles exactly once; later
// Resolve or Reject calls are ignored.
type Future struct {
	once sync.Once
	done chan struct{}
	val  any
	err  error
}

var _ Awaitable = (*Future)(nil)

func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Go runs fn on a new goroutine and returns a future for its outcome.
func Go(fn func() (any, error)) *Future {
	f := NewFuture()
	go func() {
		v, err := fn()
		if err != nil {
			f.Reject(err)
			return
		}
		f.Resolve(v)
	}()
	return f
}

// Resolve settles the future with a value. It reports whether this call settled it.
func (f *Future) Resolve(v any) bool {
	return f.settle(v, nil)
}

// Reject settles the future with an error. It reports whether this call settled it.
func (f *Future) Reject(err error) bool {
	return f.settle(nil, err)
}

func (f *Future) settle(v any, err error) bool {
	settled := false
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
		settled = true
	})
	return settled
}

func (f *Future) Done() <-chan struct{} {
	return f.done
}

func (f *Future) Result() (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	default:
		return nil, nil
	}
}
