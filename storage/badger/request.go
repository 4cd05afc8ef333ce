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

package badger

import (
	"sync"

	"github.com/poiesic/storekit/storage"
)

// request is the engine's storage.Request. It settles once; later settle calls are ignored.
type request struct {
	mu        sync.Mutex
	settled   bool
	result    any
	err       error
	onSuccess []func(any)
	onError   []func(error)
	done      chan struct{}
}

var _ storage.Request = (*request)(nil)

func newRequest() *request {
	return &request{done: make(chan struct{})}
}

// failedRequest returns a request that has already failed with err.
func failedRequest(err error) *request {
	r := newRequest()
	r.settle(nil, err)
	return r
}

func (r *request) OnSuccess(fn func(result any)) {
	r.mu.Lock()
	if !r.settled {
		r.onSuccess = append(r.onSuccess, fn)
		r.mu.Unlock()
		return
	}
	result, err := r.result, r.err
	r.mu.Unlock()
	if err == nil {
		fn(result)
	}
}

func (r *request) OnError(fn func(err error)) {
	r.mu.Lock()
	if !r.settled {
		r.onError = append(r.onError, fn)
		r.mu.Unlock()
		return
	}
	err := r.err
	r.mu.Unlock()
	if err != nil {
		fn(err)
	}
}

func (r *request) Done() <-chan struct{} {
	return r.done
}

func (r *request) Result() (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.err
}

// settle records the outcome, runs the matching handlers and closes Done.
func (r *request) settle(result any, err error) bool {
	r.mu.Lock()
	if r.settled {
		r.mu.Unlock()
		return false
	}
	r.settled = true
	r.result, r.err = result, err
	onSuccess, onError := r.onSuccess, r.onError
	r.onSuccess, r.onError = nil, nil
	r.mu.Unlock()

	if err == nil {
		for _, fn := range onSuccess {
			fn(result)
		}
	} else {
		for _, fn := range onError {
			fn(err)
		}
	}
	close(r.done)
	return true
}
