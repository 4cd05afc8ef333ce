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

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
	"github.com/poiesic/storekit/storage"
)

const (
	outcomeCommitted    = "committed"
	outcomeAborted      = "aborted"
	outcomeError        = "error"
	outcomeRequestError = "request_error"
	outcomeOpError      = "op_error"
	outcomeCanceled     = "canceled"
	outcomePanic        = "panic"

	outcomeOpened = "opened"
	outcomeFailed = "failed"
)

// transactionCounter returns the counter for one mode/outcome pair.
func transactionCounter(mode storage.TxMode, outcome string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`storekit_transactions_total{mode=%q,outcome=%q}`, mode.String(), outcome))
}

func openCounter(outcome string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`storekit_open_total{outcome=%q}`, outcome))
}
