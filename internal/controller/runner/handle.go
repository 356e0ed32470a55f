// Copyright 2025 Tom Barlow
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

package runner

import "context"

// Handle is what the starter of a run holds: the run's read-only signal and
// a Cancel that can only reach this run.
type Handle struct {
	id  string
	ctx context.Context
	reg *Registry
}

// ID returns the run ID.
func (h *Handle) ID() string { return h.id }

// Context returns the run's cancellation signal. It is done once the run is
// cancelled or reaped, and never otherwise.
func (h *Handle) Context() context.Context { return h.ctx }

// Done is shorthand for Context().Done().
func (h *Handle) Done() <-chan struct{} { return h.ctx.Done() }

// Err returns the reason the signal fired, or nil while it has not.
func (h *Handle) Err() error { return context.Cause(h.ctx) }

// UpdateAgent sets this run's current stage. It does nothing once the ID
// belongs to a newer run or the record was evicted.
func (h *Handle) UpdateAgent(agent int) {
	h.reg.updateAgent(h.id, h.ctx, agent)
}

// Complete settles this run with status, as Registry.Complete does, but
// never touches a newer run that reused the ID.
func (h *Handle) Complete(status RunStatus) {
	h.reg.finish(h.id, h.ctx, status, nil)
}

// Fail moves this run to failed with err as the reason, as Registry.Fail
// does, but never touches a newer run that reused the ID.
func (h *Handle) Fail(err error) {
	h.reg.finish(h.id, h.ctx, RunStatusFailed, err)
}

// Cancel cancels the run if it is still running. It returns false when the
// run already finished, was evicted, or its ID has since been reused by a
// newer run.
func (h *Handle) Cancel() bool {
	return h.reg.cancel(h.id, h.ctx)
}
