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

/*
Package runner tracks pipeline runs for the controller.

The Registry is the source of truth for in-flight and recently finished
runs. Each run owns a cancellation source; callers only ever see the
read-only side of it as a context.Context.

# Key Types

  - Registry: in-memory map of run ID to run record
  - Handle: the starter's view of a run (signal plus a narrow Cancel)
  - RunSnapshot: immutable copy of a run returned to callers
  - Reaper: background sweep that fails runs older than the stale threshold
  - Executor: drives a run through its agent stages

# Lifecycle

	running --UpdateAgent--> running
	running --Cancel--> cancelled
	running --Complete--> completed | failed
	running --CleanupStale--> failed (signal fired, evicted immediately)

Terminal statuses never change. A terminal run stays queryable for the
configured eviction delay and is then removed. Calling Complete again on a
terminal run restarts that delay; there is never more than one pending
eviction per run.

# Usage

	reg := runner.NewRegistry(runner.DefaultConfig(), runner.WithLogger(logger))

	h := reg.Start("")
	defer h.Complete(runner.RunStatusCompleted)

	for i, stage := range stages {
	    h.UpdateAgent(i + 1)
	    if err := stage(h.Context()); err != nil {
	        ...
	    }
	}

Settling through the handle only ever touches the record Start created,
even after the ID is reused by a newer run.

Cancel from elsewhere:

	if !reg.Cancel(runID) {
	    // unknown or already finished
	}
*/
package runner
