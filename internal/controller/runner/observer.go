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

// Observer receives run lifecycle events from a Registry.
//
// Methods are called after the registry lock is released, on the goroutine
// that caused the transition. Implementations must not block; anything slow
// belongs on the observer's own goroutine.
//
// For any one run, RunFinished is never delivered before RunStarted has
// returned, even when another goroutine finishes the run first. RunStarted
// must therefore not finish the run it reports.
type Observer interface {
	// RunStarted is called after Start records a new run.
	RunStarted(snap *RunSnapshot)

	// RunFinished is called once per run when it first reaches a terminal
	// status, including when it is reaped.
	RunFinished(snap *RunSnapshot)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Started  func(snap *RunSnapshot)
	Finished func(snap *RunSnapshot)
}

// RunStarted implements Observer.
func (f ObserverFuncs) RunStarted(snap *RunSnapshot) {
	if f.Started != nil {
		f.Started(snap)
	}
}

// RunFinished implements Observer.
func (f ObserverFuncs) RunFinished(snap *RunSnapshot) {
	if f.Finished != nil {
		f.Finished(snap)
	}
}
