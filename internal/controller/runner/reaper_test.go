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

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestReaper_Sweep(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(DefaultConfig(), WithClock(clock.Now))
	reg.Start("stale")
	clock.Advance(45 * time.Minute)
	reg.Start("fresh")

	var hooks, reported atomic.Int32
	p := NewReaper(reg, time.Minute, nil)
	p.AfterSweep(func(_ context.Context, reaped int) {
		hooks.Add(1)
		reported.Add(int32(reaped))
	})

	if n := p.Sweep(context.Background()); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if hooks.Load() != 1 {
		t.Errorf("after-sweep hooks ran %d times, want 1", hooks.Load())
	}
	if reported.Load() != 1 {
		t.Errorf("hook saw %d reaped, want 1", reported.Load())
	}

	if _, err := reg.Get("stale"); err == nil {
		t.Error("stale run should be gone")
	}
	if _, err := reg.Get("fresh"); err != nil {
		t.Errorf("fresh run should remain: %v", err)
	}
}

func TestReaper_DefaultInterval(t *testing.T) {
	p := NewReaper(NewRegistry(DefaultConfig()), 0, nil)
	if p.interval != 5*time.Minute {
		t.Errorf("interval = %v, want 5m", p.interval)
	}
}

func TestReaper_LoopReapsAndStops(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(DefaultConfig(), WithClock(clock.Now))
	h := reg.Start("stale")
	clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sweeps atomic.Int32
	p := NewReaper(reg, 10*time.Millisecond, nil)
	p.AfterSweep(func(context.Context, int) { sweeps.Add(1) })
	p.Start(ctx)
	p.Start(ctx)

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("stale run was not reaped")
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d, want 0", reg.Len())
	}

	cancel()
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after context cancellation")
	}
	if sweeps.Load() < 1 {
		t.Errorf("sweeps = %d, want at least 1", sweeps.Load())
	}
}
