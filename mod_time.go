package dissolve

import (
	"time"
)

// Time is the simulation clock, advanced once per step in Prelude.
type Time struct {
	Time  time.Time
	Dt    time.Duration
	Frame uint64
}

func (t *Time) Seconds() float32 {
	return float32(t.Dt.Seconds())
}

// TimeModule installs Time. With FixedStep set every step advances by it;
// otherwise Now is sampled (time.Now when nil).
type TimeModule struct {
	Now       func() time.Time
	FixedStep time.Duration
}

func (mod TimeModule) Install(app *App, cmd *Commands) {
	now := mod.Now
	if now == nil {
		now = time.Now
	}
	clock := &Time{Time: now()}
	cmd.AddResources(clock)

	fixed := mod.FixedStep
	cmd.UseSystem(System(func(t *Time) {
		if fixed > 0 {
			t.Dt = fixed
			t.Time = t.Time.Add(fixed)
		} else {
			n := now()
			t.Dt = n.Sub(t.Time)
			t.Time = n
		}
		t.Frame++
	}).InStage(Prelude))
}
