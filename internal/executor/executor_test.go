package executor

import (
	"testing"
	"time"

	"github.com/PS-3D/3dprintd/internal/action"
	"github.com/PS-3D/3dprintd/internal/errbus"
	"github.com/PS-3D/3dprintd/internal/gcode"
	"github.com/PS-3D/3dprintd/internal/thermal"
)

type fakeHAL struct {
	hotend, bed float64
}

func (f *fakeHAL) ReadHotendTemp() (float64, error) { return f.hotend, nil }
func (f *fakeHAL) ReadBedTemp() (float64, error)    { return f.bed, nil }
func (f *fakeHAL) SetHotendHeater(on bool) error    { return nil }
func (f *fakeHAL) SetBedHeater(on bool) error       { return nil }

func newTestThermal() *thermal.Thermal {
	return thermal.New(&fakeHAL{}, thermal.Config{
		CheckInterval: 5 * time.Millisecond,
		Hysteresis:    2,
		Epsilon:       1,
	})
}

type fakeDecoder struct {
	out chan gcode.Decoded
	err error
}

func newFakeDecoder(actions ...action.Action) *fakeDecoder {
	out := make(chan gcode.Decoded, len(actions))
	for i, a := range actions {
		out <- gcode.Decoded{Action: a, Span: action.GCodeSpan{Path: "test.gcode", Line: i + 1}}
	}
	close(out)
	return &fakeDecoder{out: out}
}

func (d *fakeDecoder) Out() <-chan gcode.Decoded { return d.out }
func (d *fakeDecoder) Err() error                { return d.err }
func (d *fakeDecoder) Stop()                     {}

func TestStartJobRunsToCompletionAndReportsJobDone(t *testing.T) {
	th := newTestThermal()
	defer th.Close()
	e := New(nil, th, errbus.New())
	defer e.Exit()

	dec := newFakeDecoder(action.Wait(time.Millisecond), action.Wait(time.Millisecond))
	if err := e.StartJob(dec); err != nil {
		t.Fatalf("StartJob: %v", err)
	}

	select {
	case res := <-e.JobDone():
		if res.Err != nil {
			t.Fatalf("JobDone err = %v, want nil", res.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("JobDone never signaled")
	}
}

func TestManualActionWhileIdle(t *testing.T) {
	th := newTestThermal()
	defer th.Close()
	e := New(nil, th, errbus.New())
	defer e.Exit()

	if err := e.Manual(action.Wait(time.Millisecond)); err != nil {
		t.Fatalf("Manual: %v", err)
	}
}

func TestManualHotendTargetReachesThermal(t *testing.T) {
	th := newTestThermal()
	defer th.Close()
	e := New(nil, th, errbus.New())
	defer e.Exit()

	target := uint16(150)
	if err := e.Manual(action.HotendTarget(&target)); err != nil {
		t.Fatalf("Manual: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		if got := th.HotendTarget(); got != nil && *got == target {
			return
		}
		select {
		case <-deadline:
			t.Fatal("hotend target never propagated")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestStopDuringJobSucceeds(t *testing.T) {
	th := newTestThermal()
	defer th.Close()
	e := New(nil, th, errbus.New())
	defer e.Exit()

	dec := newFakeDecoder(action.Wait(5 * time.Millisecond))
	if err := e.StartJob(dec); err != nil {
		t.Fatalf("StartJob: %v", err)
	}

	// Stop is queued on the priority control channel; a dwell in
	// flight is not preemptible (only estop hard-preempts), so Stop
	// picks it up once the current action finishes.
	if err := e.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
