package thermal

import (
	"sync"
	"testing"
	"time"
)

type fakeHAL struct {
	mu                sync.Mutex
	hotend, bed       float64
	hotendOn, bedOn   bool
	hotendErr, bedErr error
}

func (f *fakeHAL) ReadHotendTemp() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hotend, f.hotendErr
}

func (f *fakeHAL) ReadBedTemp() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bed, f.bedErr
}

func (f *fakeHAL) SetHotendHeater(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hotendOn = on
	return nil
}

func (f *fakeHAL) SetBedHeater(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bedOn = on
	return nil
}

func (f *fakeHAL) setHotend(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hotend = v
}

func (f *fakeHAL) setBed(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bed = v
}

func newTestThermal(h heaterHAL) *Thermal {
	return New(h, Config{
		CheckInterval: 5 * time.Millisecond,
		Hysteresis:    2,
		Epsilon:       1,
	})
}

func u16(v uint16) *uint16 { return &v }

func TestWaitHotendTargetResolvesWhenReached(t *testing.T) {
	fake := &fakeHAL{hotend: 20}
	th := newTestThermal(fake)
	defer th.Close()

	th.SetHotendTarget(u16(200))
	fake.setHotend(200)

	done := make(chan error, 1)
	go func() { done <- th.WaitHotendTarget() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitHotendTarget: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for hotend target")
	}
}

func TestWaitTargetChangedOnSetPointMutation(t *testing.T) {
	fake := &fakeHAL{hotend: 20}
	th := newTestThermal(fake)
	defer th.Close()

	th.SetHotendTarget(u16(200))

	done := make(chan error, 1)
	go func() { done <- th.WaitHotendTarget() }()

	// Give the wait a moment to register before mutating the set-point.
	time.Sleep(20 * time.Millisecond)
	th.SetHotendTarget(u16(150))

	select {
	case err := <-done:
		if err != ErrTargetChanged {
			t.Fatalf("err = %v, want ErrTargetChanged", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for TargetChanged")
	}
}

func TestWaitBedMinTempNilResolvesImmediately(t *testing.T) {
	fake := &fakeHAL{bed: 20}
	th := newTestThermal(fake)
	defer th.Close()

	if err := th.WaitBedMinTemp(nil); err != nil {
		t.Fatalf("WaitBedMinTemp(nil) = %v, want nil", err)
	}
}

func TestWaitBedMinTempResolvesWhenReached(t *testing.T) {
	fake := &fakeHAL{bed: 20}
	th := newTestThermal(fake)
	defer th.Close()

	done := make(chan error, 1)
	go func() { done <- th.WaitBedMinTemp(u16(60)) }()

	time.Sleep(20 * time.Millisecond)
	fake.setBed(60)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitBedMinTemp: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for min bed temp")
	}
}

func TestBangBangHysteresis(t *testing.T) {
	cases := []struct {
		name    string
		on      bool
		actual  float64
		target  uint32
		hyst    float64
		wantOn  bool
	}{
		{"off target", true, 100, 0, 2, false},
		{"below band heats", false, 195, 200, 2, true},
		{"within band holds on", true, 199, 200, 2, true},
		{"within band holds off", false, 199, 200, 2, false},
		{"at target turns off", false, 200, 200, 2, false},
		{"above target turns off", true, 205, 200, 2, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := bangBang(c.on, c.actual, c.target, c.hyst)
			if got != c.wantOn {
				t.Errorf("bangBang(%v, %v, %v, %v) = %v, want %v", c.on, c.actual, c.target, c.hyst, got, c.wantOn)
			}
		})
	}
}

func TestEStopForcesHeatersOffAndReleasesWaiters(t *testing.T) {
	fake := &fakeHAL{hotend: 20, bed: 20}
	th := newTestThermal(fake)
	defer th.Close()

	th.SetHotendTarget(u16(200))

	done := make(chan error, 1)
	go func() { done <- th.WaitHotendTarget() }()
	time.Sleep(20 * time.Millisecond)

	if err := th.EStop(); err != nil {
		t.Fatalf("EStop: %v", err)
	}

	select {
	case err := <-done:
		if err != ErrTargetChanged {
			t.Fatalf("err = %v, want ErrTargetChanged", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for estop release")
	}

	if target := th.HotendTarget(); target != nil {
		t.Fatalf("HotendTarget = %v, want nil after estop", target)
	}
}
