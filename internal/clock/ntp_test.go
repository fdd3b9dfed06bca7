package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedBase() time.Time { return base }

func TestNTP_UncheckedUsesSystemTime(t *testing.T) {
	c := NewNTP("", WithBase(fixedBase))
	if got := c.Now(); !got.Equal(base) {
		t.Fatalf("Now() = %v, want %v", got, base)
	}
	if c.Status().Phase != Unchecked {
		t.Fatalf("phase = %s, want unchecked", c.Status().Phase)
	}
}

func TestNTP_SyncAppliesOffset(t *testing.T) {
	var asked string
	c := NewNTP("time.example", WithBase(fixedBase), WithQuery(func(server string) (time.Duration, error) {
		asked = server
		return 2 * time.Second, nil
	}))

	st := c.Sync()
	if asked != "time.example" {
		t.Fatalf("queried %q", asked)
	}
	if st.Phase != UnhealthyOffset || st.Offset != 2*time.Second {
		t.Fatalf("status = %+v", st)
	}
	if got := c.Now(); !got.Equal(base.Add(2 * time.Second)) {
		t.Fatalf("Now() = %v, want offset applied", got)
	}
}

func TestNTP_SmallOffsetIsHealthy(t *testing.T) {
	c := NewNTP("", WithBase(fixedBase), WithQuery(func(string) (time.Duration, error) {
		return -40 * time.Millisecond, nil
	}))
	if st := c.Sync(); st.Phase != Healthy {
		t.Fatalf("phase = %s, want healthy", st.Phase)
	}
}

func TestNTP_FailureKeepsLastOffset(t *testing.T) {
	fail := false
	c := NewNTP("", WithBase(fixedBase), WithQuery(func(string) (time.Duration, error) {
		if fail {
			return 0, errors.New("i/o timeout")
		}
		return time.Second, nil
	}))
	c.Sync()
	fail = true

	st := c.Sync()
	if st.Phase != Failed || st.Error != "i/o timeout" {
		t.Fatalf("status = %+v, want failed", st)
	}
	if got := c.Now(); !got.Equal(base.Add(time.Second)) {
		t.Fatalf("Now() = %v, want previous offset kept", got)
	}
}

func TestNTP_RunStopsOnCancel(t *testing.T) {
	calls := make(chan struct{}, 8)
	c := NewNTP("", WithBase(fixedBase), WithInterval(time.Hour), WithQuery(func(string) (time.Duration, error) {
		calls <- struct{}{}
		return 0, nil
	}))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("Run() did not sync immediately")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
