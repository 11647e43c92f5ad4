package accnt

import (
	"testing"
	"time"

	"biscuit/src/util"
)

func TestChargeAndSnapshot(t *testing.T) {
	var u Usage
	u.ChargeUser(5 * time.Millisecond)
	u.ChargeSys(2 * time.Millisecond)

	userns, sysns := u.Snapshot()
	if userns != int64(5*time.Millisecond) || sysns != int64(2*time.Millisecond) {
		t.Fatalf("got userns=%d sysns=%d", userns, sysns)
	}
}

func TestMerge(t *testing.T) {
	var task, thread Usage
	thread.ChargeUser(3 * time.Millisecond)
	thread.ChargeSys(1 * time.Millisecond)
	task.ChargeUser(1 * time.Millisecond)

	task.Merge(&thread)
	userns, sysns := task.Snapshot()
	if userns != int64(4*time.Millisecond) || sysns != int64(1*time.Millisecond) {
		t.Fatalf("got userns=%d sysns=%d", userns, sysns)
	}
}

func TestRusageEncoding(t *testing.T) {
	var u Usage
	u.ChargeUser(1500 * time.Millisecond)
	u.ChargeSys(250 * time.Millisecond)

	buf := u.Rusage()
	if len(buf) != 32 {
		t.Fatalf("expected a 4-word rusage buffer, got %d bytes", len(buf))
	}
	if secs := util.Readn(buf, 8, 0); secs != 1 {
		t.Fatalf("expected 1 user second, got %d", secs)
	}
	if usecs := util.Readn(buf, 8, 8); usecs != 500000 {
		t.Fatalf("expected 500000 user microseconds, got %d", usecs)
	}
	if secs := util.Readn(buf, 8, 16); secs != 0 {
		t.Fatalf("expected 0 sys seconds, got %d", secs)
	}
	if usecs := util.Readn(buf, 8, 24); usecs != 250000 {
		t.Fatalf("expected 250000 sys microseconds, got %d", usecs)
	}
}
