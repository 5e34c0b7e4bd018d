package clock

import (
	"testing"
	"time"
)

func TestSystem_UTC(t *testing.T) {
	now := System{}.Now()
	if now.Location() != time.UTC {
		t.Errorf("System.Now() location = %v, want UTC", now.Location())
	}
}

func TestFunc(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Func(func() time.Time { return fixed })
	if !c.Now().Equal(fixed) {
		t.Errorf("Func.Now() = %v, want %v", c.Now(), fixed)
	}
}

func TestOrSystem(t *testing.T) {
	if _, ok := OrSystem(nil).(System); !ok {
		t.Error("OrSystem(nil) should return System")
	}
	fixed := Func(func() time.Time { return time.Time{} })
	if _, ok := OrSystem(fixed).(Func); !ok {
		t.Error("OrSystem should return the given clock")
	}
}
