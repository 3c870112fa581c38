package world

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestScalarWorldSnapshotIsolation(t *testing.T) {
	w := NewScalarWorld([]string{"light"}, nil)
	w.Set("light", 0.7)

	if v, ok := w.Datasource("net", "light"); !ok || v != 0 {
		t.Fatalf("value before snapshot: got=%f ok=%t", v, ok)
	}
	w.Snapshot("net")
	w.Set("light", 0.1)
	if v, _ := w.Datasource("net", "light"); v != 0.7 {
		t.Fatalf("snapshot must hide later writes: got=%f", v)
	}
	if _, ok := w.Datasource("net", "missing"); ok {
		t.Fatal("unknown datasource must report ok=false")
	}
}

func TestScalarWorldDatatargets(t *testing.T) {
	w := NewScalarWorld(nil, []string{"motor"})

	if !w.AddToDatatarget("net", "motor", 0.25) || !w.AddToDatatarget("net", "motor", 0.5) {
		t.Fatal("expected known datatarget")
	}
	if w.AddToDatatarget("net", "nope", 1) {
		t.Fatal("unknown datatarget must be rejected")
	}
	if v, _ := w.DatatargetFeedback("net", "motor"); v != 0 {
		t.Fatalf("feedback before commit: got=%f", v)
	}
	w.Commit("net")
	if v, ok := w.DatatargetFeedback("net", "motor"); !ok || v != 0.75 {
		t.Fatalf("feedback after commit: got=%f ok=%t", v, ok)
	}
	w.Commit("net")
	if v := w.Target("motor"); v != 0 {
		t.Fatalf("pending values must reset after commit: got=%f", v)
	}
}

func TestScalarWorldKeepsAgentsApart(t *testing.T) {
	w := NewScalarWorld([]string{"light"}, []string{"motor"})
	w.Set("light", 0.3)
	w.Snapshot("a")
	w.Set("light", 0.9)
	w.Snapshot("b")
	if v, _ := w.Datasource("a", "light"); v != 0.3 {
		t.Fatalf("agent a light=%f want=0.3", v)
	}
	if v, _ := w.Datasource("b", "light"); v != 0.9 {
		t.Fatalf("agent b light=%f want=0.9", v)
	}

	w.AddToDatatarget("a", "motor", 1)
	w.Commit("b")
	w.Commit("a")
	if v, _ := w.DatatargetFeedback("a", "motor"); v != 1 {
		t.Fatalf("agent a feedback=%f want=1", v)
	}
	if v, _ := w.DatatargetFeedback("b", "motor"); v != 0 {
		t.Fatalf("agent b feedback=%f want=0", v)
	}
	w.AddToDatatarget("b", "motor", 0.5)
	w.Commit("b")
	if v := w.Target("motor"); v != 1.5 {
		t.Fatalf("motor=%f want=1.5", v)
	}

	w.Forget("a")
	if v := w.AgentTarget("a", "motor"); v != 0 {
		t.Fatalf("forgotten agent motor=%f want=0", v)
	}
	if v := w.Target("motor"); v != 0.5 {
		t.Fatalf("motor=%f want=0.5", v)
	}
}

func TestScalarWorldFeedbackFunc(t *testing.T) {
	w := NewScalarWorld(nil, []string{"motor"}).WithFeedback(func(_ string, v float64) float64 { return v / 2 })
	w.AddToDatatarget("net", "motor", 1)
	w.Commit("net")
	if v, _ := w.DatatargetFeedback("net", "motor"); v != 0.5 {
		t.Fatalf("unexpected feedback: got=%f", v)
	}
}

func TestScalarWorldListers(t *testing.T) {
	w := NewScalarWorld([]string{"b", "a"}, []string{"y", "x"})
	var sources DatasourceLister = w
	var targets DatatargetLister = w
	if got := sources.Datasources(); len(got) != 2 || got[0] != "a" {
		t.Fatalf("unexpected datasources: %+v", got)
	}
	if got := targets.Datatargets(); len(got) != 2 || got[0] != "x" {
		t.Fatalf("unexpected datatargets: %+v", got)
	}
}

func TestPollerPublishesLastValue(t *testing.T) {
	var reads atomic.Int64
	device := DeviceFunc{
		DeviceName: "thermo",
		ReadFunc: func(context.Context) (float64, error) {
			n := reads.Add(1)
			if n == 1 {
				return 0, errors.New("warming up")
			}
			return 21.5, nil
		},
	}
	p := NewPoller(device, 5*time.Millisecond, zerolog.Nop())
	if _, ok := p.Last(); ok {
		t.Fatal("no value expected before start")
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop()
	if err := p.Start(context.Background()); err == nil {
		t.Fatal("expected double start error")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if v, ok := p.Last(); ok {
			if v != 21.5 {
				t.Fatalf("unexpected value: %f", v)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("poller never published a value")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestDeviceWorldSnapshotsPollers(t *testing.T) {
	device := DeviceFunc{
		DeviceName: "dial",
		ReadFunc:   func(context.Context) (float64, error) { return 0.3, nil },
	}
	p := NewPoller(device, time.Millisecond, zerolog.Nop())
	w := NewDeviceWorld(NewScalarWorld(nil, nil))
	w.Attach(p)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.StopAll()

	deadline := time.Now().Add(2 * time.Second)
	for {
		w.Snapshot("net")
		if v, ok := w.Datasource("net", "dial"); ok && v == 0.3 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("device value never reached the snapshot")
		}
		time.Sleep(2 * time.Millisecond)
	}
}
