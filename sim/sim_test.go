package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/chazu/nativebridge/bridge"
)

// capture returns callbacks recording what they receive.
func capture() (bridge.Callback, bridge.Callback, *[]any, *[]any) {
	var ok, failed []any
	return func(v any) { ok = append(ok, v) }, func(v any) { failed = append(failed, v) }, &ok, &failed
}

func TestHostRegistersPlugins(t *testing.T) {
	h := NewHost("ios", NewManualCompass(Sweep(0, 1)))
	defer h.Close()

	for _, ref := range []bridge.Ref{AppAvailabilityRef, CompassRef, SMSRef} {
		if _, ok := h.Resolve(ref); !ok {
			t.Errorf("%s not registered", ref)
		}
	}
	if h.Platform() != "ios" {
		t.Errorf("platform = %q, want ios", h.Platform())
	}
}

func TestAppAvailabilityCheck(t *testing.T) {
	a := NewAppAvailability("twitter://")
	success, failure, ok, failed := capture()

	if _, err := a.Invoke("check", []any{"twitter://", success, failure}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Invoke("check", []any{"fb://", success, failure}); err != nil {
		t.Fatal(err)
	}
	if len(*ok) != 1 || (*ok)[0] != true {
		t.Errorf("successes = %v, want [true]", *ok)
	}
	if len(*failed) != 1 || (*failed)[0] != false {
		t.Errorf("failures = %v, want [false]", *failed)
	}

	a.Install("fb://")
	a.Uninstall("twitter://")
	if got := a.Installed(); len(got) != 1 || got[0] != "fb://" {
		t.Errorf("installed = %v, want [fb://]", got)
	}
	if _, err := a.Invoke("check", []any{42, success, failure}); err == nil {
		t.Error("non-string app should fail")
	}
}

func TestCompassManualWatch(t *testing.T) {
	c := NewManualCompass(Sweep(358, 1))
	success, failure, ok, failed := capture()

	id, err := c.Invoke("watchHeading", []any{map[string]any{"frequency": 10}, failure, success})
	if err != nil {
		t.Fatal(err)
	}
	c.Tick()
	c.Tick()
	c.Tick()

	if len(*ok) != 3 || len(*failed) != 0 {
		t.Fatalf("got %d readings and %d errors, want 3 and 0", len(*ok), len(*failed))
	}
	wantHeadings := []float64{358, 359, 0}
	for i, v := range *ok {
		if h := v.(map[string]any)["magneticHeading"]; h != wantHeadings[i] {
			t.Errorf("reading %d = %v, want %v", i, h, wantHeadings[i])
		}
	}

	if _, err := c.Invoke("clearWatch", []any{id}); err != nil {
		t.Fatal(err)
	}
	c.Tick()
	if len(*ok) != 3 || c.Watching() != 0 {
		t.Errorf("watch still active after clearWatch")
	}
}

func TestCompassBackgroundWatch(t *testing.T) {
	c := NewCompass(Sweep(0, 10))
	defer c.Stop()

	got := make(chan any, 8)
	id, err := c.Invoke("watchHeading", []any{map[string]any{"frequency": 5}, bridge.Callback(func(any) {}), bridge.Callback(func(v any) {
		select {
		case got <- v:
		default:
		}
	})})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("no reading from background watch")
	}
	c.Invoke("clearWatch", []any{id})
	if c.Watching() != 0 {
		t.Error("watch still registered")
	}
}

func TestCompassReadError(t *testing.T) {
	c := NewManualCompass(func() (float64, error) { return 0, errors.New("no sensor") })
	success, failure, ok, failed := capture()
	c.Invoke("getCurrentHeading", []any{success, failure})

	if len(*ok) != 0 || len(*failed) != 1 {
		t.Fatalf("got %v / %v, want one failure", *ok, *failed)
	}
	if code := (*failed)[0].(map[string]any)["code"]; code != CompassInternalErr {
		t.Errorf("code = %v, want %d", code, CompassInternalErr)
	}
}

func TestSMSSend(t *testing.T) {
	s := NewSMS()
	success, failure, ok, failed := capture()

	s.Invoke("send", []any{"5551234", `line1\nline2`, map[string]any{"replaceLineBreaks": true}, success, failure})
	s.Invoke("send", []any{[]any{"1", "2"}, "hi", map[string]any{"android": map[string]any{"intent": "INTENT"}}, success, failure})
	s.Invoke("send", []any{"", "nobody", nil, success, failure})

	if len(*ok) != 2 || len(*failed) != 1 {
		t.Fatalf("got %d successes, %d failures; want 2, 1", len(*ok), len(*failed))
	}
	out := s.Outbox()
	if len(out) != 2 {
		t.Fatalf("outbox has %d messages, want 2", len(out))
	}
	if out[0].Body != "line1\nline2" {
		t.Errorf("body = %q, want line breaks replaced", out[0].Body)
	}
	if len(out[1].To) != 2 || out[1].Intent != "INTENT" {
		t.Errorf("second message = %+v", out[1])
	}
}
