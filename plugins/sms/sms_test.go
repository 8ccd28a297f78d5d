package sms

import (
	"context"
	"errors"
	"testing"

	"github.com/chazu/nativebridge/plugin"
	"github.com/chazu/nativebridge/sim"
)

func TestSend(t *testing.T) {
	host := sim.NewHost("android", sim.NewManualCompass(sim.Sweep(0, 1)))
	s := New(plugin.WithResolver(host))
	ctx := context.Background()

	v, err := s.Send([]string{"5551234"}, "hello", nil).Await(ctx)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if v != "OK" {
		t.Errorf("result = %v, want OK", v)
	}

	_, err = s.Send([]string{"1", "2"}, `a\nb`, &Options{
		ReplaceLineBreaks: true,
		Android:           AndroidOptions{Intent: "INTENT"},
	}).Await(ctx)
	if err != nil {
		t.Fatalf("Send to two failed: %v", err)
	}

	out := host.SMS.Outbox()
	if len(out) != 2 {
		t.Fatalf("outbox = %d messages, want 2", len(out))
	}
	if len(out[0].To) != 1 || out[0].To[0] != "5551234" {
		t.Errorf("first recipients = %v", out[0].To)
	}
	if len(out[1].To) != 2 || out[1].Body != "a\nb" || out[1].Intent != "INTENT" {
		t.Errorf("second message = %+v", out[1])
	}
}

func TestSendNoRecipients(t *testing.T) {
	host := sim.NewHost("android", sim.NewManualCompass(sim.Sweep(0, 1)))
	_, err := New(plugin.WithResolver(host)).Send(nil, "hi", nil).Await(context.Background())
	if !errors.Is(err, ErrNoRecipients) {
		t.Errorf("error = %v, want ErrNoRecipients", err)
	}
	if len(host.SMS.Outbox()) != 0 {
		t.Error("nothing should reach the native side")
	}
}

func TestSendNativeFailure(t *testing.T) {
	host := sim.NewHost("android", sim.NewManualCompass(sim.Sweep(0, 1)))
	_, err := New(plugin.WithResolver(host)).Send([]string{""}, "hi", nil).Await(context.Background())
	if p, ok := plugin.Payload(err); !ok || p != "No phone number" {
		t.Errorf("error = %v, want native payload No phone number", err)
	}
}
