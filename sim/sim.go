// Package sim provides stand-in bridge objects for the three wrapped
// plugins, for development hosts and tests. They follow the native plugins'
// calling conventions but touch no hardware.
package sim

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/tliron/commonlog"

	"github.com/chazu/nativebridge/bridge"
)

var log = commonlog.GetLogger("nativebridge.sim")

// Bridge refs the simulated objects are registered under.
const (
	AppAvailabilityRef bridge.Ref = "appAvailability"
	CompassRef         bridge.Ref = "navigator.compass"
	SMSRef             bridge.Ref = "sms"
)

// Host is a namespace holding all simulated plugins.
type Host struct {
	*bridge.Namespace
	Apps    *AppAvailability
	Compass *Compass
	SMS     *SMS
}

// NewHost assembles a namespace for platform with every simulated plugin
// registered. installed lists the app schemes AppAvailability reports.
func NewHost(platform string, compass *Compass, installed ...string) *Host {
	if compass == nil {
		compass = NewCompass(Sweep(0, 1))
	}
	h := &Host{
		Namespace: bridge.NewNamespace(platform),
		Apps:      NewAppAvailability(installed...),
		Compass:   compass,
		SMS:       NewSMS(),
	}
	h.MustRegister(AppAvailabilityRef, h.Apps)
	h.MustRegister(CompassRef, h.Compass)
	h.MustRegister(SMSRef, h.SMS)
	return h
}

// Close stops every running compass watch.
func (h *Host) Close() {
	h.Compass.Stop()
}

// decode fills out from a loosely typed native argument.
func decode(in any, out any) error {
	if in == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("sim: decode %T: %w", in, err)
	}
	return nil
}
