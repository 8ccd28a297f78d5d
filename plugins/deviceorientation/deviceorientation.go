// Package deviceorientation wraps the device-orientation plugin
// (navigator.compass).
package deviceorientation

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/chazu/nativebridge/async"
	"github.com/chazu/nativebridge/plugin"
)

// Config is the plugin's class configuration.
var Config = plugin.Config{
	Name: "DeviceOrientation",
	Ref:  "navigator.compass",
	Repo: "https://github.com/apache/cordova-plugin-device-orientation",
}

// CompassHeading is one compass reading.
type CompassHeading struct {
	// MagneticHeading is the heading in degrees from 0-359.99.
	MagneticHeading float64 `mapstructure:"magneticHeading"`
	// TrueHeading is the heading relative to the geographic North Pole.
	TrueHeading float64 `mapstructure:"trueHeading"`
	// HeadingAccuracy is the deviation in degrees between the reported and
	// the true heading.
	HeadingAccuracy float64 `mapstructure:"headingAccuracy"`
	// Timestamp is when the heading was determined, in ms since the epoch.
	Timestamp int64 `mapstructure:"timestamp"`
}

// CompassOptions configures WatchHeading.
type CompassOptions struct {
	// Frequency is how often to retrieve the heading, in milliseconds.
	Frequency int `mapstructure:"frequency,omitempty"`
	// Filter is the change in degrees required to report a new heading.
	// When set, Frequency is ignored (iOS only).
	Filter float64 `mapstructure:"filter,omitempty"`
}

// DeviceOrientation is a wrapper bound to one resolver and executor.
type DeviceOrientation struct {
	class      *plugin.Class
	getCurrent *plugin.Method
	watch      *plugin.Method
}

// New creates a wrapper; opts are passed to plugin.Annotate.
func New(opts ...plugin.Option) *DeviceOrientation {
	cls := plugin.Annotate(Config, opts...)
	return &DeviceOrientation{
		class:      cls,
		getCurrent: cls.MustWrap("getCurrentHeading", plugin.Descriptor{}),
		watch: cls.MustWrap("watchHeading", plugin.Descriptor{
			Order:          plugin.OrderReverse,
			Mode:           plugin.ModeObservable,
			CancelFunction: "clearWatch",
			Transform:      encodeOptions,
		}),
	}
}

// Class returns the annotated class.
func (d *DeviceOrientation) Class() *plugin.Class { return d.class }

// GetCurrentHeading reads the compass once.
func (d *DeviceOrientation) GetCurrentHeading() *async.Promise[CompassHeading] {
	return async.Map(d.getCurrent.Call(), decodeHeading)
}

// WatchHeading streams compass readings until unsubscribed, which clears
// the native watch. opts may be nil.
func (d *DeviceOrientation) WatchHeading(opts *CompassOptions) *async.Observable[CompassHeading] {
	return async.MapObservable(d.watch.Observe(opts), decodeHeading)
}

// encodeOptions turns *CompassOptions into the plain map the native side
// expects.
func encodeOptions(args []any) ([]any, error) {
	opts, _ := args[0].(*CompassOptions)
	if opts == nil {
		return []any{nil}, nil
	}
	m := map[string]any{}
	if err := mapstructure.Decode(opts, &m); err != nil {
		return nil, fmt.Errorf("deviceorientation: encode options: %w", err)
	}
	return []any{m}, nil
}

func decodeHeading(v any) (CompassHeading, error) {
	var h CompassHeading
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &h,
	})
	if err != nil {
		return h, err
	}
	if err := dec.Decode(v); err != nil {
		return h, fmt.Errorf("deviceorientation: unexpected heading %v: %w", v, err)
	}
	return h, nil
}

var std = New()

// GetCurrentHeading calls GetCurrentHeading on the wrapper bound to the
// process-wide host.
func GetCurrentHeading() *async.Promise[CompassHeading] { return std.GetCurrentHeading() }

// WatchHeading calls WatchHeading on the wrapper bound to the process-wide
// host.
func WatchHeading(opts *CompassOptions) *async.Observable[CompassHeading] {
	return std.WatchHeading(opts)
}
