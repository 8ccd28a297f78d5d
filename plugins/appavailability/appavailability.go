// Package appavailability wraps the AppAvailability plugin, which reports
// whether another app is installed.
//
//	installed, err := appavailability.Check("twitter://").Await(ctx)
//
// Check rejects when the app is missing; IsInstalled resolves false instead.
package appavailability

import (
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/chazu/nativebridge/async"
	"github.com/chazu/nativebridge/plugin"
)

// Config is the plugin's class configuration.
var Config = plugin.Config{
	Name: "AppAvailability",
	Ref:  "appAvailability",
	Repo: "https://github.com/ohh2ahh/AppAvailability.git",
}

// AppAvailability is a wrapper bound to one resolver and executor.
type AppAvailability struct {
	class *plugin.Class
	check *plugin.Method
}

// New creates a wrapper; opts are passed to plugin.Annotate.
func New(opts ...plugin.Option) *AppAvailability {
	cls := plugin.Annotate(Config, opts...)
	return &AppAvailability{
		class: cls,
		check: cls.MustWrap("check", plugin.Descriptor{}),
	}
}

// Class returns the annotated class.
func (a *AppAvailability) Class() *plugin.Class { return a.class }

// Check resolves true if app (a URL scheme on iOS, a package name on
// Android) is installed. A missing app rejects with the native payload.
func (a *AppAvailability) Check(app string) *async.Promise[bool] {
	return async.Map(a.check.Call(app), toBool)
}

// IsInstalled is Check with "not installed" reported as false. Other
// failures still reject.
func (a *AppAvailability) IsInstalled(app string) *async.Promise[bool] {
	out := async.NewPromise[bool](async.Inline)
	a.Check(app).Then(func(v bool) {
		out.Resolve(v)
	}, func(err error) {
		var ne *plugin.NativeError
		if errors.As(err, &ne) && !ne.Thrown {
			out.Resolve(false)
			return
		}
		out.Reject(err)
	})
	return out
}

func toBool(v any) (bool, error) {
	var b bool
	if err := mapstructure.WeakDecode(v, &b); err != nil {
		return false, fmt.Errorf("appavailability: unexpected result %v: %w", v, err)
	}
	return b, nil
}

var std = New()

// Check calls Check on the wrapper bound to the process-wide host.
func Check(app string) *async.Promise[bool] { return std.Check(app) }

// IsInstalled calls IsInstalled on the wrapper bound to the process-wide host.
func IsInstalled(app string) *async.Promise[bool] { return std.IsInstalled(app) }
