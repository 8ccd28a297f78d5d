// Package sms wraps the SMS plugin, which composes or sends text messages.
package sms

import (
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/chazu/nativebridge/async"
	"github.com/chazu/nativebridge/plugin"
)

// Config is the plugin's class configuration.
var Config = plugin.Config{
	Name: "SMS",
	Ref:  "sms",
	Repo: "https://github.com/cordova-sms/cordova-sms-plugin.git",
}

// ErrNoRecipients is returned when Send is given no phone numbers.
var ErrNoRecipients = errors.New("sms: no recipients")

// Options configures Send.
type Options struct {
	// ReplaceLineBreaks turns literal "\n" sequences into line breaks.
	ReplaceLineBreaks bool `mapstructure:"replaceLineBreaks"`
	Android           AndroidOptions `mapstructure:"android"`
}

// AndroidOptions holds Android-only settings.
type AndroidOptions struct {
	// Intent is "INTENT" to open the messaging app instead of sending
	// directly; empty sends without user interaction.
	Intent string `mapstructure:"intent"`
}

// SMS is a wrapper bound to one resolver and executor.
type SMS struct {
	class *plugin.Class
	send  *plugin.Method
}

// New creates a wrapper; opts are passed to plugin.Annotate.
func New(opts ...plugin.Option) *SMS {
	cls := plugin.Annotate(Config, opts...)
	return &SMS{
		class: cls,
		send:  cls.MustWrap("send", plugin.Descriptor{Transform: sendArgs}),
	}
}

// Class returns the annotated class.
func (s *SMS) Class() *plugin.Class { return s.class }

// Send sends message to numbers. opts may be nil. The promise resolves with
// the plugin's success payload.
func (s *SMS) Send(numbers []string, message string, opts *Options) *async.Promise[any] {
	return s.send.Call(numbers, message, opts)
}

// sendArgs shapes (numbers, message, opts) for the native side: a single
// number travels as a string, several as a list, options as a map.
func sendArgs(args []any) ([]any, error) {
	numbers, _ := args[0].([]string)
	message, _ := args[1].(string)
	opts, _ := args[2].(*Options)

	var to any
	switch len(numbers) {
	case 0:
		return nil, ErrNoRecipients
	case 1:
		to = numbers[0]
	default:
		list := make([]any, len(numbers))
		for i, n := range numbers {
			list[i] = n
		}
		to = list
	}

	if opts == nil {
		opts = &Options{}
	}
	m := map[string]any{}
	if err := mapstructure.Decode(opts, &m); err != nil {
		return nil, fmt.Errorf("sms: encode options: %w", err)
	}
	return []any{to, message, m}, nil
}

var std = New()

// Send calls Send on the wrapper bound to the process-wide host.
func Send(numbers []string, message string, opts *Options) *async.Promise[any] {
	return std.Send(numbers, message, opts)
}
