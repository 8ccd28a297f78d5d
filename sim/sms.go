package sim

import (
	"strings"
	"sync"

	"github.com/chazu/nativebridge/bridge"
)

// Message is one simulated outgoing SMS.
type Message struct {
	To                []string
	Body              string
	ReplaceLineBreaks bool
	Intent            string
}

type smsOptions struct {
	ReplaceLineBreaks bool `mapstructure:"replaceLineBreaks"`
	Android           struct {
		Intent string `mapstructure:"intent"`
	} `mapstructure:"android"`
}

// SMS simulates the sms plugin: send(number, message, options, success,
// error). number is a string or a list of strings. Sent messages are kept
// in an outbox.
type SMS struct {
	*bridge.MethodTable

	mu     sync.Mutex
	outbox []Message
}

// NewSMS creates an SMS object with an empty outbox.
func NewSMS() *SMS {
	s := &SMS{MethodTable: bridge.NewMethodTable()}
	s.Add("send", s.send, 5)
	return s
}

func (s *SMS) send(args []any) (any, error) {
	success, failure := bridge.CallbackAt(args, 3), bridge.CallbackAt(args, 4)

	var to []string
	switch n := args[0].(type) {
	case string:
		if n != "" {
			to = []string{n}
		}
	default:
		if err := decode(n, &to); err != nil {
			failure(err.Error())
			return nil, nil
		}
	}
	if len(to) == 0 {
		failure("No phone number")
		return nil, nil
	}
	body, ok := args[1].(string)
	if !ok {
		failure("Message must be a string")
		return nil, nil
	}

	var opts smsOptions
	if err := decode(args[2], &opts); err != nil {
		failure(err.Error())
		return nil, nil
	}
	if opts.ReplaceLineBreaks {
		body = strings.ReplaceAll(body, `\n`, "\n")
	}

	s.mu.Lock()
	s.outbox = append(s.outbox, Message{
		To:                to,
		Body:              body,
		ReplaceLineBreaks: opts.ReplaceLineBreaks,
		Intent:            opts.Android.Intent,
	})
	s.mu.Unlock()

	log.Debugf("sms to %s: %d bytes", strings.Join(to, ","), len(body))
	success("OK")
	return nil, nil
}

// Outbox returns a copy of the sent messages.
func (s *SMS) Outbox() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.outbox...)
}
