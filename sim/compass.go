package sim

import (
	"math"
	"sync"
	"time"

	"github.com/chazu/nativebridge/bridge"
)

// Compass error codes, as reported in the error callback payload.
const (
	CompassInternalErr     = 0
	CompassNotSupported    = 20
	defaultCompassInterval = 100 * time.Millisecond
)

// Reading returns the current magnetic heading in degrees.
type Reading func() (float64, error)

// Sweep returns a Reading that starts at start and advances by step degrees
// per call, wrapping at 360.
func Sweep(start, step float64) Reading {
	var mu sync.Mutex
	h := start
	return func() (float64, error) {
		mu.Lock()
		defer mu.Unlock()
		v := math.Mod(h, 360)
		if v < 0 {
			v += 360
		}
		h += step
		return v, nil
	}
}

// Compass simulates navigator.compass:
//
//	getCurrentHeading(success, error)
//	watchHeading(options, error, success) -> watch id
//	clearWatch(id)
//
// Watches tick on their own goroutine at options.frequency milliseconds,
// unless the compass is manual, in which case only Tick fires them.
type Compass struct {
	*bridge.MethodTable
	read   Reading
	manual bool

	mu      sync.Mutex
	nextID  int
	watches map[int]*compassWatch
}

type compassWatch struct {
	success bridge.Callback
	failure bridge.Callback
	stop    chan struct{}
}

type compassOptions struct {
	Frequency int     `mapstructure:"frequency"`
	Filter    float64 `mapstructure:"filter"`
}

// NewCompass creates a compass whose watches tick in the background.
func NewCompass(read Reading) *Compass {
	return newCompass(read, false)
}

// NewManualCompass creates a compass whose watches only fire on Tick.
func NewManualCompass(read Reading) *Compass {
	return newCompass(read, true)
}

func newCompass(read Reading, manual bool) *Compass {
	c := &Compass{
		MethodTable: bridge.NewMethodTable(),
		read:        read,
		manual:      manual,
		watches:     make(map[int]*compassWatch),
	}
	c.Add("getCurrentHeading", c.getCurrentHeading, 2)
	c.Add("watchHeading", c.watchHeading, 3)
	c.Add("clearWatch", c.clearWatch, 1)
	return c
}

// sample reads the heading and reports it to success or failure.
func (c *Compass) sample(success, failure bridge.Callback) {
	h, err := c.read()
	if err != nil {
		failure(map[string]any{"code": CompassInternalErr, "message": err.Error()})
		return
	}
	success(map[string]any{
		"magneticHeading": h,
		"trueHeading":     h,
		"headingAccuracy": 0.0,
		"timestamp":       time.Now().UnixMilli(),
	})
}

func (c *Compass) getCurrentHeading(args []any) (any, error) {
	c.sample(bridge.CallbackAt(args, 0), bridge.CallbackAt(args, 1))
	return nil, nil
}

func (c *Compass) watchHeading(args []any) (any, error) {
	var opts compassOptions
	if err := decode(args[0], &opts); err != nil {
		return nil, err
	}
	w := &compassWatch{
		failure: bridge.CallbackAt(args, 1),
		success: bridge.CallbackAt(args, 2),
		stop:    make(chan struct{}),
	}

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.watches[id] = w
	c.mu.Unlock()

	if !c.manual {
		interval := defaultCompassInterval
		if opts.Frequency > 0 {
			interval = time.Duration(opts.Frequency) * time.Millisecond
		}
		go c.run(w, interval)
	}
	log.Debugf("watch %d started", id)
	return id, nil
}

func (c *Compass) run(w *compassWatch, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sample(w.success, w.failure)
		case <-w.stop:
			return
		}
	}
}

func (c *Compass) clearWatch(args []any) (any, error) {
	var id int
	if err := decode(args[0], &id); err != nil {
		return nil, err
	}
	c.mu.Lock()
	w, ok := c.watches[id]
	delete(c.watches, id)
	c.mu.Unlock()
	if ok {
		close(w.stop)
		log.Debugf("watch %d cleared", id)
	}
	return nil, nil
}

// Tick samples once for every active watch.
func (c *Compass) Tick() {
	c.mu.Lock()
	watches := make([]*compassWatch, 0, len(c.watches))
	for _, w := range c.watches {
		watches = append(watches, w)
	}
	c.mu.Unlock()
	for _, w := range watches {
		c.sample(w.success, w.failure)
	}
}

// Watching returns the number of active watches.
func (c *Compass) Watching() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.watches)
}

// Stop clears every watch.
func (c *Compass) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, w := range c.watches {
		close(w.stop)
		delete(c.watches, id)
	}
}
