package capture

import (
	"strings"
	"sync"
	"time"

	"github.com/offlinefirst/mousedynamics/pkg/runmanifest"
)

// Controller states reported by State and recorded in the timeline.
const (
	StateIdle      = "idle"
	StateListening = "listening"
	StateStopping  = "stopping"
)

// ControllerOptions configures hotkeys and the timeline clock.
type ControllerOptions struct {
	StartKey       string
	StopKey        string
	StartListening bool
	Clock          func() time.Time
}

// Controller is the session-scoped recording toggle. Pointer samples are
// recorded only while it is listening; Kill ends the capture.
type Controller struct {
	mu        sync.Mutex
	listening bool
	stopping  bool
	stopErr   error
	done      chan struct{}
	clock     func() time.Time
	timeline  []runmanifest.ControllerTimelineEntry
	startKey  string
	stopKey   string
}

// NewController constructs a controller, idle unless opts.StartListening is set.
func NewController(opts ControllerOptions) *Controller {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	c := &Controller{
		done:     make(chan struct{}),
		clock:    clock,
		startKey: strings.ToLower(opts.StartKey),
		stopKey:  strings.ToLower(opts.StopKey),
	}
	if opts.StartListening {
		c.listening = true
		c.record(StateListening, "start listening configured")
	} else {
		c.record(StateIdle, "created")
	}
	return c
}

// Start begins recording.
func (c *Controller) Start(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.listening && !c.stopping {
		c.listening = true
		c.record(StateListening, reason)
	}
}

// Stop pauses recording; the capture keeps running.
func (c *Controller) Stop(reason string) {
	c.mu.Lock()
	if c.listening && !c.stopping {
		c.listening = false
		c.record(StateIdle, reason)
	}
	c.mu.Unlock()
}

// Listening reports whether pointer samples should be recorded.
func (c *Controller) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening && !c.stopping
}

// HandleKey maps the configured hotkeys onto Start and Stop.
func (c *Controller) HandleKey(key string) {
	switch strings.ToLower(key) {
	case c.startKey:
		c.Start("hotkey " + c.startKey)
	case c.stopKey:
		c.Stop("hotkey " + c.stopKey)
	}
}

// Kill requests the capture to stop and propagates an optional error.
func (c *Controller) Kill(err error) {
	c.mu.Lock()
	if !c.stopping {
		c.stopping = true
		c.listening = false
		reason := "killed"
		if err != nil {
			reason = err.Error()
		}
		c.record(StateStopping, reason)
		close(c.done)
	}
	if err != nil && c.stopErr == nil {
		c.stopErr = err
	}
	c.mu.Unlock()
}

// Done is closed once Kill has been called.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Err returns the error passed to the first Kill that carried one.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopErr
}

// State reports the textual state for diagnostics.
func (c *Controller) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.stopping:
		return StateStopping
	case c.listening:
		return StateListening
	default:
		return StateIdle
	}
}

// Timeline returns a copy of the recorded transitions.
func (c *Controller) Timeline() []runmanifest.ControllerTimelineEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]runmanifest.ControllerTimelineEntry(nil), c.timeline...)
}

// record must be called with mu held.
func (c *Controller) record(state, reason string) {
	c.timeline = append(c.timeline, runmanifest.ControllerTimelineEntry{
		State:     state,
		Reason:    reason,
		Timestamp: c.clock().UTC(),
	})
}
