package notifier

import (
	"context"
	"os"
	"time"

	"github.com/kagehashi-labs/arcadewatchd/internal/logging"
	"github.com/kagehashi-labs/arcadewatchd/internal/retrychan"
)

// LEDNotifier drives a two-color status LED exposed as a sysfs-style
// device file (write "1" to light it, "0" to clear it). Writes go through
// a priority-retry channel because the device file can transiently fail
// (cabinet hardware resetting, permissions race on boot) and a dropped
// blink shouldn't wedge the caller.
type LEDNotifier struct {
	ch *retrychan.Channel[Event]

	redPath, greenPath string
	log                logging.Logger
}

// NewLEDNotifier creates an LEDNotifier writing to the given device paths.
func NewLEDNotifier(redPath, greenPath string) *LEDNotifier {
	n := &LEDNotifier{
		redPath:   redPath,
		greenPath: greenPath,
		log:       logging.Named("notifier.led"),
	}
	n.ch = retrychan.New[Event](n, 16, "notifier.led")
	return n
}

// Run drives the underlying channel until ctx is cancelled.
func (n *LEDNotifier) Run(ctx context.Context) { n.ch.Run(ctx) }

func (n *LEDNotifier) Success(quick bool, message string) {
	n.ch.Send(Event{Kind: EventSuccess, Quick: quick, Message: message})
}
func (n *LEDNotifier) Error(message string) {
	n.ch.Send(Event{Kind: EventError, Message: message})
}
func (n *LEDNotifier) Emergency(message string) {
	n.ch.Send(Event{Kind: EventEmergency, Message: message})
}
func (n *LEDNotifier) StartShutdown() {
	n.ch.Send(Event{Kind: EventStartShutdown})
}

// IsOnline is always true: the LED has no notion of network reachability.
func (n *LEDNotifier) IsOnline() bool { return true }

func (n *LEDNotifier) IsHighPriority(e Event) bool { return e.IsHighPriority() }

func (n *LEDNotifier) Handle(ctx context.Context, e Event) retrychan.Action {
	var err error
	switch e.Kind {
	case EventSuccess:
		err = n.blinkSuccess(e.Quick)
	case EventError:
		err = n.blinkError()
	case EventEmergency:
		err = n.blinkEmergency()
	case EventStartShutdown:
		err = n.clear()
	}
	if err != nil {
		n.log.Warn().Err(err).Str(logging.FieldEvent, e.Message).Msg("LED write failed")
		return retrychan.Retry
	}
	return retrychan.Continue
}

func (n *LEDNotifier) writeLED(path string, on bool) error {
	value := []byte("0")
	if on {
		value = []byte("1")
	}
	return os.WriteFile(path, value, 0644)
}

func (n *LEDNotifier) clear() error {
	if err := n.writeLED(n.redPath, false); err != nil {
		return err
	}
	return n.writeLED(n.greenPath, false)
}

// blinkSuccess lights red, waits (100ms if quick, 500ms otherwise), then
// lights green and waits 500ms before clearing.
func (n *LEDNotifier) blinkSuccess(quick bool) error {
	wait := 500 * time.Millisecond
	if quick {
		wait = 100 * time.Millisecond
	}
	if err := n.writeLED(n.redPath, true); err != nil {
		return err
	}
	time.Sleep(wait)
	if err := n.writeLED(n.redPath, false); err != nil {
		return err
	}
	if err := n.writeLED(n.greenPath, true); err != nil {
		return err
	}
	time.Sleep(500 * time.Millisecond)
	return n.writeLED(n.greenPath, false)
}

// blinkError alternates red and green twice at 250ms intervals, ending with
// both LEDs off, then pauses 250ms more.
func (n *LEDNotifier) blinkError() error {
	for i := 0; i < 2; i++ {
		if err := n.writeLED(n.redPath, true); err != nil {
			return err
		}
		time.Sleep(250 * time.Millisecond)
		if err := n.writeLED(n.redPath, false); err != nil {
			return err
		}
		if err := n.writeLED(n.greenPath, true); err != nil {
			return err
		}
		time.Sleep(250 * time.Millisecond)
		if err := n.writeLED(n.greenPath, false); err != nil {
			return err
		}
	}
	time.Sleep(250 * time.Millisecond)
	return nil
}

// blinkEmergency alternates red and green nine times at 100ms intervals,
// ending with both LEDs off, then pauses 900ms more — a longer, more insistent
// pattern than blinkError, reserved for conditions a human must notice.
func (n *LEDNotifier) blinkEmergency() error {
	for i := 0; i < 9; i++ {
		if err := n.writeLED(n.redPath, true); err != nil {
			return err
		}
		time.Sleep(100 * time.Millisecond)
		if err := n.writeLED(n.redPath, false); err != nil {
			return err
		}
		if err := n.writeLED(n.greenPath, true); err != nil {
			return err
		}
		time.Sleep(100 * time.Millisecond)
		if err := n.writeLED(n.greenPath, false); err != nil {
			return err
		}
	}
	time.Sleep(900 * time.Millisecond)
	return nil
}
