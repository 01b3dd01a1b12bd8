package device

import "time"

// Reading is one sample from the sensors.
type Reading struct {
	LDR uint16
	PIR bool
}

// Trigger decides when a reading is worth sending: on the first reading, when
// the LDR value moved by more than the threshold since the last send, when the
// PIR state changed, or when the send interval has elapsed.
//
// A Trigger is not safe for concurrent use.
type Trigger struct {
	threshold uint16
	interval  time.Duration

	primed   bool
	last     Reading
	lastSent time.Time
}

// NewTrigger creates a trigger. A zero interval disables the periodic send.
func NewTrigger(threshold uint16, interval time.Duration) *Trigger {
	return &Trigger{threshold: threshold, interval: interval}
}

// ShouldSend reports whether r, sampled at now, should be sent.
func (t *Trigger) ShouldSend(r Reading, now time.Time) bool {
	if !t.primed {
		return true
	}
	if r.PIR != t.last.PIR {
		return true
	}
	if ldrDelta(r.LDR, t.last.LDR) > int(t.threshold) {
		return true
	}
	return t.interval > 0 && now.Sub(t.lastSent) >= t.interval
}

// MarkSent records r as the last sent reading.
func (t *Trigger) MarkSent(r Reading, now time.Time) {
	t.primed = true
	t.last = r
	t.lastSent = now
}

func ldrDelta(a, b uint16) int {
	d := int(a) - int(b)
	if d < 0 {
		return -d
	}
	return d
}
