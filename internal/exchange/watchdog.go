package exchange

import "time"

// Watchdog calls its fire callback once the silence window has elapsed since the last Kick:
// the adapter's silence-detection mechanism, a default 30s window with no
// observed message forcing a reconnect.
type Watchdog struct {
	timer   *time.Timer
	silence time.Duration
	fire    func()
}

// NewWatchdog starts a watchdog that calls fire once if Kick is not called
// again within silence. Callers must call Stop when the adapter shuts down.
func NewWatchdog(silence time.Duration, fire func()) *Watchdog {
	w := &Watchdog{silence: silence, fire: fire}
	w.timer = time.AfterFunc(silence, fire)
	return w
}

// Kick resets the silence window; call on every inbound message.
func (w *Watchdog) Kick() {
	w.timer.Reset(w.silence)
}

// Stop cancels the watchdog permanently.
func (w *Watchdog) Stop() {
	w.timer.Stop()
}
