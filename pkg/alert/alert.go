// Package alert raises rate-limited notifications when a sensor's
// rolling average misbehaves. Dispatch is asynchronous so a slow or
// broken transport never stalls a polling cycle.
package alert

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/automatedhome/freezer/pkg/metrics"
)

// Resend is the minimum elapsed time between two alerts of the same
// kind for the same sensor.
const Resend = 30 * time.Minute

// Kind labels the alert conditions a sensor can raise.
type Kind string

const (
	AllNaN    Kind = "allnan"
	OverTemp  Kind = "overtemp"
	UnderTemp Kind = "undertemp"
)

// Notifier delivers one alert. Implementations report delivery failure
// through the error; they must not panic.
type Notifier interface {
	Send(subject, body string) error
}

// Dispatcher applies per-(sensor, kind) rate limiting and hands alerts
// to the Notifier on a separate goroutine. The rate-limit clock is the
// monotonic reading carried by time.Time, so wall-clock adjustments
// cannot suppress or storm alerts.
type Dispatcher struct {
	notifier Notifier
	mets     *metrics.Metrics
	resend   time.Duration

	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

// NewDispatcher returns a Dispatcher sending through n. A nil n
// disables dispatch entirely (alerts are counted as suppressed).
// mets may be nil.
func NewDispatcher(n Notifier, mets *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		notifier: n,
		mets:     mets,
		resend:   Resend,
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// AllNaN raises the sustained-failure alert: the rolling window holds
// no finite value at all.
func (d *Dispatcher) AllNaN(sensor string) {
	subject := fmt.Sprintf("%s sensor ERROR!", sensor)
	body := fmt.Sprintf(
		"The 30-min average temperature of the '%s' is full of NaN values!\n\n"+
			"Something has gone wrong, check immediately!!!",
		sensor,
	)
	d.trigger(sensor, AllNaN, subject, body)
}

// OverTemp raises the over-threshold alert with the latest stats.
func (d *Dispatcher) OverTemp(sensor string, temp, rh float64, unit string) {
	subject := fmt.Sprintf("%s getting HOT!", sensor)
	body := fmt.Sprintf(
		"The 30-min average temperature of the '%s' has exceeded the threshold set!\n\n"+
			"Current stats:\n\n"+
			"  Temperature       : %6.1f %s\n"+
			"  Relative Humidity : %6.1f %%\n\n"+
			"Check on freezer immediately!!!",
		sensor, temp, unit, rh,
	)
	d.trigger(sensor, OverTemp, subject, body)
}

// UnderTemp raises the under-threshold alert with the latest stats.
func (d *Dispatcher) UnderTemp(sensor string, temp, rh float64, unit string) {
	subject := fmt.Sprintf("%s getting too COLD!", sensor)
	body := fmt.Sprintf(
		"The 30-min average temperature of the '%s' has gone below the threshold set!\n\n"+
			"Current stats:\n\n"+
			"  Temperature       : %6.1f %s\n"+
			"  Relative Humidity : %6.1f %%\n\n"+
			"Check on freezer immediately!!!",
		sensor, temp, unit, rh,
	)
	d.trigger(sensor, UnderTemp, subject, body)
}

func (d *Dispatcher) trigger(sensor string, kind Kind, subject, body string) {
	if d.notifier == nil {
		return
	}

	key := sensor + "|" + string(kind)

	d.mu.Lock()
	if t, ok := d.last[key]; ok && d.now().Sub(t) < d.resend {
		d.mu.Unlock()
		return
	}
	// Stamp before the send so a failing transport still counts as an
	// attempt and cannot be stormed.
	d.last[key] = d.now()
	d.mu.Unlock()

	if d.mets != nil {
		d.mets.AlertsSent.WithLabelValues(sensor, string(kind)).Inc()
	}

	go func() {
		if err := d.notifier.Send(subject, body); err != nil {
			log.Printf("%s - failed to send %s alert: %v", sensor, kind, err)
		}
	}()
}
