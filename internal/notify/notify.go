// Package notify delivers service and location events to observers.
package notify

import (
	"gpstether/internal/fix"
)

// Notifier observes the gpsd service and the location source.
type Notifier interface {
	ServiceStatus(running bool)
	GPSStatus(text string)
	Location(f fix.Fix)
}

// Multi forwards every event to each member in order.
type Multi []Notifier

func (m Multi) ServiceStatus(running bool) {
	for _, n := range m {
		n.ServiceStatus(running)
	}
}

func (m Multi) GPSStatus(text string) {
	for _, n := range m {
		n.GPSStatus(text)
	}
}

func (m Multi) Location(f fix.Fix) {
	for _, n := range m {
		n.Location(f)
	}
}
