// Package clock resolves "today" and the weekday/weekend classification
// in the configured time zone. All date strings are ISO (YYYY-MM-DD).
package clock

import (
	"fmt"
	"time"
)

// DayType selects which cutoff time applies on a calendar day.
type DayType int

const (
	Weekday DayType = iota
	Weekend
)

func (d DayType) String() string {
	if d == Weekend {
		return "weekend"
	}
	return "weekday"
}

const dateLayout = "2006-01-02"

// Provider is bound to one IANA time zone for the lifetime of the process.
type Provider struct {
	loc *time.Location
}

func New(tz string) (*Provider, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("clock: load timezone %q: %w", tz, err)
	}
	return &Provider{loc: loc}, nil
}

func (p *Provider) Location() *time.Location { return p.loc }

func (p *Provider) Now() time.Time { return time.Now().In(p.loc) }

// Today returns the current calendar date in the provider's zone.
func (p *Provider) Today() string { return p.Now().Format(dateLayout) }

// DayTypeNow classifies the current calendar day.
func (p *Provider) DayTypeNow() DayType { return DayTypeOf(p.Now()) }

// DayTypeOf classifies t's calendar day by weekday.
func DayTypeOf(t time.Time) DayType {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return Weekend
	default:
		return Weekday
	}
}
