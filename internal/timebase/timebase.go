// Package timebase converts between wall-clock time and the chain's
// logical slot numbers. All arithmetic is integer; slots are a uniform
// linear clock with no DST/timezone correction.
package timebase

import (
	"time"

	"github.com/orcfax/fact-index/internal/models"
)

// Period is a coarse duration used by SlotAfterPeriod, expressed in the
// units an operator actually reaches for (a day-sized backfill window, a
// week, a month) rather than a raw millisecond count.
type Period int

const (
	PeriodDay Period = iota
	PeriodWeek
	PeriodMonth
)

func (p Period) milliseconds() int64 {
	const day = int64(24 * time.Hour / time.Millisecond)
	switch p {
	case PeriodWeek:
		return 7 * day
	case PeriodMonth:
		return 30 * day
	default:
		return day
	}
}

// SlotToDate converts a slot number to wall-clock time for the network.
func SlotToDate(slot int64, net models.Network) time.Time {
	ms := net.ZeroTimeMs + (slot-net.ZeroSlot)*net.SlotLengthMs
	return time.UnixMilli(ms).UTC()
}

// DateToSlot inverts SlotToDate with integer-floor division.
func DateToSlot(t time.Time, net models.Network) int64 {
	ms := t.UnixMilli()
	delta := ms - net.ZeroTimeMs
	return net.ZeroSlot + floorDiv(delta, net.SlotLengthMs)
}

// SlotAfterPeriod advances slot by one day/week/month worth of slots,
// floor-dividing the period's millisecond length by the network's slot
// length. Used by the backfill populator to walk day-sized windows.
func SlotAfterPeriod(slot int64, period Period, net models.Network) int64 {
	return slot + floorDiv(period.milliseconds(), net.SlotLengthMs)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
