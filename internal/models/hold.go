package models

import "time"

// Hold is the security hold on a released transaction: either none (legacy
// rows released before holds existed) or held until a maturity instant.
// The zero value is NoHold.
type Hold struct {
	until time.Time
	set   bool
}

func NoHold() Hold { return Hold{} }

func HoldUntil(t time.Time) Hold { return Hold{until: t.UTC(), set: true} }

// HoldFromNullable maps the persisted nullable available_at column.
func HoldFromNullable(t *time.Time) Hold {
	if t == nil {
		return NoHold()
	}
	return HoldUntil(*t)
}

// Until returns the maturity instant and whether a hold applies.
func (h Hold) Until() (time.Time, bool) { return h.until, h.set }

// Matured reports whether funds under this hold are withdrawable at now.
// A hold matures at its instant, inclusive.
func (h Hold) Matured(now time.Time) bool {
	return !h.set || !now.Before(h.until)
}

// Nullable returns the value stored in available_at.
func (h Hold) Nullable() *time.Time {
	if !h.set {
		return nil
	}
	t := h.until
	return &t
}
