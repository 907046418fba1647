// Package vesting resolves how many of an investor's held shares are
// currently sellable versus locked behind not-yet-vested grants.
package vesting

import (
	"time"

	"github.com/aristath/exchange/internal/domain"
)

// Breakdown describes the sellable/locked split of a holding at a point
// in time. Purchased shares are always sellable; gifted shares become
// sellable once their grant's vesting date has passed.
type Breakdown struct {
	NextUnlock   *time.Time // Earliest vesting date among locked grants, nil if none
	Sellable     int64      // Purchased + vested gifted shares
	Locked       int64      // Gifted shares still behind a vesting date
	Purchased    int64      // Held shares not covered by any grant (clamped at 0)
	TotalGranted int64
	Vested       int64
}

// Resolve computes the breakdown for heldShares given the investor's
// grants for the company, as of asOf. Grants are expected sorted by
// vesting date ascending (the repository guarantees this).
//
// Gifted shares are tracked as a subset of the holding, not additive.
// If external grant issuance ever exceeds the holding, purchased shares
// clamp at 0 rather than going negative.
func Resolve(heldShares int64, grants []domain.VestingGrant, asOf time.Time) Breakdown {
	b := Breakdown{}

	for _, g := range grants {
		b.TotalGranted += g.Shares
		if g.Vested(asOf) {
			b.Vested += g.Shares
		} else if b.NextUnlock == nil {
			t := g.VestsAt
			b.NextUnlock = &t
		}
	}

	b.Locked = b.TotalGranted - b.Vested

	b.Purchased = heldShares - b.TotalGranted
	if b.Purchased < 0 {
		b.Purchased = 0
	}

	b.Sellable = b.Purchased + b.Vested
	return b
}
