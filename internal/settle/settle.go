// Package settle implements the settlement math for WagerPals events:
// proportional-share pot splitting and greedy debt matching.
//
// Both functions are pure and permissive. Malformed input (no bets, a
// winning side nobody backed) degenerates to an empty or all-negative
// result set instead of returning an error; request validation upstream
// is the single source of rejection.
//
// All monetary values use shopspring/decimal — never float64 for money.
package settle

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/viraatdas/wagerpals/internal/model"
)

// CentScale is the number of decimal places for net results and payments.
const CentScale int32 = 2

// ComputeNetResults computes each participant's net gain or loss for an
// event, given its full bet ledger and the declared winning side.
//
// Late bets are excluded from pot math entirely: they contribute nothing
// to side totals and produce no result entry for a user whose only bets
// were late. Each winning bettor reclaims the whole pot in proportion to
// their share of the winning side's stake. If nobody backed the winning
// side, no winnings are distributed and every counted bettor's net is
// simply the negation of their stake; the pot is forfeited, not refunded.
//
// Results are rounded to cents (round half away from zero) and returned
// in order of each user's first counted bet.
func ComputeNetResults(bets []model.Bet, winningSide string) []model.NetResult {
	type tally struct {
		username string
		stake    decimal.Decimal
		winnings decimal.Decimal
	}

	sideTotals := make(map[string]decimal.Decimal)
	var counted []model.Bet
	for _, b := range bets {
		if b.IsLate {
			continue
		}
		counted = append(counted, b)
		sideTotals[b.Side] = sideTotals[b.Side].Add(b.Amount)
	}

	totalPot := decimal.Zero
	for _, t := range sideTotals {
		totalPot = totalPot.Add(t)
	}
	winningTotal := sideTotals[winningSide]

	tallies := make(map[string]*tally)
	var order []string

	for _, b := range counted {
		tl, ok := tallies[b.UserID]
		if !ok {
			tl = &tally{username: b.Username}
			tallies[b.UserID] = tl
			order = append(order, b.UserID)
		}
		tl.stake = tl.stake.Add(b.Amount)
		if b.Side == winningSide && winningTotal.IsPositive() {
			tl.winnings = tl.winnings.Add(totalPot.Mul(b.Amount).Div(winningTotal))
		}
	}

	results := make([]model.NetResult, 0, len(order))
	for _, uid := range order {
		tl := tallies[uid]
		results = append(results, model.NetResult{
			UserID:   uid,
			Username: tl.username,
			Net:      tl.winnings.Sub(tl.stake).Round(CentScale),
		})
	}
	return results
}

// ComputePayments turns net results into a short list of peer-to-peer
// transfers that settle everyone to zero.
//
// Greedy largest-to-largest matching: winners sorted descending by net,
// losers ascending (most negative first), then a two-pointer walk paying
// min(winner remainder, |loser remainder|) at each step. Produces at most
// |winners|+|losers|-1 payments. Not provably minimal for every multi-party
// case; this exact strategy and its tie-breaking are what the clients
// display.
//
// The input slice is never mutated; matching runs on a working copy.
func ComputePayments(netResults []model.NetResult) []model.Payment {
	var winners, losers []model.NetResult
	for _, r := range netResults {
		switch {
		case r.Net.IsPositive():
			winners = append(winners, r)
		case r.Net.IsNegative():
			losers = append(losers, r)
		}
	}

	// Stable sorts so that equal nets keep their result-set order.
	sort.SliceStable(winners, func(i, j int) bool {
		return winners[i].Net.GreaterThan(winners[j].Net)
	})
	sort.SliceStable(losers, func(i, j int) bool {
		return losers[i].Net.LessThan(losers[j].Net)
	})

	var payments []model.Payment
	wi, li := 0, 0
	for wi < len(winners) && li < len(losers) {
		amount := decimal.Min(winners[wi].Net, losers[li].Net.Abs())

		if amount.IsPositive() {
			payments = append(payments, model.Payment{
				From:   losers[li].Username,
				To:     winners[wi].Username,
				Amount: amount,
			})
		}

		winners[wi].Net = winners[wi].Net.Sub(amount)
		losers[li].Net = losers[li].Net.Add(amount)

		if winners[wi].Net.IsZero() {
			wi++
		}
		if losers[li].Net.IsZero() {
			li++
		}
	}
	return payments
}
