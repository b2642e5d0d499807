package settle

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/viraatdas/wagerpals/internal/model"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func bet(userID, username, side string, amount float64, late bool) model.Bet {
	return model.Bet{
		ID:       "bet-" + userID + "-" + side,
		EventID:  "ev1",
		UserID:   userID,
		Username: username,
		Side:     side,
		Amount:   d(amount),
		IsLate:   late,
	}
}

func findNet(t *testing.T, results []model.NetResult, userID string) decimal.Decimal {
	t.Helper()
	for _, r := range results {
		if r.UserID == userID {
			return r.Net
		}
	}
	t.Fatalf("no result for user %s", userID)
	return decimal.Zero
}

// --- ComputeNetResults ---

func TestComputeNetResults_ProportionalSplit(t *testing.T) {
	// Alice $30 Yes, Bob $10 Yes, Carol $40 No. Yes wins.
	// Pot 80, winning total 40. Alice reclaims 60 (net +30),
	// Bob reclaims 20 (net +10), Carol loses her 40.
	bets := []model.Bet{
		bet("u-alice", "Alice", "Yes", 30, false),
		bet("u-bob", "Bob", "Yes", 10, false),
		bet("u-carol", "Carol", "No", 40, false),
	}

	results := ComputeNetResults(bets, "Yes")
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if net := findNet(t, results, "u-alice"); !net.Equal(d(30)) {
		t.Errorf("Alice net should be +30, got %s", net)
	}
	if net := findNet(t, results, "u-bob"); !net.Equal(d(10)) {
		t.Errorf("Bob net should be +10, got %s", net)
	}
	if net := findNet(t, results, "u-carol"); !net.Equal(d(-40)) {
		t.Errorf("Carol net should be -40, got %s", net)
	}
}

func TestComputeNetResults_ZeroSum(t *testing.T) {
	bets := []model.Bet{
		bet("u1", "Alice", "Yes", 12.5, false),
		bet("u2", "Bob", "Yes", 7.25, false),
		bet("u3", "Carol", "No", 33.1, false),
		bet("u4", "Dave", "No", 9.99, false),
		bet("u5", "Eve", "Yes", 0.01, false),
	}

	results := ComputeNetResults(bets, "No")
	sum := decimal.Zero
	for _, r := range results {
		sum = sum.Add(r.Net)
	}
	// Zero-sum modulo cent rounding.
	if sum.Abs().GreaterThan(d(0.02)) {
		t.Errorf("nets should sum to ~0, got %s", sum)
	}
}

func TestComputeNetResults_LateBetsExcluded(t *testing.T) {
	bets := []model.Bet{
		bet("u1", "Alice", "Yes", 20, false),
		bet("u2", "Bob", "No", 20, false),
		bet("u3", "Carol", "Yes", 500, true), // late: no pot effect
	}

	results := ComputeNetResults(bets, "Yes")
	if len(results) != 2 {
		t.Fatalf("late-only bettor should be absent, got %d results", len(results))
	}
	// Alice takes the whole 40 pot against her 20 stake.
	if net := findNet(t, results, "u1"); !net.Equal(d(20)) {
		t.Errorf("Alice net should be +20, got %s", net)
	}
	if net := findNet(t, results, "u2"); !net.Equal(d(-20)) {
		t.Errorf("Bob net should be -20, got %s", net)
	}
}

func TestComputeNetResults_LateAndCountedSameUser(t *testing.T) {
	bets := []model.Bet{
		bet("u1", "Alice", "Yes", 10, false),
		{ID: "b2", EventID: "ev1", UserID: "u1", Username: "Alice", Side: "Yes", Amount: d(90), IsLate: true},
		bet("u2", "Bob", "No", 10, false),
	}

	results := ComputeNetResults(bets, "Yes")
	// The late 90 never enters stake or winnings.
	if net := findNet(t, results, "u1"); !net.Equal(d(10)) {
		t.Errorf("Alice net should be +10, got %s", net)
	}
}

func TestComputeNetResults_NoWinnerForfeitsPot(t *testing.T) {
	// Nobody backed the winning side: every counted bettor loses their
	// stake, nothing is redistributed.
	bets := []model.Bet{
		bet("u1", "Alice", "No", 15, false),
		bet("u2", "Bob", "No", 25, false),
	}

	results := ComputeNetResults(bets, "Yes")
	if net := findNet(t, results, "u1"); !net.Equal(d(-15)) {
		t.Errorf("Alice net should be -15, got %s", net)
	}
	if net := findNet(t, results, "u2"); !net.Equal(d(-25)) {
		t.Errorf("Bob net should be -25, got %s", net)
	}
}

func TestComputeNetResults_WinningSideOnlyLateBets(t *testing.T) {
	bets := []model.Bet{
		bet("u1", "Alice", "Yes", 50, true), // late on winning side
		bet("u2", "Bob", "No", 30, false),
	}

	results := ComputeNetResults(bets, "Yes")
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if net := findNet(t, results, "u2"); !net.Equal(d(-30)) {
		t.Errorf("Bob net should be -30, got %s", net)
	}
}

func TestComputeNetResults_EmptyAndUnknownInput(t *testing.T) {
	if results := ComputeNetResults(nil, "Yes"); len(results) != 0 {
		t.Errorf("empty ledger should produce no results, got %d", len(results))
	}

	bets := []model.Bet{bet("u1", "Alice", "Yes", 10, false)}
	results := ComputeNetResults(bets, "SomethingElse")
	if len(results) != 1 {
		t.Fatalf("unknown winning side should still produce results, got %d", len(results))
	}
	if !results[0].Net.Equal(d(-10)) {
		t.Errorf("unknown winning side degenerates to -stake, got %s", results[0].Net)
	}
}

func TestComputeNetResults_MultipleBetsPerUser(t *testing.T) {
	bets := []model.Bet{
		bet("u1", "Alice", "Yes", 10, false),
		{ID: "b2", EventID: "ev1", UserID: "u1", Username: "Alice", Side: "Yes", Amount: d(20), IsLate: false},
		bet("u2", "Bob", "No", 30, false),
	}

	results := ComputeNetResults(bets, "Yes")
	if len(results) != 2 {
		t.Fatalf("expected one result per distinct user, got %d", len(results))
	}
	// Alice staked 30, reclaims the 60 pot: net +30.
	if net := findNet(t, results, "u1"); !net.Equal(d(30)) {
		t.Errorf("Alice net should be +30, got %s", net)
	}
}

func TestComputeNetResults_RoundsToCents(t *testing.T) {
	// Pot 100, three equal winners on a 30 total: each reclaims 33.33....
	bets := []model.Bet{
		bet("u1", "Alice", "Yes", 10, false),
		bet("u2", "Bob", "Yes", 10, false),
		bet("u3", "Carol", "Yes", 10, false),
		bet("u4", "Dave", "No", 70, false),
	}

	results := ComputeNetResults(bets, "Yes")
	for _, r := range results {
		if r.Net.Exponent() < -2 {
			t.Errorf("net %s for %s has more than 2 decimal places", r.Net, r.Username)
		}
	}
	if net := findNet(t, results, "u1"); !net.Equal(d(23.33)) {
		t.Errorf("expected 33.33 - 10 = 23.33, got %s", net)
	}
}

// --- ComputePayments ---

func TestComputePayments_SingleLoserTwoWinners(t *testing.T) {
	results := []model.NetResult{
		{UserID: "u1", Username: "Alice", Net: d(30)},
		{UserID: "u2", Username: "Bob", Net: d(10)},
		{UserID: "u3", Username: "Carol", Net: d(-40)},
	}

	payments := ComputePayments(results)
	if len(payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(payments))
	}
	if payments[0].From != "Carol" || payments[0].To != "Alice" || !payments[0].Amount.Equal(d(30)) {
		t.Errorf("payment 0 should be Carol->Alice 30, got %+v", payments[0])
	}
	if payments[1].From != "Carol" || payments[1].To != "Bob" || !payments[1].Amount.Equal(d(10)) {
		t.Errorf("payment 1 should be Carol->Bob 10, got %+v", payments[1])
	}
}

func TestComputePayments_DoesNotMutateInput(t *testing.T) {
	results := []model.NetResult{
		{UserID: "u1", Username: "Alice", Net: d(25)},
		{UserID: "u2", Username: "Bob", Net: d(-25)},
	}

	ComputePayments(results)
	if !results[0].Net.Equal(d(25)) || !results[1].Net.Equal(d(-25)) {
		t.Errorf("caller's nets were mutated: %s, %s", results[0].Net, results[1].Net)
	}
}

func TestComputePayments_ConservesBalances(t *testing.T) {
	results := []model.NetResult{
		{UserID: "u1", Username: "Alice", Net: d(17.5)},
		{UserID: "u2", Username: "Bob", Net: d(4.25)},
		{UserID: "u3", Username: "Carol", Net: d(-9)},
		{UserID: "u4", Username: "Dave", Net: d(-12.75)},
	}

	payments := ComputePayments(results)

	paid := make(map[string]decimal.Decimal)
	received := make(map[string]decimal.Decimal)
	for _, p := range payments {
		paid[p.From] = paid[p.From].Add(p.Amount)
		received[p.To] = received[p.To].Add(p.Amount)
	}

	for _, r := range results {
		switch {
		case r.Net.IsPositive():
			if !received[r.Username].Equal(r.Net) {
				t.Errorf("%s should receive %s, got %s", r.Username, r.Net, received[r.Username])
			}
		case r.Net.IsNegative():
			if !paid[r.Username].Equal(r.Net.Abs()) {
				t.Errorf("%s should pay %s, got %s", r.Username, r.Net.Abs(), paid[r.Username])
			}
		}
	}

	// 2 winners, 2 losers: at most 2 payments... plus the crossover, so 3.
	// General bound: winners + losers - 1.
	if len(payments) > 3 {
		t.Errorf("too many payments: %d", len(payments))
	}
}

func TestComputePayments_SkipsZeroNets(t *testing.T) {
	results := []model.NetResult{
		{UserID: "u1", Username: "Alice", Net: d(0)},
		{UserID: "u2", Username: "Bob", Net: d(0)},
	}
	if payments := ComputePayments(results); len(payments) != 0 {
		t.Errorf("all-zero nets should produce no payments, got %d", len(payments))
	}
}

func TestComputePayments_EmptySides(t *testing.T) {
	onlyWinners := []model.NetResult{{UserID: "u1", Username: "Alice", Net: d(10)}}
	if payments := ComputePayments(onlyWinners); len(payments) != 0 {
		t.Errorf("no losers means no payments, got %d", len(payments))
	}
	if payments := ComputePayments(nil); len(payments) != 0 {
		t.Errorf("empty input means no payments, got %d", len(payments))
	}
}

func TestComputePayments_LargestMatchedFirst(t *testing.T) {
	results := []model.NetResult{
		{UserID: "u1", Username: "Small", Net: d(5)},
		{UserID: "u2", Username: "Big", Net: d(50)},
		{UserID: "u3", Username: "Loser", Net: d(-55)},
	}

	payments := ComputePayments(results)
	if len(payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(payments))
	}
	// Big winner settles first.
	if payments[0].To != "Big" || !payments[0].Amount.Equal(d(50)) {
		t.Errorf("first payment should go to Big for 50, got %+v", payments[0])
	}
	if payments[1].To != "Small" || !payments[1].Amount.Equal(d(5)) {
		t.Errorf("second payment should go to Small for 5, got %+v", payments[1])
	}
}

func TestComputePayments_TiesKeepResultOrder(t *testing.T) {
	results := []model.NetResult{
		{UserID: "u1", Username: "First", Net: d(10)},
		{UserID: "u2", Username: "Second", Net: d(10)},
		{UserID: "u3", Username: "Loser", Net: d(-20)},
	}

	payments := ComputePayments(results)
	if len(payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(payments))
	}
	if payments[0].To != "First" || payments[1].To != "Second" {
		t.Errorf("tied winners should settle in result order, got %s then %s",
			payments[0].To, payments[1].To)
	}
}
