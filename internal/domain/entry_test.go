package domain

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

func line(n int, account string, dir Direction, amount uint64) EntryLine {
	return EntryLine{AccountID: account, Direction: dir, Amount: amount, LineNumber: n}
}

func TestEntry_Balanced(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		lines    []EntryLine
		balanced bool
	}{
		{
			name: "two line balanced",
			lines: []EntryLine{
				line(1, "100", DirectionDebit, 500),
				line(2, "200", DirectionCredit, 500),
			},
			balanced: true,
		},
		{
			name: "one unit short",
			lines: []EntryLine{
				line(1, "100", DirectionDebit, 500),
				line(2, "200", DirectionCredit, 499),
			},
			balanced: false,
		},
		{
			name: "split credit balanced",
			lines: []EntryLine{
				line(1, "100", DirectionDebit, 1000),
				line(2, "200", DirectionCredit, 700),
				line(3, "300", DirectionCredit, 300),
			},
			balanced: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Entry{Lines: tt.lines}
			if got := e.Balanced(); got != tt.balanced {
				t.Fatalf("Balanced() = %v, want %v", got, tt.balanced)
			}
		})
	}
}

func TestEntry_Imbalance(t *testing.T) {
	t.Parallel()

	e := &Entry{Lines: []EntryLine{
		line(1, "100", DirectionDebit, 500),
		line(2, "200", DirectionCredit, 499),
	}}
	if got := e.Imbalance(); got != 1 {
		t.Fatalf("Imbalance() = %d, want 1", got)
	}

	e = &Entry{Lines: []EntryLine{
		line(1, "100", DirectionDebit, 499),
		line(2, "200", DirectionCredit, 500),
	}}
	if got := e.Imbalance(); got != -1 {
		t.Fatalf("Imbalance() = %d, want -1", got)
	}
}

func TestEntry_LinesContiguous(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		numbers []int
		want    bool
	}{
		{"in order", []int{1, 2, 3}, true},
		{"gap", []int{1, 3}, false},
		{"zero based", []int{0, 1}, false},
		{"out of order", []int{2, 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Entry{}
			for _, n := range tt.numbers {
				e.Lines = append(e.Lines, line(n, "100", DirectionDebit, 1))
			}
			if got := e.LinesContiguous(); got != tt.want {
				t.Fatalf("LinesContiguous() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_AccountIDs(t *testing.T) {
	t.Parallel()

	e := &Entry{Lines: []EntryLine{
		line(1, "300", DirectionDebit, 100),
		line(2, "100", DirectionCredit, 50),
		line(3, "300", DirectionCredit, 50),
	}}

	got := e.AccountIDs()
	want := []string{"100", "300"}
	if len(got) != len(want) {
		t.Fatalf("AccountIDs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("AccountIDs() = %v, want %v", got, want)
		}
	}
}

func TestEntry_TransferLegs(t *testing.T) {
	t.Parallel()

	t.Run("two lines yield one leg", func(t *testing.T) {
		e := &Entry{Lines: []EntryLine{
			line(1, "100", DirectionDebit, 500),
			line(2, "200", DirectionCredit, 500),
		}}
		legs := e.TransferLegs()
		if len(legs) != 1 {
			t.Fatalf("expected 1 leg, got %d", len(legs))
		}
		if legs[0].DebitAccountID != "100" || legs[0].CreditAccountID != "200" || legs[0].Amount != 500 {
			t.Fatalf("unexpected leg: %+v", legs[0])
		}
	})

	t.Run("split credit yields two legs", func(t *testing.T) {
		e := &Entry{Lines: []EntryLine{
			line(1, "100", DirectionDebit, 1000),
			line(2, "200", DirectionCredit, 700),
			line(3, "300", DirectionCredit, 300),
		}}
		legs := e.TransferLegs()
		if len(legs) != 2 {
			t.Fatalf("expected 2 legs, got %d", len(legs))
		}
		if legs[0].CreditAccountID != "200" || legs[0].Amount != 700 {
			t.Fatalf("unexpected first leg: %+v", legs[0])
		}
		if legs[1].CreditAccountID != "300" || legs[1].Amount != 300 {
			t.Fatalf("unexpected second leg: %+v", legs[1])
		}
	})

	t.Run("decomposition conserves per account flow", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		accounts := []string{"a", "b", "c", "d", "e"}

		for i := 0; i < 200; i++ {
			e := &Entry{}
			var total uint64
			numDebits := 1 + rng.Intn(3)
			for d := 0; d < numDebits; d++ {
				amt := uint64(1 + rng.Intn(10_000))
				total += amt
				e.Lines = append(e.Lines, line(len(e.Lines)+1, accounts[rng.Intn(len(accounts))], DirectionDebit, amt))
			}
			remaining := total
			for remaining > 0 {
				amt := uint64(1 + rng.Intn(int(remaining)))
				if len(e.Lines) > 8 {
					amt = remaining
				}
				remaining -= amt
				e.Lines = append(e.Lines, line(len(e.Lines)+1, accounts[rng.Intn(len(accounts))], DirectionCredit, amt))
			}

			if !e.Balanced() {
				t.Fatalf("generator produced imbalanced entry: %+v", e.Lines)
			}

			net := map[string]int64{}
			for _, l := range e.Lines {
				if l.Direction == DirectionDebit {
					net[l.AccountID] -= int64(l.Amount)
				} else {
					net[l.AccountID] += int64(l.Amount)
				}
			}

			legNet := map[string]int64{}
			var legTotal uint64
			for _, leg := range e.TransferLegs() {
				legNet[leg.DebitAccountID] -= int64(leg.Amount)
				legNet[leg.CreditAccountID] += int64(leg.Amount)
				legTotal += leg.Amount
			}

			if legTotal != total {
				t.Fatalf("legs move %d, entry moves %d", legTotal, total)
			}
			for acct, want := range net {
				if legNet[acct] != want {
					t.Fatalf("account %s: legs net %d, entry net %d", acct, legNet[acct], want)
				}
			}
		}
	})
}

func TestLegIntentKey(t *testing.T) {
	t.Parallel()

	if got := LegIntentKey("intent-1", 0); got != "intent-1" {
		t.Fatalf("first leg key = %q, want bare intent id", got)
	}
	if got := LegIntentKey("intent-1", 2); got != "intent-1:2" {
		t.Fatalf("leg key = %q, want intent-1:2", got)
	}
}

func TestNewReversalEntry(t *testing.T) {
	t.Parallel()

	original := &Entry{
		ID:       "entry-1",
		IntentID: "intent-1",
		Source:   SourceACH,
		Lines: []EntryLine{
			line(1, "100", DirectionDebit, 500),
			line(2, "200", DirectionCredit, 500),
		},
	}

	now := time.Now()
	rev := NewReversalEntry(original, "entry-2", "intent-2", now)

	if rev.Source != SourceCorrection {
		t.Fatalf("reversal source = %s, want CORRECTION", rev.Source)
	}
	if rev.CorrectionOf != "entry-1" {
		t.Fatalf("reversal CorrectionOf = %s, want entry-1", rev.CorrectionOf)
	}
	if !rev.Balanced() {
		t.Fatalf("reversal is imbalanced")
	}
	if rev.Lines[0].Direction != DirectionCredit || rev.Lines[1].Direction != DirectionDebit {
		t.Fatalf("directions not swapped: %+v", rev.Lines)
	}
	if original.Lines[0].Direction != DirectionDebit {
		t.Fatalf("original entry mutated")
	}
}

func TestEntryStatus_Terminal(t *testing.T) {
	t.Parallel()

	if StatusPending.Terminal() {
		t.Fatal("PENDING should not be terminal")
	}
	for _, s := range []EntryStatus{StatusClearedFinalized, StatusRejected, StatusFailed} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	if !StatusClearedFinalized.Finalized() {
		t.Fatal("CLEARED_FINALIZED should be finalized")
	}
	if StatusFailed.Finalized() {
		t.Fatal("FAILED should not be finalized")
	}
}

func TestParseDirection(t *testing.T) {
	t.Parallel()

	if _, err := ParseDirection("DEBIT"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseDirection("debit"); !errors.Is(err, ErrInvalidDirection) {
		t.Fatalf("expected ErrInvalidDirection, got %v", err)
	}
}

func TestParseSource(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"ACH", "CARD", "ANCHOR", "INTERNAL", "CORRECTION"} {
		if _, err := ParseSource(raw); err != nil {
			t.Fatalf("source %s: unexpected error %v", raw, err)
		}
	}
	if _, err := ParseSource("ATTESTATION"); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("expected ErrUnknownSource, got %v", err)
	}
}
