package pricing

import "testing"

func TestClassifyLoadBands(t *testing.T) {
	cases := []struct {
		volume int64
		want   LoadSize
	}{
		{0, LoadQuarter},
		{1, LoadQuarter},
		{100, LoadQuarter},
		{101, LoadHalf},
		{200, LoadHalf},
		{201, LoadThreeQuarter},
		{300, LoadThreeQuarter},
		{301, LoadFull},
		{10_000, LoadFull},
	}
	for _, tc := range cases {
		got := ClassifyLoad(DefaultTiers, tc.volume)
		if got.Size != tc.want {
			t.Errorf("ClassifyLoad(%d) = %s, want %s", tc.volume, got.Size, tc.want)
		}
	}
}

func TestClassifyLoadMonotonic(t *testing.T) {
	order := map[LoadSize]int{LoadQuarter: 0, LoadHalf: 1, LoadThreeQuarter: 2, LoadFull: 3}
	prev := 0
	for v := int64(0); v <= 500; v++ {
		rank := order[ClassifyLoad(DefaultTiers, v).Size]
		if rank < prev {
			t.Fatalf("classification regressed at volume %d", v)
		}
		prev = rank
	}
}

func TestComputeFloorApplied(t *testing.T) {
	// One $50 item at 120 cu ft lands in the half tier, so the $250 floor wins.
	lines := []Line{{Qty: 1, UnitPrice: 5_000, Volume: 120}}
	b := Compute(lines, DefaultTiers, DefaultSpecialHandlingFee)
	if b.LoadSize != LoadHalf {
		t.Fatalf("load size = %s, want %s", b.LoadSize, LoadHalf)
	}
	if b.Subtotal != 25_000 {
		t.Fatalf("subtotal = %d, want 25000", b.Subtotal)
	}
	if b.Total != 25_000 {
		t.Fatalf("total = %d, want 25000", b.Total)
	}
}

func TestComputeAboveFloor(t *testing.T) {
	lines := []Line{
		{Qty: 2, UnitPrice: 12_000, DisposalFee: 1_500, Volume: 40, Weight: 100},
		{Qty: 1, UnitPrice: 8_000, Volume: 30, Weight: 50, SpecialHandling: true},
	}
	b := Compute(lines, DefaultTiers, DefaultSpecialHandlingFee)
	if b.Subtotal != 32_000 {
		t.Fatalf("subtotal = %d, want 32000", b.Subtotal)
	}
	if b.DisposalFees != 3_000 {
		t.Fatalf("disposal = %d, want 3000", b.DisposalFees)
	}
	if b.SpecialHandlingFee != 2_500 {
		t.Fatalf("handling = %d, want 2500", b.SpecialHandlingFee)
	}
	if b.Volume != 110 || b.Weight != 250 {
		t.Fatalf("volume/weight = %d/%d, want 110/250", b.Volume, b.Weight)
	}
	if b.LoadSize != LoadHalf {
		t.Fatalf("load size = %s, want %s", b.LoadSize, LoadHalf)
	}
	if want := b.Subtotal + b.DisposalFees + b.SpecialHandlingFee; b.Total != want {
		t.Fatalf("total = %d, want %d", b.Total, want)
	}
}

func TestComputeEmptyCart(t *testing.T) {
	b := Compute(nil, DefaultTiers, DefaultSpecialHandlingFee)
	if b.LoadSize != LoadQuarter {
		t.Fatalf("load size = %s, want %s", b.LoadSize, LoadQuarter)
	}
	if b.Subtotal != 15_000 || b.Total != 15_000 {
		t.Fatalf("subtotal/total = %d/%d, want quarter floor", b.Subtotal, b.Total)
	}
	if b.Volume != 0 || b.Weight != 0 {
		t.Fatalf("volume/weight = %d/%d, want 0/0", b.Volume, b.Weight)
	}
}

func TestComputeSkipsNonPositiveQty(t *testing.T) {
	lines := []Line{
		{Qty: 0, UnitPrice: 1_000_000, Volume: 400},
		{Qty: -3, UnitPrice: 1_000_000, Volume: 400},
		{Qty: 1, UnitPrice: 4_000, Volume: 10},
	}
	b := Compute(lines, DefaultTiers, DefaultSpecialHandlingFee)
	if b.Volume != 10 {
		t.Fatalf("volume = %d, want 10", b.Volume)
	}
	if b.Subtotal != 15_000 {
		t.Fatalf("subtotal = %d, want quarter floor", b.Subtotal)
	}
}

func TestComputeTotalIdentity(t *testing.T) {
	// Pseudo-random carts keep the breakdown identity intact.
	seed := int64(42)
	next := func(n int64) int64 {
		seed = (seed*6364136223846793005 + 1442695040888963407) % (1 << 31)
		if seed < 0 {
			seed = -seed
		}
		return seed % n
	}
	for i := 0; i < 200; i++ {
		var lines []Line
		for j := int64(0); j <= next(6); j++ {
			lines = append(lines, Line{
				Qty:             int(next(5)) + 1,
				UnitPrice:       next(40_000),
				DisposalFee:     next(5_000),
				Volume:          next(150),
				Weight:          next(300),
				SpecialHandling: next(2) == 1,
			})
		}
		b := Compute(lines, DefaultTiers, DefaultSpecialHandlingFee)
		if b.Total != b.Subtotal+b.DisposalFees+b.SpecialHandlingFee {
			t.Fatalf("identity broken: %+v", b)
		}
		if b.Subtotal < ClassifyLoad(DefaultTiers, b.Volume).Floor {
			t.Fatalf("subtotal below tier floor: %+v", b)
		}
	}
}

func TestLoadPercentage(t *testing.T) {
	if got := LoadPercentage(DefaultTiers, 0); got != 0 {
		t.Fatalf("empty load percentage = %d", got)
	}
	if got := LoadPercentage(DefaultTiers, 200); got != 50 {
		t.Fatalf("half load percentage = %d, want 50", got)
	}
	if got := LoadPercentage(DefaultTiers, 900); got != 100 {
		t.Fatalf("overfull load percentage = %d, want 100", got)
	}
}
