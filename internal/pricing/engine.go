package pricing

// Money represents a monetary value stored in minor units.
type Money = int64

// LoadSize identifies one of the four truck-load tiers.
type LoadSize string

const (
	LoadQuarter      LoadSize = "quarter"
	LoadHalf         LoadSize = "half"
	LoadThreeQuarter LoadSize = "three_quarter"
	LoadFull         LoadSize = "full"
)

// Tier couples a truck capacity cutoff with the minimum charge for that load.
// Capacity is an inclusive upper bound in cubic feet; zero marks the unbounded
// top tier.
type Tier struct {
	Size     LoadSize
	Capacity int64
	Floor    Money
}

// DefaultTiers holds the capacity bands and price floors. They are data, not
// code, so an operator can retune rates without touching the calculator.
var DefaultTiers = []Tier{
	{Size: LoadQuarter, Capacity: 100, Floor: 15_000},
	{Size: LoadHalf, Capacity: 200, Floor: 25_000},
	{Size: LoadThreeQuarter, Capacity: 300, Floor: 35_000},
	{Size: LoadFull, Capacity: 0, Floor: 45_000},
}

// DefaultSpecialHandlingFee is the per-unit surcharge for flagged items.
const DefaultSpecialHandlingFee Money = 2_500

// Line describes a cart line used for price calculation.
type Line struct {
	Qty             int
	UnitPrice       Money
	DisposalFee     Money
	Volume          int64
	Weight          int64
	SpecialHandling bool
}

// Breakdown aggregates computed pricing components. Subtotal is post-floor.
type Breakdown struct {
	Subtotal           Money    `json:"subtotal"`
	DisposalFees       Money    `json:"disposalFees"`
	SpecialHandlingFee Money    `json:"specialHandlingFee"`
	Volume             int64    `json:"estimatedVolume"`
	Weight             int64    `json:"estimatedWeight"`
	LoadSize           LoadSize `json:"loadSize"`
	Total              Money    `json:"total"`
}

// ClassifyLoad maps a total volume onto a load tier. A boundary volume falls in
// the lower band; the final tier absorbs everything above the highest cutoff.
func ClassifyLoad(tiers []Tier, volume int64) Tier {
	if len(tiers) == 0 {
		tiers = DefaultTiers
	}
	for _, t := range tiers {
		if t.Capacity > 0 && volume <= t.Capacity {
			return t
		}
	}
	return tiers[len(tiers)-1]
}

// Compute calculates the quote breakdown for the given lines. The tier floor is
// applied to the item subtotal before disposal and handling fees are added, so
// a sparse cart still pays the minimum for the truck it fills. Lines with a
// non-positive quantity are skipped.
func Compute(lines []Line, tiers []Tier, specialFee Money) Breakdown {
	if specialFee < 0 {
		specialFee = 0
	}
	var (
		subtotal Money
		disposal Money
		handling Money
		volume   int64
		weight   int64
	)
	for _, ln := range lines {
		if ln.Qty <= 0 {
			continue
		}
		qty := int64(ln.Qty)
		subtotal += ln.UnitPrice * qty
		disposal += ln.DisposalFee * qty
		volume += ln.Volume * qty
		weight += ln.Weight * qty
		if ln.SpecialHandling {
			handling += specialFee * qty
		}
	}

	tier := ClassifyLoad(tiers, volume)
	effective := subtotal
	if effective < tier.Floor {
		effective = tier.Floor
	}

	return Breakdown{
		Subtotal:           effective,
		DisposalFees:       disposal,
		SpecialHandlingFee: handling,
		Volume:             volume,
		Weight:             weight,
		LoadSize:           tier.Size,
		Total:              effective + disposal + handling,
	}
}

// LoadPercentage reports how full the truck is relative to its nominal full
// capacity, rounded and capped at 100.
func LoadPercentage(tiers []Tier, volume int64) int {
	full := fullCapacity(tiers)
	if full <= 0 || volume <= 0 {
		return 0
	}
	pct := (volume*100 + full/2) / full
	if pct > 100 {
		pct = 100
	}
	return int(pct)
}

// fullCapacity extends the last bounded cutoff by one band width, since the top
// tier itself is unbounded.
func fullCapacity(tiers []Tier) int64 {
	if len(tiers) == 0 {
		tiers = DefaultTiers
	}
	cutoffs := make([]int64, 0, len(tiers))
	for _, t := range tiers {
		if t.Capacity > 0 {
			cutoffs = append(cutoffs, t.Capacity)
		}
	}
	switch len(cutoffs) {
	case 0:
		return 0
	case 1:
		return cutoffs[0] * 2
	default:
		last := cutoffs[len(cutoffs)-1]
		return last + (last - cutoffs[len(cutoffs)-2])
	}
}
