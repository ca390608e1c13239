package domain

// PairLabel classifies an ArbitragePair by whether the high-price leg can be
// shorted directly or requires a physical token transfer (spec §4.2).
type PairLabel string

const (
	PairAuto   PairLabel = "auto"
	PairManual PairLabel = "manual"
)

// ArbitragePair is one 2-combination of a Ticker's venues deemed to make
// economic sense to compare.
type ArbitragePair struct {
	PairID string // low_venue_id + ":" + high_venue_id, lexicographic
	Low    Venue
	High   Venue
	Label  PairLabel
}

// Ticker is the canonical record of a tracked symbol and its venue universe.
type Ticker struct {
	Symbol           string // canonical base symbol
	Venues           []Venue
	ChainAddresses   map[string]string // chain -> token_address, for DEX routing
	Valid            bool
	ValidationErrors []string
	Pairs            []ArbitragePair // precomputed 2-combinations
}

// NewTicker builds an empty, not-yet-validated Ticker for symbol.
func NewTicker(symbol string) *Ticker {
	return &Ticker{
		Symbol:         BaseSymbol(symbol),
		ChainAddresses: make(map[string]string),
	}
}

// AddVenue appends a venue to the ticker's universe (idempotent on venue ID).
func (t *Ticker) AddVenue(v Venue) {
	for _, existing := range t.Venues {
		if existing.ID() == v.ID() {
			return
		}
	}
	t.Venues = append(t.Venues, v)
}

// BuildPairs (re)computes every unordered 2-combination of the ticker's
// venues and labels each "auto" when the higher-priced leg is directly
// shortable, "manual" otherwise (spec §4.2). Venue ordering within a pair is
// canonicalised lexicographically on venue_id so PairID is deterministic
// regardless of iteration order (spec §4.4 tie-break rule, reused here for
// registry determinism).
func (t *Ticker) BuildPairs() {
	t.Pairs = t.Pairs[:0]
	for i := 0; i < len(t.Venues); i++ {
		for j := i + 1; j < len(t.Venues); j++ {
			a, b := t.Venues[i], t.Venues[j]
			low, high := a, b
			if high.ID() < low.ID() {
				low, high = high, low
			}
			label := PairManual
			if high.IsShortable() {
				label = PairAuto
			}
			t.Pairs = append(t.Pairs, ArbitragePair{
				PairID: low.ID() + ":" + high.ID(),
				Low:    low,
				High:   high,
				Label:  label,
			})
		}
	}
}

// Validate runs basic structural checks and records ValidationErrors,
// clearing and setting the Valid flag. It does not mutate Venues/Pairs.
func (t *Ticker) Validate() {
	t.ValidationErrors = t.ValidationErrors[:0]

	if t.Symbol == "" {
		t.ValidationErrors = append(t.ValidationErrors, "empty symbol")
	}
	if len(t.Venues) < 2 {
		t.ValidationErrors = append(t.ValidationErrors, "fewer than two venues")
	}
	seen := make(map[string]bool, len(t.Venues))
	for _, v := range t.Venues {
		id := v.ID()
		if seen[id] {
			t.ValidationErrors = append(t.ValidationErrors, "duplicate venue "+id)
		}
		seen[id] = true
	}

	t.Valid = len(t.ValidationErrors) == 0
}
