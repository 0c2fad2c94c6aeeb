package engine

// Strategy tags an agent can carry. Unknown tags fall back to StrategyBerzerker.
const (
	StrategyBerzerker = "berzerker"
	StrategyMerchant  = "merchant"
	StrategyDisciple  = "disciple"
)

// KnownStrategies lists every tag the matchup table covers.
var KnownStrategies = []string{StrategyBerzerker, StrategyMerchant, StrategyDisciple}

// matchupEdge is the strategy-matchup table: the additive win-probability edge
// the row strategy has over the column strategy, per round. Soft
// rock-paper-scissors between the tags themselves: berzerker pressures
// disciple, merchant reads berzerker, disciple grinds down merchant.
// Mirror matchups carry no edge.
var matchupEdge = map[string]map[string]float64{
	StrategyBerzerker: {StrategyDisciple: 0.08, StrategyMerchant: -0.05},
	StrategyMerchant:  {StrategyBerzerker: 0.05, StrategyDisciple: -0.05},
	StrategyDisciple:  {StrategyMerchant: 0.05, StrategyBerzerker: -0.08},
}

// NormalizeStrategy maps a tag to its canonical form. Unknown tags report
// false and map to StrategyBerzerker.
func NormalizeStrategy(tag string) (string, bool) {
	switch tag {
	case StrategyBerzerker, StrategyMerchant, StrategyDisciple:
		return tag, true
	case "":
		return StrategyBerzerker, true
	default:
		return StrategyBerzerker, false
	}
}

func normalizeStrategy(tag string) string {
	switch tag {
	case StrategyBerzerker, StrategyMerchant, StrategyDisciple:
		return tag
	default:
		return StrategyBerzerker
	}
}

// MatchupEdge returns the per-round edge tag a has over tag b.
func MatchupEdge(a, b string) float64 {
	return matchupEdge[normalizeStrategy(a)][normalizeStrategy(b)]
}
