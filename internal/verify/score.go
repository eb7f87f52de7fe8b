package verify

import "github.com/gserafini/reentry-map/internal/model"

// checkWeights assigns each check's share of the overall confidence score.
var checkWeights = map[model.CheckName]float64{
	model.CheckURLReachable:      0.15,
	model.CheckPhoneValid:        0.15,
	model.CheckAddressGeocodable: 0.20,
	model.CheckContentMatches:    0.20,
	model.CheckCrossReferenced:   0.20,
	model.CheckConflictDetection: 0.10,
}

// scoreOrder fixes the accumulation order. Summing in map-iteration order
// would let floating-point non-associativity make the score depend on how
// the checks map happened to be built.
var scoreOrder = []model.CheckName{
	model.CheckURLReachable,
	model.CheckPhoneValid,
	model.CheckAddressGeocodable,
	model.CheckContentMatches,
	model.CheckCrossReferenced,
	model.CheckConflictDetection,
}

// Score combines check results into a 0-1 confidence value. Each present
// check contributes weight * (confidence if passing, 0 if failing), divided
// by the summed weight of checks that actually ran, so a check that never
// ran neither helps nor hurts. No checks at all scores 0.
func Score(checks model.VerificationChecks) float64 {
	var total, denom float64
	for _, name := range scoreOrder {
		result, ok := checks[name]
		if !ok {
			continue
		}
		weight := checkWeights[name]
		denom += weight
		if result.Pass {
			conf := result.Confidence
			if conf == 0 {
				conf = 1.0
			}
			total += weight * conf
		}
	}
	if denom == 0 {
		return 0
	}
	return total / denom
}
