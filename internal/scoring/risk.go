package scoring

import (
	"math"

	"github.com/opensource-finance/fraudscope/internal/domain"
)

// Upper bounds of the risk bands. Each band is closed on the right.
const (
	SafeUpper   = 0.5
	LowUpper    = 0.7
	MediumUpper = 0.9
)

// ClassifyRisk maps a probability to its tier:
//
//	[0, 0.5]   Safe
//	(0.5, 0.7] Low Risk
//	(0.7, 0.9] Medium Risk
//	(0.9, 1]   High Risk
func ClassifyRisk(p float64) (domain.RiskLevel, error) {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return "", &domain.RiskRangeError{Value: p}
	}
	switch {
	case p <= SafeUpper:
		return domain.RiskSafe, nil
	case p <= LowUpper:
		return domain.RiskLow, nil
	case p <= MediumUpper:
		return domain.RiskMedium, nil
	default:
		return domain.RiskHigh, nil
	}
}
