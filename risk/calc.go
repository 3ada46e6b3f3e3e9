package risk

// SizeByRisk sizes a single long entry so that a stop-out loses at most
// equity × riskPerTrade, then clamps the result by the per-position and
// aggregate exposure caps.
//
// A stop at or above entry is not a risk-bounded trade and sizes to 0.
func SizeByRisk(entry, stop, riskPerTrade, maxPositionPct, maxTotalExposure, equity float64) int64 {
	if entry <= 0 || equity <= 0 {
		return 0
	}
	perShareRisk := entry - stop
	if perShareRisk <= 0 {
		return 0
	}

	qty := FloorQty(equity * riskPerTrade / perShareRisk)
	if qty < 1 {
		return 0
	}

	byPosition := FloorQty(equity * maxPositionPct / entry)
	byExposure := FloorQty(equity * maxTotalExposure / entry)

	qty = min(qty, byPosition, byExposure)
	return max(qty, 0)
}

// RiskAmount is the dollar loss if the stop is hit for qty shares.
func RiskAmount(qty int64, entry, stop float64) float64 {
	move := entry - stop
	if move < 0 {
		move = -move
	}
	return float64(qty) * move
}

// RR is reward over risk for a long entry.
func RR(entry, stop, takeProfit float64) float64 {
	risk := entry - stop
	if risk <= 0 {
		return 0
	}
	return (takeProfit - entry) / risk
}
