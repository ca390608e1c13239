package utils

import "math"

// math.go - математические утилиты
//
// Назначение:
// Вспомогательные математические функции для торговли и анализа
// ордербука: округление по лоту, расчет спреда и PNL, симуляция
// исполнения рыночного ордера по уровням стакана.

const roundEpsilon = 1e-9

// RoundToLotSize округляет value вниз до кратного lotSize.
// lotSize <= 0 отключает округление (значение возвращается как есть).
func RoundToLotSize(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Floor(value/lotSize+roundEpsilon) * lotSize
}

// RoundToLotSizeUp округляет value вверх до кратного lotSize.
func RoundToLotSizeUp(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Ceil(value/lotSize-roundEpsilon) * lotSize
}

// RoundToLotSizeNearest округляет value до ближайшего кратного lotSize,
// 0.5 округляется от нуля (как math.Round).
func RoundToLotSizeNearest(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	ratio := value / lotSize
	if ratio >= 0 {
		ratio += roundEpsilon
	} else {
		ratio -= roundEpsilon
	}
	return math.Round(ratio) * lotSize
}

// CalculateSpread возвращает спред в процентах между высокой и низкой ценой.
// Formula: (priceHigh - priceLow) / priceLow * 100
func CalculateSpread(priceHigh, priceLow float64) float64 {
	if priceLow <= 0 {
		return 0
	}
	return (priceHigh - priceLow) / priceLow * 100
}

// CalculateSpreadFromPrices то же самое, но без предположения о том,
// какая из двух цен выше.
func CalculateSpreadFromPrices(priceA, priceB float64) float64 {
	if priceA <= 0 || priceB <= 0 {
		return 0
	}
	high, low := priceA, priceB
	if low > high {
		high, low = low, high
	}
	return CalculateSpread(high, low)
}

// CalculateNetSpread вычитает комиссии обеих сторон (уплачиваются на входе
// и на выходе, поэтому умножаются на 2) из валового спреда в процентах.
// feeA/feeB задаются долями (0.0004 = 0.04%), spreadPct - процентами.
func CalculateNetSpread(spreadPct, feeA, feeB float64) float64 {
	totalFeePct := (feeA + feeB) * 100 * 2
	return spreadPct - totalFeePct
}

// CalculateNetSpreadDirect считает чистый спред напрямую из цен.
func CalculateNetSpreadDirect(priceHigh, priceLow, feeA, feeB float64) float64 {
	return CalculateNetSpread(CalculateSpread(priceHigh, priceLow), feeA, feeB)
}

// CalculateWeightedAverage возвращает средневзвешенное значение values по
// weights (VWAP). Веса <= 0 игнорируются. Несовпадающая длина срезов или
// нулевая сумма положительных весов дают 0.
func CalculateWeightedAverage(values, weights []float64) float64 {
	if len(values) == 0 || len(weights) == 0 || len(values) != len(weights) {
		return 0
	}
	var sum, denom float64
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		sum += values[i] * w
		denom += w
	}
	if denom == 0 {
		return 0
	}
	return sum / denom
}

// OrderBookLevel is one price/volume level of an order book side.
type OrderBookLevel struct {
	Price  float64
	Volume float64
}

// simulateMarketOrder walks levels in the order given, filling up to
// targetVolume, and returns the volume-weighted average fill price, the
// filled volume (capped at available liquidity), and the slippage against
// the first level's price in percent. levels must already be sorted in
// walk order (asks ascending, bids descending).
func simulateMarketOrder(levels []OrderBookLevel, targetVolume float64) (avgPrice, filled, slippagePct float64) {
	if len(levels) == 0 || targetVolume <= 0 {
		return 0, 0, 0
	}
	bestPrice := levels[0].Price
	remaining := targetVolume
	var cost float64
	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		take := lvl.Volume
		if take > remaining {
			take = remaining
		}
		cost += take * lvl.Price
		filled += take
		remaining -= take
	}
	if filled == 0 {
		return 0, 0, 0
	}
	avgPrice = cost / filled
	slippagePct = (avgPrice - bestPrice) / bestPrice * 100
	return avgPrice, filled, slippagePct
}

// SimulateMarketBuy walks ask levels (ascending by price) to fill
// targetVolume and returns the VWAP fill price, filled volume, and
// slippage against the best ask in percent.
func SimulateMarketBuy(asks []OrderBookLevel, targetVolume float64) (avgPrice, filled, slippagePct float64) {
	return simulateMarketOrder(asks, targetVolume)
}

// SimulateMarketSell walks bid levels (descending by price) to fill
// targetVolume and returns the VWAP fill price, filled volume, and
// slippage against the best bid in percent (negative when the book is
// thin enough that the fill price falls below the best bid).
func SimulateMarketSell(bids []OrderBookLevel, targetVolume float64) (avgPrice, filled, slippagePct float64) {
	return simulateMarketOrder(bids, targetVolume)
}

// maxUSDWithinSlippage walks levels (already sorted in walk order) and
// returns the cumulative USD notional tradable before the volume-weighted
// average price deviates from the best price by more than maxSlipPct,
// interpolating within the level that would breach the bound. buySide
// selects the deviation direction: true means average must stay at or
// below best*(1+slip), false means at or above best*(1-slip).
func maxUSDWithinSlippage(levels []OrderBookLevel, maxSlipPct float64, buySide bool) float64 {
	if len(levels) == 0 || maxSlipPct <= 0 {
		return 0
	}
	best := levels[0].Price
	var limit float64
	if buySide {
		limit = best * (1 + maxSlipPct/100)
	} else {
		limit = best * (1 - maxSlipPct/100)
	}

	var cost, filled float64
	for _, lvl := range levels {
		newCost := cost + lvl.Volume*lvl.Price
		newFilled := filled + lvl.Volume
		avg := newCost / newFilled
		if (buySide && avg <= limit) || (!buySide && avg >= limit) {
			cost, filled = newCost, newFilled
			continue
		}

		var x float64
		if buySide {
			if denom := lvl.Price - limit; denom > 0 {
				x = (limit*filled - cost) / denom
			}
		} else {
			if denom := limit - lvl.Price; denom > 0 {
				x = (cost - limit*filled) / denom
			}
		}
		if x > 0 {
			cost += x * lvl.Price
		}
		break
	}
	return cost
}

// MaxBuyUSDWithinSlippage returns the USD notional purchasable by walking
// ask levels before slippage against the best ask exceeds maxSlipPct
// (spec §4.5 step 3, `max_size_within_slippage`).
func MaxBuyUSDWithinSlippage(asks []OrderBookLevel, maxSlipPct float64) float64 {
	return maxUSDWithinSlippage(asks, maxSlipPct, true)
}

// MaxSellUSDWithinSlippage returns the USD notional sellable by walking bid
// levels before slippage against the best bid exceeds maxSlipPct.
func MaxSellUSDWithinSlippage(bids []OrderBookLevel, maxSlipPct float64) float64 {
	return maxUSDWithinSlippage(bids, maxSlipPct, false)
}

// RoundToPleasantNumber rounds usd down to a "nice" figure for display:
// a multiple of 10 under 100, of 50 under 1000, of 100 under 10000, and
// of 500 above that (spec §4.5 step 6, `suggested_position_usd`).
func RoundToPleasantNumber(usd float64) float64 {
	switch {
	case usd <= 0:
		return 0
	case usd < 100:
		return RoundToLotSize(usd, 10)
	case usd < 1000:
		return RoundToLotSize(usd, 50)
	case usd < 10000:
		return RoundToLotSize(usd, 100)
	default:
		return RoundToLotSize(usd, 500)
	}
}

// CalculatePNL returns the unrealized PNL of a position. side must be
// "long" or "short"; any other value returns 0.
func CalculatePNL(side string, entryPrice, currentPrice, quantity float64) float64 {
	switch side {
	case "long":
		return (currentPrice - entryPrice) * quantity
	case "short":
		return (entryPrice - currentPrice) * quantity
	default:
		return 0
	}
}

// CalculateTotalPNL sums the PNL of a long leg and a short leg of the same
// arbitrage position, as tracked from entry prices to current (or exit)
// prices.
func CalculateTotalPNL(longEntry, longCurrent, shortEntry, shortCurrent, quantity float64) float64 {
	return CalculatePNL("long", longEntry, longCurrent, quantity) +
		CalculatePNL("short", shortEntry, shortCurrent, quantity)
}

// SplitVolume splits totalVolume into nParts equal, lot-rounded chunks.
// Returns nil if nParts or totalVolume is non-positive.
func SplitVolume(totalVolume float64, nParts int, lotSize float64) []float64 {
	if nParts <= 0 || totalVolume <= 0 {
		return nil
	}
	part := RoundToLotSize(totalVolume/float64(nParts), lotSize)
	parts := make([]float64, nParts)
	for i := range parts {
		parts[i] = part
	}
	return parts
}

// IsSpreadSufficient reports whether spread meets or exceeds threshold.
func IsSpreadSufficient(spreadPct, thresholdPct float64) bool {
	return spreadPct >= thresholdPct
}

// ShouldExit reports whether spread has converged enough to close a
// tracked position.
func ShouldExit(spreadPct, exitThresholdPct float64) bool {
	return spreadPct <= exitThresholdPct
}

// IsStopLossHit reports whether pnl has breached -stopLoss. stopLoss <= 0
// means the stop loss is disabled.
func IsStopLossHit(pnl, stopLoss float64) bool {
	if stopLoss <= 0 {
		return false
	}
	return pnl <= -stopLoss
}

// Clamp restricts value to [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
