// Package estimate рассчитывает рекомендуемую длительность уборки.
package estimate

import (
	"math"

	"github.com/shopspring/decimal"
)

type Pace string

const (
	PaceStandard Pace = "standard"
	PaceQuick    Pace = "quick"
)

const (
	MinHours = 1.0
	MaxHours = 8.0

	baseHours      = 1.0
	perBedroom     = 0.5
	perBathroom    = 0.5
	sizeThreshold  = 60.0
	perExtraM2     = 0.025
	quickReduction = 0.8

	maxRooms  = 10
	maxSizeM2 = 1000.0
)

// Надбавки по степени загрязнения (0..3) и по давности уборки (0..4+).
var (
	dirtinessUplift = [...]float64{1.00, 1.15, 1.30, 1.50}
	monthsUplift    = [...]float64{1.00, 1.05, 1.10, 1.20, 1.30}
)

type Input struct {
	PropertySizeM2       float64
	Bedrooms             int
	Bathrooms            int
	DirtinessLevel       int
	MonthsSinceLastClean int
	Pace                 Pace
}

type Result struct {
	Hours decimal.Decimal
	// Значение до округления и ограничения.
	Raw float64
	// Хотя бы один вход был приведён к допустимому диапазону.
	InputClamped bool
	// Результат упёрся в [MinHours, MaxHours].
	OutputClamped bool
}

// Estimate детерминирован и не возвращает ошибок: входы вне диапазона
// приводятся к границам, что отражается в InputClamped.
// Давность больше 4 месяцев попадает в последнюю корзину без флага.
func Estimate(in Input) Result {
	var res Result

	bedrooms := clampInt(in.Bedrooms, 0, maxRooms, &res.InputClamped)
	bathrooms := clampInt(in.Bathrooms, 0, maxRooms, &res.InputClamped)
	size := clampFloat(in.PropertySizeM2, 0, maxSizeM2, &res.InputClamped)
	dirt := clampInt(in.DirtinessLevel, 0, len(dirtinessUplift)-1, &res.InputClamped)

	months := in.MonthsSinceLastClean
	if months < 0 {
		months = 0
		res.InputClamped = true
	}
	if months > len(monthsUplift)-1 {
		months = len(monthsUplift) - 1
	}

	pace := in.Pace
	switch pace {
	case PaceStandard, PaceQuick:
	case "":
		pace = PaceStandard
	default:
		pace = PaceStandard
		res.InputClamped = true
	}

	hours := baseHours + perBedroom*float64(bedrooms) + perBathroom*float64(bathrooms)
	if size > sizeThreshold {
		hours += (size - sizeThreshold) * perExtraM2
	}
	hours *= dirtinessUplift[dirt]
	hours *= monthsUplift[months]
	if pace == PaceQuick {
		hours *= quickReduction
	}
	res.Raw = hours

	rounded := math.Round(hours*2) / 2
	if rounded < MinHours {
		rounded = MinHours
		res.OutputClamped = true
	}
	if rounded > MaxHours {
		rounded = MaxHours
		res.OutputClamped = true
	}
	res.Hours = decimal.NewFromFloat(rounded)
	return res
}

func clampInt(v, lo, hi int, clamped *bool) int {
	switch {
	case v < lo:
		*clamped = true
		return lo
	case v > hi:
		*clamped = true
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64, clamped *bool) float64 {
	if math.IsNaN(v) {
		*clamped = true
		return lo
	}
	switch {
	case v < lo:
		*clamped = true
		return lo
	case v > hi:
		*clamped = true
		return hi
	}
	return v
}
