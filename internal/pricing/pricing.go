package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Leganyst/cleaning-platform/internal/model"
)

// Почасовые ставки по видам уборки.
var DefaultRates = map[model.ServiceType]decimal.Decimal{
	model.ServiceTypeRegular:      decimal.NewFromInt(25),
	model.ServiceTypeDeep:         decimal.NewFromInt(35),
	model.ServiceTypeMoveInOut:    decimal.NewFromInt(38),
	model.ServiceTypeBusiness:     decimal.NewFromInt(30),
	model.ServiceTypeConstruction: decimal.NewFromInt(42),
}

type Quote struct {
	HourlyRate decimal.Decimal
	Hours      decimal.Decimal
	Total      decimal.Decimal
}

type Calculator struct {
	rates map[model.ServiceType]decimal.Decimal
}

func NewCalculator(rates map[model.ServiceType]decimal.Decimal) *Calculator {
	if rates == nil {
		rates = DefaultRates
	}
	return &Calculator{rates: rates}
}

// Quote считает стоимость, округлённую до центов.
func (c *Calculator) Quote(st model.ServiceType, hours decimal.Decimal) (Quote, error) {
	rate, ok := c.rates[st]
	if !ok {
		return Quote{}, fmt.Errorf("no rate for service type %q", st)
	}
	if hours.IsNegative() {
		return Quote{}, fmt.Errorf("negative hours %s", hours)
	}
	return Quote{
		HourlyRate: rate,
		Hours:      hours,
		Total:      rate.Mul(hours).Round(2),
	}, nil
}
