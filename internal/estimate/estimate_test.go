package estimate

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestEstimate_ReferenceApartment(t *testing.T) {
	in := Input{PropertySizeM2: 70, Bedrooms: 2, Bathrooms: 1, DirtinessLevel: 1, MonthsSinceLastClean: 1, Pace: PaceStandard}

	standard := Estimate(in)
	if !standard.Hours.Equal(decimal.RequireFromString("3.5")) {
		t.Fatalf("expected 3.5h, got %s", standard.Hours)
	}

	in.Pace = PaceQuick
	quick := Estimate(in)
	if !quick.Hours.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("expected 2.5h, got %s", quick.Hours)
	}

	limit := standard.Hours.Mul(decimal.NewFromFloat(0.8)).Add(decimal.NewFromFloat(0.5))
	if quick.Hours.GreaterThan(limit) {
		t.Fatalf("quick %s exceeds standard*0.8 + tolerance %s", quick.Hours, limit)
	}
	if standard.InputClamped || quick.InputClamped {
		t.Fatalf("valid input must not be flagged as clamped")
	}
}

func TestEstimate_RangeAndMonotonicity(t *testing.T) {
	sizes := []float64{0, 40, 60, 85, 150, 400}
	for _, pace := range []Pace{PaceStandard, PaceQuick} {
		for _, size := range sizes {
			for bed := 0; bed <= 6; bed++ {
				for bath := 0; bath <= 4; bath++ {
					for dirt := 0; dirt <= 3; dirt++ {
						for months := 0; months <= 5; months++ {
							in := Input{
								PropertySizeM2:       size,
								Bedrooms:             bed,
								Bathrooms:            bath,
								DirtinessLevel:       dirt,
								MonthsSinceLastClean: months,
								Pace:                 pace,
							}
							got := Estimate(in).Hours
							if got.LessThan(decimal.NewFromInt(1)) || got.GreaterThan(decimal.NewFromInt(8)) {
								t.Fatalf("out of range %s for %+v", got, in)
							}
							if !got.Mul(decimal.NewFromInt(2)).IsInteger() {
								t.Fatalf("not a half-hour step %s for %+v", got, in)
							}

							next := []Input{in, in, in, in, in}
							next[0].Bedrooms++
							next[1].Bathrooms++
							next[2].DirtinessLevel = min(dirt+1, 3)
							next[3].MonthsSinceLastClean++
							next[4].PropertySizeM2 += 25
							for _, n := range next {
								if Estimate(n).Hours.LessThan(got) {
									t.Fatalf("not monotonic: %+v -> %s, %+v -> %s", in, got, n, Estimate(n).Hours)
								}
							}
						}
					}
				}
			}
		}
	}
}

func TestEstimate_ClampsInputs(t *testing.T) {
	res := Estimate(Input{PropertySizeM2: -10, Bedrooms: -1, DirtinessLevel: 9, Pace: "turbo"})
	if !res.InputClamped {
		t.Fatalf("expected InputClamped for out-of-range input")
	}
	if res.Hours.LessThan(decimal.NewFromInt(1)) {
		t.Fatalf("expected at least 1h, got %s", res.Hours)
	}
}

func TestEstimate_MonthsAboveFourUseLastBucket(t *testing.T) {
	four := Estimate(Input{Bedrooms: 3, Bathrooms: 2, MonthsSinceLastClean: 4})
	twelve := Estimate(Input{Bedrooms: 3, Bathrooms: 2, MonthsSinceLastClean: 12})
	if !four.Hours.Equal(twelve.Hours) {
		t.Fatalf("expected equal hours, got %s and %s", four.Hours, twelve.Hours)
	}
	if twelve.InputClamped {
		t.Fatalf("4+ bucket must not be reported as clamped")
	}
}

func TestEstimate_OutputClamped(t *testing.T) {
	res := Estimate(Input{PropertySizeM2: 900, Bedrooms: 10, Bathrooms: 10, DirtinessLevel: 3, MonthsSinceLastClean: 4})
	if !res.OutputClamped || !res.Hours.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("expected clamp to 8h, got %s (clamped=%v)", res.Hours, res.OutputClamped)
	}

	res = Estimate(Input{Pace: PaceQuick})
	if !res.Hours.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected 1h for the smallest job, got %s", res.Hours)
	}
}
