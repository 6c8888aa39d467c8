package scheduler

import (
	"math/rand/v2"
	"time"

	"github.com/shaiso/DealFlow/internal/domain"
)

// sectorProfile — отраслевые диапазоны для правдоподобных сделок.
type sectorProfile struct {
	grossMargin [2]float64
	revPerEmp   [2]float64
}

// Sectors — отрасли, из которых выбираются сделки.
var Sectors = []string{
	"Technology", "Healthcare", "Energy",
	"FinTech", "RealEstate", "Manufacturing",
	"Consumer", "Biotech",
}

var sectorProfiles = map[string]sectorProfile{
	"Technology":    {grossMargin: [2]float64{0.55, 0.85}, revPerEmp: [2]float64{200_000, 600_000}},
	"Healthcare":    {grossMargin: [2]float64{0.40, 0.70}, revPerEmp: [2]float64{150_000, 350_000}},
	"Energy":        {grossMargin: [2]float64{0.20, 0.50}, revPerEmp: [2]float64{300_000, 800_000}},
	"FinTech":       {grossMargin: [2]float64{0.50, 0.80}, revPerEmp: [2]float64{250_000, 500_000}},
	"RealEstate":    {grossMargin: [2]float64{0.30, 0.60}, revPerEmp: [2]float64{400_000, 1_200_000}},
	"Manufacturing": {grossMargin: [2]float64{0.15, 0.40}, revPerEmp: [2]float64{100_000, 250_000}},
	"Consumer":      {grossMargin: [2]float64{0.25, 0.55}, revPerEmp: [2]float64{100_000, 200_000}},
	"Biotech":       {grossMargin: [2]float64{0.60, 0.90}, revPerEmp: [2]float64{200_000, 500_000}},
}

// NewRand создаёт генератор. seed = 0 — случайное зерно.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed))
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// Generate создаёт синтетическую сделку в статусе NEW.
//
// EBITDA-маржа всегда ниже валовой, численность считается из выручки
// и отраслевой выручки на сотрудника.
func Generate(rng *rand.Rand, now time.Time) *domain.Deal {
	sector := Sectors[rng.IntN(len(Sectors))]
	profile := sectorProfiles[sector]

	revenue := uniform(rng, 1_000_000, 80_000_000)
	growth := uniform(rng, -0.15, 0.50)
	cagr := min(0.60, max(-0.20, growth*uniform(rng, 0.6, 1.2)))

	grossMargin := uniform(rng, profile.grossMargin[0], profile.grossMargin[1])
	ebitdaMargin := grossMargin * uniform(rng, 0.25, 0.65)

	revPerEmp := uniform(rng, profile.revPerEmp[0], profile.revPerEmp[1])

	d := domain.NewDeal(now)
	d.Sector = sector
	d.Revenue = revenue
	d.RevenueGrowth = growth
	d.RevenueCAGR3Y = cagr
	d.GrossMargin = grossMargin
	d.EBITDA = revenue * ebitdaMargin
	d.EBITDAMargin = ebitdaMargin
	d.NetDebt = revenue * uniform(rng, 0, 2.5)
	d.DebtEquity = uniform(rng, 0.1, 5.0)
	d.FreeCashFlow = uniform(rng, -2_000_000, 5_000_000)
	d.EmployeeCount = max(5, int(revenue/revPerEmp))
	d.FoundingYear = 1985 + rng.IntN(now.Year()-1985-1)
	d.CustomerConcentration = uniform(rng, 0.05, 0.70)
	d.MarketGrowth = uniform(rng, 0.02, 0.30)
	return d
}
