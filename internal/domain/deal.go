package domain

import (
	"time"

	"github.com/google/uuid"
)

// Deal — сделка, проходящая оценку.
//
// Числовые атрибуты заполняются продюсером и дальше не меняются.
// Status, ReviewCycles и FailureReason меняет только воркер,
// который держит claim на сделку.
type Deal struct {
	// ID — уникальный идентификатор сделки.
	ID uuid.UUID `json:"id"`

	// Sector — отрасль компании (Technology, Healthcare, ...).
	Sector string `json:"sector"`

	// Revenue — годовая выручка, USD.
	Revenue float64 `json:"revenue"`

	// RevenueGrowth — рост выручки за последний год (0.25 = 25%).
	RevenueGrowth float64 `json:"revenue_growth"`

	// RevenueCAGR3Y — среднегодовой рост выручки за 3 года.
	RevenueCAGR3Y float64 `json:"revenue_cagr_3y"`

	GrossMargin  float64 `json:"gross_margin"`
	EBITDA       float64 `json:"ebitda"`
	EBITDAMargin float64 `json:"ebitda_margin"`
	NetDebt      float64 `json:"net_debt"`
	DebtEquity   float64 `json:"debt_equity"`
	FreeCashFlow float64 `json:"free_cash_flow"`

	EmployeeCount int `json:"employee_count"`
	FoundingYear  int `json:"founding_year"`

	// CustomerConcentration — доля выручки от крупнейших клиентов.
	CustomerConcentration float64 `json:"customer_concentration"`

	// MarketGrowth — рост рынка, на котором работает компания.
	MarketGrowth float64 `json:"market_growth"`

	// Status — текущий статус обработки.
	Status DealStatus `json:"status"`

	// ReviewCycles — сколько циклов оценки понадобилось (0 до финализации).
	ReviewCycles int `json:"review_cycles"`

	// FailureReason — причина перевода в FAILED.
	FailureReason string `json:"failure_reason,omitempty"`

	// ClaimedAt — время захвата воркером. Nil, пока сделка в NEW.
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDeal создаёт сделку в статусе NEW с новым ID.
func NewDeal(now time.Time) *Deal {
	return &Deal{
		ID:        uuid.New(),
		Status:    DealStatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// EffectiveEBITDA возвращает EBITDA, а если она не задана,
// оценивает её через выручку и маржу.
func (d *Deal) EffectiveEBITDA() float64 {
	if d.EBITDA != 0 {
		return d.EBITDA
	}
	return d.Revenue * d.EBITDAMargin
}

// NetDebtToEBITDA возвращает мультипликатор долговой нагрузки.
// Второе значение false, если EBITDA неположительная и мультипликатор не определён.
func (d *Deal) NetDebtToEBITDA() (float64, bool) {
	ebitda := d.EffectiveEBITDA()
	if ebitda <= 0 {
		return 0, false
	}
	return d.NetDebt / ebitda, true
}

// Age возвращает возраст компании в годах относительно now.
func (d *Deal) Age(now time.Time) int {
	if d.FoundingYear == 0 {
		return 0
	}
	return now.Year() - d.FoundingYear
}

// MarkProcessing переводит сделку в PROCESSING.
func (d *Deal) MarkProcessing(now time.Time) {
	d.Status = DealStatusProcessing
	d.ClaimedAt = &now
	d.UpdatedAt = now
}

// MarkFinalized переводит сделку в FINALIZED.
func (d *Deal) MarkFinalized(cycles int, now time.Time) {
	d.Status = DealStatusFinalized
	d.ReviewCycles = cycles
	d.UpdatedAt = now
}

// MarkFailed переводит сделку в FAILED.
func (d *Deal) MarkFailed(reason string, now time.Time) {
	d.Status = DealStatusFailed
	d.FailureReason = reason
	d.UpdatedAt = now
}
