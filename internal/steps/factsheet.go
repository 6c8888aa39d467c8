package steps

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shaiso/DealFlow/internal/domain"
)

// FactSheet форматирует атрибуты сделки для промптов всех стадий.
func FactSheet(d *domain.Deal) string {
	var b strings.Builder

	employees := d.EmployeeCount
	if employees <= 0 {
		employees = 1
	}
	leverage := "N/A"
	if ratio, ok := d.NetDebtToEBITDA(); ok {
		leverage = fmt.Sprintf("%.2fx", ratio)
	}

	b.WriteString("DEAL FACT SHEET\n")
	if age := d.Age(d.CreatedAt); age > 0 {
		fmt.Fprintf(&b, "  Sector:                 %s (%d yrs old)\n", d.Sector, age)
	} else {
		fmt.Fprintf(&b, "  Sector:                 %s\n", d.Sector)
	}
	fmt.Fprintf(&b, "  Revenue:                $%.2fM\n", d.Revenue/1e6)
	fmt.Fprintf(&b, "  Revenue Growth (1Y):    %+.1f%%\n", d.RevenueGrowth*100)
	fmt.Fprintf(&b, "  Revenue CAGR (3Y):      %+.1f%%\n", d.RevenueCAGR3Y*100)
	fmt.Fprintf(&b, "  Gross Margin:           %.1f%%\n", d.GrossMargin*100)
	fmt.Fprintf(&b, "  EBITDA:                 $%.2fM (%.1f%% margin)\n", d.EffectiveEBITDA()/1e6, d.EBITDAMargin*100)
	fmt.Fprintf(&b, "  Net Debt:               $%.2fM (%s EBITDA)\n", d.NetDebt/1e6, leverage)
	fmt.Fprintf(&b, "  Debt/Equity:            %.2f\n", d.DebtEquity)
	fmt.Fprintf(&b, "  Free Cash Flow:         $%+.0fk\n", d.FreeCashFlow/1e3)
	fmt.Fprintf(&b, "  Employees:              %d ($%.0fk revenue/employee)\n", employees, d.Revenue/float64(employees)/1e3)
	fmt.Fprintf(&b, "  Customer Concentration: %.1f%%\n", d.CustomerConcentration*100)
	fmt.Fprintf(&b, "  Market Growth:          %.1f%% CAGR\n", d.MarketGrowth*100)

	return b.String()
}

// priorCycle описывает предыдущий цикл для стадий следующего цикла.
// Пустая строка на первом цикле.
func priorCycle(state domain.CycleState) string {
	prev := state.Previous()
	if prev == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "PRIOR CYCLE %d (disagreement gap %.3f triggered this review)\n", prev.Cycle, prev.Gap)

	if o := prev.Scout; o != nil && o.Scout != nil {
		fmt.Fprintf(&b, "  Scout score %.3f.", o.Score)
		if o.Scout.Analysis != "" {
			fmt.Fprintf(&b, " %s", o.Scout.Analysis)
		}
		b.WriteString("\n")
	}
	if o := prev.Contrarian; o != nil && o.Contrarian != nil {
		fmt.Fprintf(&b, "  Contrarian bearish %.3f. %s\n", o.Contrarian.BearishConfidence, o.Contrarian.RiskSummary)
		if len(o.Contrarian.RedFlags) > 0 {
			fmt.Fprintf(&b, "  Red flags: %s\n", strings.Join(o.Contrarian.RedFlags, " | "))
		}
	}
	if o := prev.Judge; o != nil && o.Judge != nil {
		fmt.Fprintf(&b, "  Judge %s (confidence %.2f). %s\n", o.Judge.Decision, o.Judge.Confidence, o.Judge.Reasoning)
	}
	b.WriteString("Address the disagreement above directly and provide deeper supporting data.\n")

	return b.String()
}

// maxFeedbackLen — сколько байт ошибки валидации попадает в промпт.
const maxFeedbackLen = 200

// retryNote формирует дополнение промпта после неудачной попытки.
func retryNote(feedback string) string {
	if feedback == "" {
		return ""
	}
	if len(feedback) > maxFeedbackLen {
		cut := maxFeedbackLen
		for cut > 0 && !utf8.RuneStart(feedback[cut]) {
			cut--
		}
		feedback = feedback[:cut]
	}
	return "\n\nPREVIOUS ATTEMPT FAILED: " + feedback + "\nReturn STRICT JSON only. No prose, no markdown."
}
