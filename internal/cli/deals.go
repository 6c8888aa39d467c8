package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/DealFlow/internal/domain"
	"github.com/shaiso/DealFlow/internal/repo"
)

// StoreFunc лениво открывает хранилище после парсинга флагов.
type StoreFunc func(ctx context.Context) (repo.Repository, error)

// NewDealsCmd создаёт группу команд для просмотра сделок.
func NewDealsCmd(storeFn StoreFunc, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deals",
		Short: "Inspect deals",
	}

	cmd.AddCommand(
		newDealsListCmd(storeFn, outputFn),
		newDealsShowCmd(storeFn, outputFn),
		newDealsStatsCmd(storeFn, outputFn),
	)

	return cmd
}

func newDealsListCmd(storeFn StoreFunc, outputFn func() *Output) *cobra.Command {
	var status string
	var sector string
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deals",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := repo.DealFilter{Sector: sector, Limit: limit, Offset: offset}
			if status != "" {
				s, ok := domain.ParseDealStatus(strings.ToUpper(status))
				if !ok {
					return fmt.Errorf("unknown status %q", status)
				}
				filter.Status = s
			}

			store, err := storeFn(cmd.Context())
			if err != nil {
				return err
			}

			deals, err := store.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			headers := []string{"ID", "SECTOR", "REVENUE", "GM", "STATUS", "CYCLES", "CREATED"}
			rows := make([][]string, len(deals))
			for i, d := range deals {
				rows[i] = []string{
					d.ID.String(),
					d.Sector,
					formatMoney(d.Revenue),
					formatPct(d.GrossMargin),
					string(d.Status),
					strconv.Itoa(d.ReviewCycles),
					formatTime(d.CreatedAt),
				}
			}

			return outputFn().Print(headers, rows, deals)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (NEW, PROCESSING, FINALIZED, FAILED)")
	cmd.Flags().StringVar(&sector, "sector", "", "Filter by sector")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of results to skip")

	return cmd
}

// dealDetails — полный вывод deals show в JSON-режиме.
type dealDetails struct {
	Deal    *domain.Deal         `json:"deal"`
	Verdict *domain.Verdict      `json:"verdict,omitempty"`
	Outputs []domain.StageOutput `json:"outputs,omitempty"`
}

func newDealsShowCmd(storeFn StoreFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show deal with its verdict and stage outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid deal id %q: %w", args[0], err)
			}

			store, err := storeFn(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			deal, err := store.GetByID(ctx, id)
			if err != nil {
				return err
			}
			details := dealDetails{Deal: deal}

			if deal.Status == domain.DealStatusFinalized {
				if details.Verdict, err = store.GetVerdict(ctx, id); err != nil {
					return err
				}
				if details.Outputs, err = store.ListStageOutputs(ctx, id); err != nil {
					return err
				}
			}

			out := outputFn()
			if out.jsonMode {
				return out.JSON(details)
			}
			return printDealDetails(out, details)
		},
	}
}

func printDealDetails(out *Output, d dealDetails) error {
	deal := d.Deal
	err := out.Table(
		[]string{"FIELD", "VALUE"},
		[][]string{
			{"id", deal.ID.String()},
			{"sector", deal.Sector},
			{"revenue", formatMoney(deal.Revenue)},
			{"growth", formatPct(deal.RevenueGrowth)},
			{"gross_margin", formatPct(deal.GrossMargin)},
			{"ebitda_margin", formatPct(deal.EBITDAMargin)},
			{"free_cash_flow", fmt.Sprintf("$%.0fk", deal.FreeCashFlow/1e3)},
			{"status", string(deal.Status)},
			{"review_cycles", strconv.Itoa(deal.ReviewCycles)},
			{"failure_reason", deal.FailureReason},
		},
	)
	if err != nil {
		return err
	}

	if v := d.Verdict; v != nil {
		out.Section("VERDICT")
		err := out.Table(
			[]string{"DECISION", "SOURCE", "SCORE", "CONFIDENCE", "JUDGE", "ENGINE", "CONFLICT"},
			[][]string{{
				string(v.Decision),
				string(v.Source),
				formatScore(v.Score),
				formatScore(v.Confidence),
				string(v.JudgeDecision),
				string(v.EngineDecision),
				string(v.ConflictType),
			}},
		)
		if err != nil {
			return err
		}
	}

	if len(d.Outputs) > 0 {
		out.Section("STAGES")
		rows := make([][]string, len(d.Outputs))
		for i, o := range d.Outputs {
			rows[i] = []string{
				strconv.Itoa(o.Seq),
				strconv.Itoa(o.Cycle),
				string(o.Stage),
				formatScore(o.Score),
				strconv.Itoa(o.Attempts),
			}
		}
		return out.Table([]string{"SEQ", "CYCLE", "STAGE", "SCORE", "ATTEMPTS"}, rows)
	}
	return nil
}

func newDealsStatsCmd(storeFn StoreFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count deals by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storeFn(cmd.Context())
			if err != nil {
				return err
			}

			counts, err := store.CountByStatus(cmd.Context())
			if err != nil {
				return err
			}

			statuses := []domain.DealStatus{
				domain.DealStatusNew,
				domain.DealStatusProcessing,
				domain.DealStatusFinalized,
				domain.DealStatusFailed,
			}
			rows := make([][]string, len(statuses))
			for i, s := range statuses {
				rows[i] = []string{string(s), strconv.FormatInt(counts[s], 10)}
			}

			return outputFn().Print([]string{"STATUS", "COUNT"}, rows, counts)
		},
	}
}
