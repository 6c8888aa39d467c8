package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/DealFlow/internal/domain"
)

// dealColumns — колонки deals в порядке scanDeal.
var dealColumns = []string{
	"id", "sector", "revenue", "revenue_growth", "revenue_cagr_3y",
	"gross_margin", "ebitda", "ebitda_margin", "net_debt", "debt_equity",
	"free_cash_flow", "employee_count", "founding_year",
	"customer_concentration", "market_growth",
	"status::text", "review_cycles", "failure_reason", "claimed_at",
	"created_at", "updated_at",
}

var dealSelect = strings.Join(dealColumns, ", ")

// psql — построитель запросов с плейсхолдерами $N.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// DealRepo — репозиторий сделок, выходов стадий и вердиктов.
type DealRepo struct {
	pool *pgxpool.Pool
}

// NewDealRepo создаёт новый DealRepo.
func NewDealRepo(pool *pgxpool.Pool) *DealRepo {
	return &DealRepo{pool: pool}
}

// Insert сохраняет новую сделку в статусе NEW.
func (r *DealRepo) Insert(ctx context.Context, d *domain.Deal) error {
	query := `
		INSERT INTO deals (id, sector, revenue, revenue_growth, revenue_cagr_3y,
		                   gross_margin, ebitda, ebitda_margin, net_debt, debt_equity,
		                   free_cash_flow, employee_count, founding_year,
		                   customer_concentration, market_growth, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 'NEW', $16, $16)
	`
	_, err := r.pool.Exec(ctx, query,
		d.ID,
		d.Sector,
		d.Revenue,
		d.RevenueGrowth,
		d.RevenueCAGR3Y,
		d.GrossMargin,
		d.EBITDA,
		d.EBITDAMargin,
		d.NetDebt,
		d.DebtEquity,
		d.FreeCashFlow,
		d.EmployeeCount,
		d.FoundingYear,
		d.CustomerConcentration,
		d.MarketGrowth,
		d.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert deal: %w", err)
	}
	d.Status = domain.DealStatusNew
	return nil
}

// ClaimNext захватывает самую старую сделку NEW.
//
// Выбор и перевод в PROCESSING — один запрос: строки, заблокированные
// другими воркерами, пропускаются.
func (r *DealRepo) ClaimNext(ctx context.Context) (*domain.Deal, error) {
	query := `
		UPDATE deals
		SET status = 'PROCESSING', claimed_at = NOW(), updated_at = NOW()
		WHERE id = (
			SELECT id FROM deals
			WHERE status = 'NEW'
			ORDER BY created_at, id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + dealSelect

	d, err := scanDeal(r.pool.QueryRow(ctx, query))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoWork
	}
	if err != nil {
		return nil, fmt.Errorf("claim deal: %w", err)
	}
	return d, nil
}

// CommitResult записывает результат прогона одной транзакцией:
// выходы стадий по порядку, вердикт, перевод сделки в FINALIZED.
//
// ErrInvalidState, если сделка уже не в PROCESSING.
// ErrAlreadyExists, если вердикт для сделки уже есть.
// При любой ошибке ничего не записывается.
func (r *DealRepo) CommitResult(ctx context.Context, dealID uuid.UUID, outputs []domain.StageOutput, verdict domain.Verdict) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, o := range outputs {
		payload, err := o.Payload()
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", o.Stage, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO stage_outputs (id, deal_id, stage, cycle, seq, score, confidence, attempts, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			o.ID, dealID, o.Stage, o.Cycle, o.Seq, o.Score, o.Confidence, o.Attempts, payload, o.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert stage output %d: %w", o.Seq, err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO verdicts (id, deal_id, decision, score, confidence, cycles, duration_ms, source,
		                      judge_decision, engine_decision, conflict, conflict_type, reasoning, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		verdict.ID,
		dealID,
		verdict.Decision,
		verdict.Score,
		verdict.Confidence,
		verdict.Cycles,
		verdict.Duration.Milliseconds(),
		verdict.Source,
		verdict.JudgeDecision,
		verdict.EngineDecision,
		verdict.Conflict,
		nullString(string(verdict.ConflictType)),
		verdict.Reasoning,
		verdict.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert verdict: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE deals
		SET status = 'FINALIZED', review_cycles = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'PROCESSING'
	`, dealID, verdict.Cycles)
	if err != nil {
		return fmt.Errorf("finalize deal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// MarkFailed переводит сделку PROCESSING → FAILED с причиной.
func (r *DealRepo) MarkFailed(ctx context.Context, dealID uuid.UUID, reason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE deals
		SET status = 'FAILED', failure_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'PROCESSING'
	`, dealID, reason)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// ResetStuck возвращает в NEW сделки, захваченные раньше now-olderThan.
// Возвращает число сброшенных сделок.
func (r *DealRepo) ResetStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	tag, err := r.pool.Exec(ctx, `
		UPDATE deals
		SET status = 'NEW', claimed_at = NULL, updated_at = NOW()
		WHERE status = 'PROCESSING' AND claimed_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reset stuck deals: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetByID возвращает сделку по ID.
func (r *DealRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Deal, error) {
	query := `SELECT ` + dealSelect + ` FROM deals WHERE id = $1`
	return scanDeal(r.pool.QueryRow(ctx, query, id))
}

// List возвращает сделки с фильтрацией, новые первыми.
func (r *DealRepo) List(ctx context.Context, filter DealFilter) ([]domain.Deal, error) {
	q := psql.Select(dealColumns...).
		From("deals").
		OrderBy("created_at DESC", "id").
		Limit(uint64(filter.limit()))

	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.Sector != "" {
		q = q.Where(sq.Eq{"sector": filter.Sector})
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	var deals []domain.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, *d)
	}
	return deals, rows.Err()
}

// GetVerdict возвращает вердикт сделки.
func (r *DealRepo) GetVerdict(ctx context.Context, dealID uuid.UUID) (*domain.Verdict, error) {
	query := `
		SELECT id, deal_id, decision, score, confidence, cycles, duration_ms, source,
		       judge_decision, engine_decision, conflict, conflict_type, reasoning, created_at
		FROM verdicts
		WHERE deal_id = $1
	`
	var v domain.Verdict
	var durationMs int64
	var conflictType *string

	err := r.pool.QueryRow(ctx, query, dealID).Scan(
		&v.ID,
		&v.DealID,
		&v.Decision,
		&v.Score,
		&v.Confidence,
		&v.Cycles,
		&durationMs,
		&v.Source,
		&v.JudgeDecision,
		&v.EngineDecision,
		&v.Conflict,
		&conflictType,
		&v.Reasoning,
		&v.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan verdict: %w", err)
	}

	v.Duration = time.Duration(durationMs) * time.Millisecond
	if conflictType != nil {
		v.ConflictType = domain.ConflictType(*conflictType)
	}
	return &v, nil
}

// ListStageOutputs возвращает выходы стадий сделки в порядке выполнения.
func (r *DealRepo) ListStageOutputs(ctx context.Context, dealID uuid.UUID) ([]domain.StageOutput, error) {
	query := `
		SELECT id, stage, cycle, seq, score, confidence, attempts, payload, created_at
		FROM stage_outputs
		WHERE deal_id = $1
		ORDER BY seq
	`
	rows, err := r.pool.Query(ctx, query, dealID)
	if err != nil {
		return nil, fmt.Errorf("list stage outputs: %w", err)
	}
	defer rows.Close()

	var outputs []domain.StageOutput
	for rows.Next() {
		var o domain.StageOutput
		var payload []byte

		if err := rows.Scan(
			&o.ID,
			&o.Stage,
			&o.Cycle,
			&o.Seq,
			&o.Score,
			&o.Confidence,
			&o.Attempts,
			&payload,
			&o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan stage output: %w", err)
		}
		if err := o.SetPayload(payload); err != nil {
			return nil, fmt.Errorf("unmarshal %s payload: %w", o.Stage, err)
		}
		outputs = append(outputs, o)
	}
	return outputs, rows.Err()
}

// CountByStatus возвращает число сделок в каждом статусе.
func (r *DealRepo) CountByStatus(ctx context.Context) (map[domain.DealStatus]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status::text, COUNT(*) FROM deals GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count deals: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.DealStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[domain.DealStatus(status)] = n
	}
	return counts, rows.Err()
}

// --- Helpers ---

// rowScanner — общий интерфейс pgx.Row и pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDeal сканирует строку в Deal (колонки dealColumns).
func scanDeal(row rowScanner) (*domain.Deal, error) {
	var d domain.Deal
	var status string
	var failureReason *string

	err := row.Scan(
		&d.ID,
		&d.Sector,
		&d.Revenue,
		&d.RevenueGrowth,
		&d.RevenueCAGR3Y,
		&d.GrossMargin,
		&d.EBITDA,
		&d.EBITDAMargin,
		&d.NetDebt,
		&d.DebtEquity,
		&d.FreeCashFlow,
		&d.EmployeeCount,
		&d.FoundingYear,
		&d.CustomerConcentration,
		&d.MarketGrowth,
		&status,
		&d.ReviewCycles,
		&failureReason,
		&d.ClaimedAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan deal: %w", err)
	}

	d.Status = domain.DealStatus(status)
	if failureReason != nil {
		d.FailureReason = *failureReason
	}
	return &d, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
