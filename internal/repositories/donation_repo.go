package repositories

import (
	"context"
	"strconv"

	"github.com/eunoia-atlas/backend/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DonationRepo struct {
	pool *pgxpool.Pool
}

func NewDonationRepo(pool *pgxpool.Pool) *DonationRepo {
	return &DonationRepo{pool: pool}
}

func (r *DonationRepo) Create(ctx context.Context, d *models.Donation) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO donations (charity, cause_id, donor_intent, amount, currency,
		                       donor_email, donor_hash, is_public, method, memo_id, tx_hash, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at
	`, d.Charity, d.CauseID, d.DonorIntent, d.Amount, d.Currency,
		d.DonorEmail, d.DonorHash, d.IsPublic, d.Method, d.MemoID, d.TxHash, d.Status,
	).Scan(&d.ID, &d.CreatedAt)
}

func (r *DonationRepo) GetByMemoID(ctx context.Context, memoID string) (*models.Donation, error) {
	var d models.Donation
	err := r.pool.QueryRow(ctx, `
		SELECT id, charity, cause_id, donor_intent, amount, currency,
		       donor_email, donor_hash, is_public, method, memo_id, tx_hash,
		       status, created_at, settled_at
		FROM donations WHERE memo_id = $1
	`, memoID).Scan(&d.ID, &d.Charity, &d.CauseID, &d.DonorIntent, &d.Amount, &d.Currency,
		&d.DonorEmail, &d.DonorHash, &d.IsPublic, &d.Method, &d.MemoID, &d.TxHash,
		&d.Status, &d.CreatedAt, &d.SettledAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// MarkSettledByMemo flips a pending donation to settled once its
// payment is observed on the ledger. Settling twice is a no-op.
func (r *DonationRepo) MarkSettledByMemo(ctx context.Context, memoID, txHash string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE donations SET status = 'settled', tx_hash = $1, settled_at = now()
		WHERE memo_id = $2 AND status = 'pending'
	`, txHash, memoID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *DonationRepo) MarkFailed(ctx context.Context, memoID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE donations SET status = 'failed'
		WHERE memo_id = $1 AND status = 'pending'
	`, memoID)
	return err
}

// Totals returns settled donation sums per charity code.
func (r *DonationRepo) Totals(ctx context.Context) (map[string]float64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT charity, COALESCE(SUM(amount), 0)::TEXT
		FROM donations WHERE status = 'settled'
		GROUP BY charity
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]float64)
	for rows.Next() {
		var charity, sum string
		if err := rows.Scan(&charity, &sum); err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(sum, 64)
		if err != nil {
			continue
		}
		totals[charity] = v
	}
	return totals, rows.Err()
}

// Scores lists pseudonymous donors of a charity by gift count. Only
// public donations with a donor hash participate.
func (r *DonationRepo) Scores(ctx context.Context, charity string) ([]models.DonorScore, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT donor_hash, COUNT(*)
		FROM donations
		WHERE charity = $1 AND status = 'settled' AND is_public AND donor_hash IS NOT NULL
		GROUP BY donor_hash
		ORDER BY COUNT(*) DESC
	`, charity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scores := make([]models.DonorScore, 0)
	for rows.Next() {
		var s models.DonorScore
		if err := rows.Scan(&s.PseudonymHash, &s.GiftCount); err != nil {
			return nil, err
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}
