package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/eunoia-atlas/backend/internal/config"
	"github.com/eunoia-atlas/backend/internal/events"
	"github.com/eunoia-atlas/backend/internal/models"
	"github.com/eunoia-atlas/backend/internal/repositories"
	"github.com/eunoia-atlas/backend/internal/xrpl"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger is the slice of the XRPL client the service uses; tests
// substitute a fake.
type Ledger interface {
	SubmitPayment(ctx context.Context, seed string, spec xrpl.PaymentSpec) (string, error)
}

type DonationService struct {
	repo      *repositories.DonationRepo
	ledger    Ledger
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
}

func NewDonationService(
	repo *repositories.DonationRepo,
	ledger Ledger,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *DonationService {
	return &DonationService{
		repo:      repo,
		ledger:    ledger,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

// DonorHash derives the pseudonym shown on public donor boards. Nil
// for anonymous gifts.
func DonorHash(email string) *string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(email))
	h := hex.EncodeToString(sum[:])
	return &h
}

// NewMemoID mints the ledger memo used to match an on-chain payment
// back to its donation record.
func NewMemoID() string {
	return "EUN-" + strings.Split(uuid.New().String(), "-")[0]
}

// Donate performs a platform-signed RLUSD transfer to the charity
// wallet and records the settled donation. This is the original
// single-call donation path.
func (s *DonationService) Donate(ctx context.Context, charityCode, causeID string, amount float64, donorEmail string) (txHash, trackURL string, err error) {
	charity, ok := s.cfg.CharityByCode(charityCode)
	if !ok {
		return "", "", fmt.Errorf("unknown charity: %s", charityCode)
	}
	if amount <= 0 {
		return "", "", fmt.Errorf("amount must be positive")
	}

	memoID := NewMemoID()
	txHash, err = s.ledger.SubmitPayment(ctx, s.cfg.PlatformSeed, xrpl.PaymentSpec{
		Account:     s.cfg.PlatformAddress,
		Destination: charity.WalletAddress,
		Amount: xrpl.IssuedAmount{
			Value:    xrpl.FormatValue(amount),
			Currency: xrpl.RLUSDHex,
			Issuer:   s.cfg.RLUSDIssuer,
		},
		MemoHex: xrpl.EncodeMemoHex(memoID),
	})
	if err != nil {
		return "", "", fmt.Errorf("ledger transfer failed: %w", err)
	}

	var email *string
	if donorEmail != "" {
		email = &donorEmail
	}
	d := &models.Donation{
		Charity:    charity.Code,
		CauseID:    causeID,
		Amount:     xrpl.FormatValue(amount),
		Currency:   "CAD",
		DonorEmail: email,
		DonorHash:  DonorHash(donorEmail),
		Method:     models.MethodPlatform,
		MemoID:     &memoID,
		TxHash:     &txHash,
		Status:     models.DonationStatusSettled,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		s.log.Error("donation recorded on ledger but not in db",
			zap.String("tx_hash", txHash), zap.Error(err))
	}

	s.publish(events.EventDonationRecorded, map[string]any{
		"charity": charity.Code,
		"amount":  d.Amount,
		"tx_hash": txHash,
		"method":  models.MethodPlatform,
	})

	return txHash, xrpl.ExplorerURL(s.cfg.ExplorerBaseURL, txHash), nil
}

// SubmitDonorIntent settles a whisper-flow submission through the
// platform hot wallet. The first configured charity receives gifts
// whose payload does not name one.
func (s *DonationService) SubmitDonorIntent(ctx context.Context, p models.SubmissionPayload) (*models.Donation, string, error) {
	charityCode := p.Charity
	if charityCode == "" && len(s.cfg.Charities) > 0 {
		charityCode = s.cfg.Charities[0].Code
	}
	charity, ok := s.cfg.CharityByCode(charityCode)
	if !ok {
		return nil, "", fmt.Errorf("unknown charity: %s", charityCode)
	}
	if p.AmountFiat <= 0 {
		return nil, "", fmt.Errorf("amount must be positive")
	}

	memoID := NewMemoID()
	txHash, err := s.ledger.SubmitPayment(ctx, s.cfg.PlatformSeed, xrpl.PaymentSpec{
		Account:     s.cfg.PlatformAddress,
		Destination: charity.WalletAddress,
		Amount: xrpl.IssuedAmount{
			Value:    xrpl.FormatValue(p.AmountFiat),
			Currency: xrpl.RLUSDHex,
			Issuer:   s.cfg.RLUSDIssuer,
		},
		MemoHex: xrpl.EncodeMemoHex(memoID),
	})
	if err != nil {
		return nil, "", fmt.Errorf("ledger transfer failed: %w", err)
	}

	d := s.donationFromPayload(p, charity.Code, memoID)
	d.Method = models.MethodPlatform
	d.TxHash = &txHash
	d.Status = models.DonationStatusSettled
	if err := s.repo.Create(ctx, d); err != nil {
		s.log.Error("donation recorded on ledger but not in db",
			zap.String("tx_hash", txHash), zap.Error(err))
	}

	s.publish(events.EventDonationRecorded, map[string]any{
		"charity": charity.Code,
		"amount":  d.Amount,
		"tx_hash": txHash,
		"method":  models.MethodPlatform,
	})

	return d, xrpl.ExplorerURL(s.cfg.ExplorerBaseURL, txHash), nil
}

// RecordWalletPending stores a donation awaiting an out-of-band wallet
// signature; the ledger indexer or the status poller settles it later
// by memo.
func (s *DonationService) RecordWalletPending(ctx context.Context, p models.SubmissionPayload, memoID, method string) (*models.Donation, error) {
	d := s.donationFromPayload(p, p.Charity, memoID)
	d.Method = method
	d.Status = models.DonationStatusPending
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to record pending donation: %w", err)
	}
	return d, nil
}

// RecordWalletSettled stores a donation the donor's own wallet already
// submitted (CROSSMARK path).
func (s *DonationService) RecordWalletSettled(ctx context.Context, p models.SubmissionPayload, txHash, method string) (*models.Donation, error) {
	memoID := NewMemoID()
	d := s.donationFromPayload(p, p.Charity, memoID)
	d.Method = method
	d.TxHash = &txHash
	d.Status = models.DonationStatusSettled
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to record donation: %w", err)
	}

	s.publish(events.EventDonationRecorded, map[string]any{
		"charity": d.Charity,
		"amount":  d.Amount,
		"tx_hash": txHash,
		"method":  method,
	})
	return d, nil
}

// SettleByMemo marks a pending wallet donation settled once its
// transaction is known.
func (s *DonationService) SettleByMemo(ctx context.Context, memoID, txHash string) error {
	settled, err := s.repo.MarkSettledByMemo(ctx, memoID, txHash)
	if err != nil {
		return err
	}
	if !settled {
		return nil
	}

	s.publish(events.EventPaymentReceived, map[string]any{
		"memo_id": memoID,
		"tx_hash": txHash,
	})
	return nil
}

func (s *DonationService) Totals(ctx context.Context) (map[string]float64, error) {
	return s.repo.Totals(ctx)
}

func (s *DonationService) Scores(ctx context.Context, charityCode string) ([]models.DonorScore, error) {
	charity, ok := s.cfg.CharityByCode(charityCode)
	if !ok {
		return nil, fmt.Errorf("unknown charity: %s", charityCode)
	}
	return s.repo.Scores(ctx, charity.Code)
}

// Payout queues a mock off-ramp payout for a charity's balance.
func (s *DonationService) Payout(ctx context.Context, charityCode string) (map[string]any, error) {
	charity, ok := s.cfg.CharityByCode(charityCode)
	if !ok {
		return nil, fmt.Errorf("unknown charity: %s", charityCode)
	}

	ref := fmt.Sprintf("OFFMOCK-%s-%s", charity.Code, strings.Split(uuid.New().String(), "-")[0])
	s.publish(events.EventPayoutRequested, map[string]any{
		"charity": charity.Code,
		"ref":     ref,
	})

	s.log.Info("payout queued", zap.String("charity", charity.Code), zap.String("ref", ref))
	return map[string]any{"charity": charity.Code, "status": "queued", "ref": ref}, nil
}

func (s *DonationService) donationFromPayload(p models.SubmissionPayload, charityCode, memoID string) *models.Donation {
	if charityCode == "" && len(s.cfg.Charities) > 0 {
		charityCode = s.cfg.Charities[0].Code
	}
	currency := p.Currency
	if currency == "" {
		currency = "CAD"
	}
	var email *string
	if p.IsPublic && p.DonorEmail != "" {
		e := p.DonorEmail
		email = &e
	}
	var donorHash *string
	if p.IsPublic {
		donorHash = DonorHash(p.DonorEmail)
	}
	return &models.Donation{
		Charity:     strings.ToUpper(charityCode),
		CauseID:     p.CauseID,
		DonorIntent: p.DonorIntent,
		Amount:      xrpl.FormatValue(p.AmountFiat),
		Currency:    currency,
		DonorEmail:  email,
		DonorHash:   donorHash,
		IsPublic:    p.IsPublic,
		MemoID:      &memoID,
	}
}

func (s *DonationService) publish(eventType string, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	_ = s.publisher.Publish(context.Background(), events.StreamDonations, events.Event{
		Type:    eventType,
		Payload: payload,
	})
}
