package swap

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"xmrbridge/config"
	"xmrbridge/pkg/ledger"
	"xmrbridge/pkg/lightning"
	"xmrbridge/pkg/monero"
	"xmrbridge/pkg/oracle"
)

// MoneroWallet is the Monero wallet surface consumed by the swap service. The
// monero.Client implements it.
type MoneroWallet interface {
	TransferSource
	CreateAddress(ctx context.Context) (string, uint32, error)
	ValidateAddress(ctx context.Context, address string) (*monero.AddressInfo, error)
}

// Service runs the swap settlement workflow: quote, admission, payment
// watching and settlement. Sessions live in memory for their lifetime; only
// settlement records are durable.
type Service struct {
	cfg     config.ServiceConfig
	wallet  lightning.Wallet
	xmr     MoneroWallet
	quotes  *QuoteEngine
	gate    *LiquidityGate
	monitor *PaymentMonitor

	// settlements receives records for successful swaps, refunds for failed
	// or expired ones.
	settlements ledger.Store
	refunds     ledger.Store

	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	now func() time.Time
}

// NewService wires the swap workflow together.
func NewService(cfg config.ServiceConfig, wallet lightning.Wallet, xmr MoneroWallet,
	rates oracle.RateSource, settlements, refunds ledger.Store, logger *slog.Logger) *Service {

	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:         cfg,
		wallet:      wallet,
		xmr:         xmr,
		quotes:      NewQuoteEngine(wallet, rates, cfg.FeeRate),
		gate:        NewLiquidityGate(wallet, cfg.MaxAmountBTC, cfg.MinLiquidityRatio),
		monitor:     NewPaymentMonitor(xmr, cfg.ZeroConfThreshold),
		settlements: settlements,
		refunds:     refunds,
		logger:      logger,
		sessions:    make(map[string]*Session),
		now:         time.Now,
	}
}

// CreateQuote validates the refund address, prices the invoice and runs the
// liquidity gate. On success a new session is created in QUOTED state. No
// session is created on any failure.
func (s *Service) CreateQuote(ctx context.Context, invoice, refundAddress string) (Session, error) {
	if invoice == "" || refundAddress == "" {
		return Session{}, &RejectionError{Reason: "missing invoice or refund address"}
	}

	info, err := s.xmr.ValidateAddress(ctx, refundAddress)
	if err != nil {
		return Session{}, fmt.Errorf("failed to validate refund address: %w", err)
	}
	if !info.Valid {
		return Session{}, &RejectionError{Reason: "invalid Monero refund address"}
	}

	quote, err := s.quotes.Quote(ctx, invoice)
	if err != nil {
		return Session{}, err
	}

	if err := s.gate.Check(ctx, quote.AmountBTC); err != nil {
		return Session{}, err
	}

	createdAt := s.now()
	session := &Session{
		ID:            uuid.New().String(),
		Invoice:       quote.Invoice,
		PaymentHash:   quote.PaymentHash,
		AmountBTC:     quote.AmountBTC,
		Description:   quote.Description,
		ExchangeRate:  quote.Rate,
		FeeRate:       quote.FeeRate,
		XMRAmountDue:  quote.XMRAmountDue,
		RefundAddress: refundAddress,
		CreatedAt:     createdAt,
		ExpiresAt:     createdAt.Add(s.cfg.QuoteTTL),
		Status:        StatusQuoted,
	}

	s.mu.Lock()
	s.reapLocked(createdAt)
	s.sessions[session.ID] = session
	s.mu.Unlock()

	s.logger.Info("quote created",
		"session", session.ID,
		"amount_btc", session.AmountBTC.String(),
		"xmr_due", session.XMRAmountDue.String(),
		"rate", session.ExchangeRate.String())

	return *session, nil
}

// Accept assigns a dedicated subaddress to a quoted session and opens the
// payment window. It is idempotent: a session already awaiting payment keeps
// its subaddress.
func (s *Service) Accept(ctx context.Context, id string) (Session, error) {
	s.mu.Lock()
	session, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return Session{}, ErrSessionNotFound
	}
	if session.Status == StatusAwaitingPayment {
		out := *session
		s.mu.Unlock()
		return out, nil
	}
	if session.Status == StatusQuoted && session.Expired(s.now()) {
		delete(s.sessions, id)
		s.mu.Unlock()
		return Session{}, ErrSessionNotFound
	}
	if session.Status != StatusQuoted {
		out := *session
		s.mu.Unlock()
		return out, fmt.Errorf("session %s is %s, cannot accept", id, out.Status)
	}
	s.mu.Unlock()

	subaddress, index, err := s.xmr.CreateAddress(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("failed to create subaddress: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if session.Status == StatusQuoted {
		session.Subaddress = subaddress
		session.SubaddressIndex = index
		if err := session.transition(StatusAwaitingPayment); err != nil {
			return Session{}, err
		}
		s.logger.Info("swap accepted",
			"session", session.ID,
			"subaddress_index", session.SubaddressIndex)
	}
	return *session, nil
}

// PaymentURI returns the monero: URI for the session's subaddress.
func (s *Service) PaymentURI(session Session) string {
	if session.Subaddress == "" {
		return ""
	}
	return monero.BuildURI(session.Subaddress, &session.XMRAmountDue)
}

// CheckPayment polls the subaddress and advances the session. Transport
// errors before the deadline leave the session untouched; the caller retries
// on the next poll. An expired session with observed funds produces a refund
// record.
func (s *Service) CheckPayment(ctx context.Context, id string) (Session, *PaymentStatus, error) {
	s.mu.Lock()
	session, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return Session{}, nil, ErrSessionNotFound
	}
	if session.Status != StatusAwaitingPayment {
		out := *session
		s.mu.Unlock()
		return out, nil, nil
	}
	index := session.SubaddressIndex
	due := session.XMRAmountDue
	expired := session.Expired(s.now())
	s.mu.Unlock()

	// Poll even past the deadline so funds landing late still reach the
	// refund ledger.
	status, err := s.monitor.Check(ctx, index, due)

	s.mu.Lock()
	defer s.mu.Unlock()
	if session.Status != StatusAwaitingPayment {
		return *session, status, nil
	}
	if err != nil {
		if expired {
			// The wallet is unreachable but the window is over; expire on
			// the last observed balance rather than hold the session open.
			out, eerr := s.expireAndDropLocked(session)
			return out, nil, eerr
		}
		// No session mutation on transport errors.
		return Session{}, nil, err
	}

	session.ObservedBalance = status.AcceptedTotal

	// The wall-clock deadline is hard: a payment observed after expiry goes
	// down the refund path, never into settlement.
	if session.Expired(s.now()) {
		out, eerr := s.expireAndDropLocked(session)
		return out, status, eerr
	}

	if status.Received {
		if err := session.transition(StatusPaymentDetected); err != nil {
			return *session, status, err
		}
		s.logger.Info("payment detected",
			"session", session.ID,
			"tier", status.Tier.String(),
			"accepted_xmr", status.AcceptedTotal.String())
	}

	return *session, status, nil
}

// expireLocked moves an awaiting session to EXPIRED and records a refund when
// funds were observed. Callers hold the session lock.
func (s *Service) expireLocked(session *Session) error {
	if err := session.transition(StatusExpired); err != nil {
		return err
	}
	s.logger.Info("session expired", "session", session.ID)

	if session.ObservedBalance.IsPositive() && session.Subaddress != "" {
		if err := s.writeRecord(s.refunds, session, session.RefundAddress); err != nil {
			return err
		}
		s.logger.Info("refund queued for expired session",
			"session", session.ID,
			"subaddress_index", session.SubaddressIndex,
			"observed_xmr", session.ObservedBalance.String())
	}
	return nil
}

// expireAndDropLocked expires the session and removes it from the map,
// returning the caller's final snapshot. On a failed refund write the session
// is kept so the record is not lost silently.
func (s *Service) expireAndDropLocked(session *Session) (Session, error) {
	err := s.expireLocked(session)
	out := *session
	if err == nil {
		delete(s.sessions, session.ID)
	}
	return out, err
}

// reapLocked drops sessions whose payment window closed without the caller
// ever driving them to an outcome. Quotes that were never accepted vanish
// outright; abandoned awaiting sessions go through the expiry path so any
// observed funds still get a refund record.
func (s *Service) reapLocked(now time.Time) {
	for id, session := range s.sessions {
		if !session.Expired(now) {
			continue
		}
		switch session.Status {
		case StatusQuoted:
			delete(s.sessions, id)
		case StatusAwaitingPayment:
			if _, err := s.expireAndDropLocked(session); err != nil {
				s.logger.Error("failed to expire stale session", "session", id, "error", err)
			}
		}
	}
}

// Settle pays the original Lightning invoice from pooled liquidity. The
// payment call runs exactly once per settlement attempt; any failure after it
// is sent classifies the swap FAILED and queues the refund instead of
// retrying, because a second attempt risks double payment.
func (s *Service) Settle(ctx context.Context, id string) (Session, error) {
	s.mu.Lock()
	session, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return Session{}, ErrSessionNotFound
	}
	if session.Status != StatusPaymentDetected {
		out := *session
		s.mu.Unlock()
		return out, fmt.Errorf("session %s is %s, cannot settle", id, out.Status)
	}
	if err := session.transition(StatusSettling); err != nil {
		out := *session
		s.mu.Unlock()
		return out, err
	}
	s.mu.Unlock()

	// Point of no return: channel liquidity may be spent from here on.
	result, err := s.wallet.PayInvoice(ctx, session.Invoice)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil || !result.Success {
		if err != nil {
			s.logger.Error("lightning payment errored", "session", session.ID, "error", err)
		} else {
			s.logger.Error("lightning payment failed", "session", session.ID,
				"payload", string(result.Payload))
		}
		if terr := session.transition(StatusFailed); terr != nil {
			return *session, terr
		}
		if werr := s.writeRecord(s.refunds, session, session.RefundAddress); werr != nil {
			return *session, werr
		}
		s.logger.Info("refund queued for failed settlement",
			"session", session.ID,
			"subaddress_index", session.SubaddressIndex)
		out := *session
		delete(s.sessions, session.ID)
		return out, nil
	}

	if err := session.transition(StatusSettled); err != nil {
		return *session, err
	}
	if err := s.writeRecord(s.settlements, session, s.cfg.SettlementAddress); err != nil {
		return *session, err
	}

	s.logger.Info("swap settled",
		"session", session.ID,
		"payment_hash", session.PaymentHash,
		"subaddress_index", session.SubaddressIndex)

	// A settled session is cleared and cannot be queried again.
	out := *session
	delete(s.sessions, session.ID)
	return out, nil
}

// Session returns a snapshot of an in-flight session.
func (s *Service) Session(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return *session, nil
}

func (s *Service) writeRecord(store ledger.Store, session *Session, target string) error {
	err := store.Put(session.ID, ledger.Record{
		SubaddressIndex: session.SubaddressIndex,
		TargetAddress:   target,
		CreatedAt:       s.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to write settlement record: %w", err)
	}
	return nil
}
