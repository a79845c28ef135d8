// Package processor orchestrates the transaction state machine. It owns
// the Transaction record from submission to terminal status: security
// authorization, dispatch to the engine matching the kind, and recording
// Applied/Failed exactly once. Funds errors are never retried here; the
// ledger already exhausted its bounded retries before they surface.
package processor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/bituncoin/btnledger/core"
	"github.com/bituncoin/btnledger/service/bridge"
	"github.com/bituncoin/btnledger/service/exchange"
	"github.com/bituncoin/btnledger/service/ledger"
	"github.com/bituncoin/btnledger/service/staking"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrTwoFactorRequired asks the caller to resubmit with a 2fa code.
	ErrTwoFactorRequired = errors.New("two-factor code required")
	// ErrBiometricRequired asks the caller to resubmit with a biometric proof.
	ErrBiometricRequired = errors.New("biometric proof required")
	// ErrNotCancellable rejects cancelling a transaction past Pending.
	ErrNotCancellable = errors.New("transaction is no longer pending")
)

type Config struct {
	// StakeAPYBasisPoints is the annual yield applied to new positions.
	StakeAPYBasisPoints int64 `valid:"required"`
}

// Request is one submitted operation. From and To are chain addresses;
// ToCurrency and Quote only apply to exchanges.
type Request struct {
	TraceID     string
	From        string
	To          string
	Amount      decimal.Decimal
	Currency    core.Currency
	Kind        core.TransactionKind
	CrossChain  bool
	TargetChain string
	ToCurrency  core.Currency
	Quote       *core.Quote
	Auth        core.AuthContext
}

func New(
	accounts core.AccountStore,
	transactions core.TransactionStore,
	policy core.SecurityPolicy,
	ledgerz *ledger.Engine,
	stakingz *staking.Engine,
	exchangez *exchange.Engine,
	bridgez *bridge.Coordinator,
	signer core.Signer,
	logger *slog.Logger,
	cfg Config,
) *Processor {
	if _, err := govalidator.ValidateStruct(cfg); err != nil {
		panic(err)
	}

	return &Processor{
		accounts:     accounts,
		transactions: transactions,
		policy:       policy,
		ledgerz:      ledgerz,
		stakingz:     stakingz,
		exchangez:    exchangez,
		bridgez:      bridgez,
		signer:       signer,
		logger:       logger.With("service", "processor"),
		cfg:          cfg,
	}
}

type Processor struct {
	accounts     core.AccountStore
	transactions core.TransactionStore
	policy       core.SecurityPolicy
	ledgerz      *ledger.Engine
	stakingz     *staking.Engine
	exchangez    *exchange.Engine
	bridgez      *bridge.Coordinator
	signer       core.Signer
	logger       *slog.Logger
	cfg          Config

	sf singleflight.Group
}

// Process runs one request to a terminal status (or AwaitingBridge).
// Duplicate submissions sharing a trace id collapse onto one execution;
// a replayed trace returns the recorded transaction.
func (p *Processor) Process(ctx context.Context, req *Request) (*core.Transaction, error) {
	if req.TraceID == "" {
		return p.process(ctx, req)
	}

	v, err, _ := p.sf.Do(req.TraceID, func() (interface{}, error) {
		existing, err := p.transactions.FindTrace(ctx, req.TraceID)
		if err == nil && existing.Status != core.StatusPending {
			return existing, nil
		} else if err != nil && !errors.Is(err, core.ErrNotFound) {
			return nil, err
		}

		return p.process(ctx, req)
	})
	if v == nil {
		return nil, err
	}

	return v.(*core.Transaction), err
}

func (p *Processor) process(ctx context.Context, req *Request) (*core.Transaction, error) {
	account, err := p.accounts.FindAddress(ctx, req.From)
	if err != nil {
		return nil, err
	}

	// a trace whose first attempt stopped at a step-up challenge resumes
	// the recorded Pending transaction instead of minting a duplicate
	var tx *core.Transaction
	if req.TraceID != "" {
		existing, err := p.transactions.FindTrace(ctx, req.TraceID)
		if err == nil {
			tx = existing
		} else if !errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
	}

	if tx == nil {
		tx = &core.Transaction{
			ID:          uuid.NewString(),
			TraceID:     req.TraceID,
			From:        req.From,
			To:          req.To,
			Amount:      req.Amount,
			Currency:    req.Currency,
			Kind:        req.Kind,
			Status:      core.StatusPending,
			CrossChain:  req.CrossChain,
			TargetChain: req.TargetChain,
			CreatedAt:   time.Now(),
		}
		if err := p.transactions.Create(ctx, tx); err != nil {
			return nil, err
		}
	}

	auth := req.Auth
	auth.Amount = req.Amount
	decision, err := p.policy.Authorize(ctx, account.ID, req.Kind, auth)
	if err != nil {
		return tx, p.fail(ctx, tx, err)
	}

	switch decision {
	case core.DecisionAllow:
	case core.DecisionRequire2FA:
		// stays Pending; the caller resubmits the trace with a code
		return tx, ErrTwoFactorRequired
	case core.DecisionRequireBiometric:
		return tx, ErrBiometricRequired
	default:
		return tx, p.fail(ctx, tx, core.ErrSecurityDenied)
	}

	// leave Pending before anything can touch the ledger: Cancel and the
	// janitor CAS from Pending, so whichever transition lands first wins
	// and the other fails cleanly
	if err := p.transactions.UpdateStatus(ctx, tx, core.StatusProcessing, ""); err != nil {
		return tx, err
	}

	if req.Kind == core.KindSend || req.Kind == core.KindCrossChain {
		if _, err := p.signer.Sign(ctx, tx); err != nil {
			return tx, p.fail(ctx, tx, err)
		}
	}

	if err := p.dispatch(ctx, tx, account, req); err != nil {
		return tx, err
	}

	return tx, nil
}

func (p *Processor) dispatch(ctx context.Context, tx *core.Transaction, account *core.Account, req *Request) error {
	switch req.Kind {
	case core.KindSend:
		return p.send(ctx, tx, account)

	case core.KindReceive:
		_, err := p.ledgerz.ApplyDelta(ctx, tx.ID, ledger.Delta{
			AccountID: account.ID,
			Currency:  tx.Currency,
			Amount:    tx.Amount,
			Leg:       core.LegAvailable,
			Kind:      core.KindReceive,
		})
		return p.finish(ctx, tx, account, err)

	case core.KindStake:
		_, err := p.stakingz.Stake(ctx, tx, account.ID, p.cfg.StakeAPYBasisPoints)
		return p.finish(ctx, tx, account, err)

	case core.KindUnstake:
		position, err := p.stakingz.Position(ctx, account.ID, tx.Currency)
		if err != nil {
			return p.fail(ctx, tx, err)
		}
		return p.finish(ctx, tx, account, p.stakingz.Unstake(ctx, tx, position, tx.Amount))

	case core.KindClaimReward:
		position, err := p.stakingz.Position(ctx, account.ID, tx.Currency)
		if err != nil {
			return p.fail(ctx, tx, err)
		}
		reward, err := p.stakingz.ClaimReward(ctx, tx, position)
		if err == nil {
			// the claim's recorded amount is the reward it realized
			tx.Amount = reward
		}
		return p.finish(ctx, tx, account, err)

	case core.KindExchange:
		_, err := p.exchangez.Execute(ctx, tx, account.ID, req.ToCurrency, req.Quote)
		return p.finish(ctx, tx, account, err)

	case core.KindCrossChain:
		return p.crossChain(ctx, tx, account)

	default:
		return p.fail(ctx, tx, errors.New("unknown transaction kind"))
	}
}

// send debits the sender and, when the recipient address belongs to a
// local account, credits it in the same atomic batch. Both account locks
// are taken in the ledger's fixed order.
func (p *Processor) send(ctx context.Context, tx *core.Transaction, from *core.Account) error {
	deltas := []ledger.Delta{{
		AccountID: from.ID,
		Currency:  tx.Currency,
		Amount:    tx.Amount.Neg(),
		Leg:       core.LegAvailable,
		Kind:      core.KindSend,
	}}

	to, err := p.accounts.FindAddress(ctx, tx.To)
	switch {
	case err == nil:
		deltas = append(deltas, ledger.Delta{
			AccountID: to.ID,
			Currency:  tx.Currency,
			Amount:    tx.Amount,
			Leg:       core.LegAvailable,
			Kind:      core.KindReceive,
		})
	case errors.Is(err, core.ErrNotFound):
		// external recipient; funds leave the ledger entirely
	default:
		return p.fail(ctx, tx, err)
	}

	_, err = p.ledgerz.ApplyAll(ctx, tx.ID, deltas...)
	return p.finish(ctx, tx, from, err)
}

// crossChain parks the transaction in AwaitingBridge and hands it to the
// coordinator; the bridge resolves it asynchronously.
func (p *Processor) crossChain(ctx context.Context, tx *core.Transaction, account *core.Account) error {
	if err := p.transactions.UpdateStatus(ctx, tx, core.StatusAwaitingBridge, ""); err != nil {
		return err
	}

	if _, err := p.bridgez.Initiate(ctx, tx, account.ID); err != nil {
		return p.fail(ctx, tx, err)
	}

	return nil
}

// finish records the terminal status for a synchronous operation. Funds
// and contention errors surface as Failed immediately.
func (p *Processor) finish(ctx context.Context, tx *core.Transaction, account *core.Account, opErr error) error {
	if opErr != nil {
		return p.fail(ctx, tx, opErr)
	}

	tx.AppliedAt = time.Now()
	if err := p.transactions.UpdateStatus(ctx, tx, core.StatusApplied, ""); err != nil {
		return err
	}

	p.policy.Observe(ctx, account.ID, tx.Kind, tx)
	p.logger.Info("transaction applied", "transaction", tx.ID, "kind", tx.Kind, "amount", tx.Amount, "currency", tx.Currency)
	return nil
}

func (p *Processor) fail(ctx context.Context, tx *core.Transaction, cause error) error {
	if tx.Status.Terminal() {
		return cause
	}

	if err := p.transactions.UpdateStatus(ctx, tx, core.StatusFailed, cause.Error()); err != nil {
		p.logger.Error("record failure", "transaction", tx.ID, "err", err)
	}

	p.logger.Info("transaction failed", "transaction", tx.ID, "kind", tx.Kind, "reason", cause.Error())
	return cause
}

// Cancel aborts a transaction that has not yet touched the ledger.
func (p *Processor) Cancel(ctx context.Context, id string) (*core.Transaction, error) {
	tx, err := p.transactions.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	if tx.Status != core.StatusPending {
		return tx, ErrNotCancellable
	}

	if err := p.transactions.UpdateStatus(ctx, tx, core.StatusFailed, "cancelled by caller"); err != nil {
		return tx, err
	}

	return tx, nil
}

// Find returns a transaction by id.
func (p *Processor) Find(ctx context.Context, id string) (*core.Transaction, error) {
	return p.transactions.Find(ctx, id)
}

// History lists the newest transactions touching an address.
func (p *Processor) History(ctx context.Context, address string, limit int) ([]*core.Transaction, error) {
	return p.transactions.ListAddress(ctx, address, limit)
}
