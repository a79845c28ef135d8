// Package api exposes the wallet's REST surface. Responses use a
// {success, data} / {success, error} envelope; step-up authentication
// surfaces as the error codes 2fa_required and biometric_required, and
// the caller retries the same trace with the factor attached.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/bituncoin/btnledger/core"
	"github.com/bituncoin/btnledger/service/bridge"
	"github.com/bituncoin/btnledger/service/exchange"
	"github.com/bituncoin/btnledger/service/ledger"
	"github.com/bituncoin/btnledger/service/processor"
	"github.com/bituncoin/btnledger/service/staking"
	"github.com/go-chi/chi/v5"
	"github.com/oxtoacart/bpool"
	"github.com/shopspring/decimal"
)

func New(
	registry core.AccountRegistry,
	ledgerz *ledger.Engine,
	processorz *processor.Processor,
	stakingz *staking.Engine,
	exchangez *exchange.Engine,
	bridgez *bridge.Coordinator,
	logger *slog.Logger,
) *Server {
	return &Server{
		registry:   registry,
		ledgerz:    ledgerz,
		processorz: processorz,
		stakingz:   stakingz,
		exchangez:  exchangez,
		bridgez:    bridgez,
		logger:     logger.With("server", "api"),
		bufs:       bpool.NewBufferPool(64),
	}
}

type Server struct {
	registry   core.AccountRegistry
	ledgerz    *ledger.Engine
	processorz *processor.Processor
	stakingz   *staking.Engine
	exchangez  *exchange.Engine
	bridgez    *bridge.Coordinator
	logger     *slog.Logger
	bufs       *bpool.BufferPool
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Route("/wallet", func(r chi.Router) {
		r.Post("/create", s.createWallet)
		r.Get("/balance", s.balance)
		r.Post("/enrollment/verify", s.verifyEnrollment)
	})

	r.Route("/transaction", func(r chi.Router) {
		r.Post("/send", s.send)
		r.Get("/history", s.history)
		r.Post("/cancel", s.cancel)
	})

	r.Route("/staking", func(r chi.Router) {
		r.Post("/stake", s.stake)
		r.Post("/unstake", s.unstake)
		r.Post("/claim", s.claim)
		r.Get("/positions", s.positions)
	})

	r.Route("/exchange", func(r chi.Router) {
		r.Get("/quote", s.quote)
		r.Post("/execute", s.executeExchange)
	})

	r.Route("/bridge", func(r chi.Router) {
		r.Post("/confirmed", s.bridgeConfirmed)
		r.Post("/failed", s.bridgeFailed)
	})

	return r
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.renderCode(w, http.StatusBadRequest, "bad_request", "malformed json body")
		return false
	}

	return true
}

func validAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && !amount.Truncate(8).LessThan(amount)
}

func (s *Server) createWallet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enable2FA       bool   `json:"enable_2fa"`
		EnableBiometric bool   `json:"enable_biometric"`
		BiometricData   string `json:"biometric_data"`
	}
	if !s.decode(w, r, &body) {
		return
	}

	account, err := s.registry.Create(r.Context(), body.Enable2FA, body.EnableBiometric, body.BiometricData)
	if err != nil {
		s.renderErr(w, err)
		return
	}

	s.renderData(w, map[string]any{
		"account_id":         account.ID,
		"address":            account.Address(core.BTN),
		"addresses":          account.Addresses,
		"enrollment_secrets": account.EnrollmentSecrets,
	})
}

func (s *Server) verifyEnrollment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AccountID string          `json:"account_id"`
		Kind      core.FactorKind `json:"kind"`
		Proof     string          `json:"proof"`
	}
	if !s.decode(w, r, &body) {
		return
	}

	if err := s.registry.VerifyEnrollment(r.Context(), body.AccountID, body.Kind, body.Proof); err != nil {
		s.renderErr(w, err)
		return
	}

	s.renderData(w, map[string]any{"enabled": true})
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	account, err := s.registry.LookupAddress(r.Context(), address)
	if err != nil {
		s.renderErr(w, err)
		return
	}

	balances, err := s.ledgerz.ListBalances(r.Context(), account.ID)
	if err != nil {
		s.renderErr(w, err)
		return
	}

	data := map[core.Currency]decimal.Decimal{}
	for _, currency := range core.Currencies() {
		data[currency] = decimal.Zero
	}
	for _, b := range balances {
		data[b.Currency] = b.Available
	}

	s.renderData(w, data)
}

type sendBody struct {
	TraceID        string          `json:"trace_id"`
	From           string          `json:"from"`
	To             string          `json:"to"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       core.Currency   `json:"currency"`
	CrossChain     bool            `json:"cross_chain"`
	TargetChain    string          `json:"target_chain"`
	TwoFactorCode  string          `json:"two_factor_code"`
	BiometricProof string          `json:"biometric_proof"`
}

func (s *Server) send(w http.ResponseWriter, r *http.Request) {
	var body sendBody
	if !s.decode(w, r, &body) {
		return
	}

	if !validAmount(body.Amount) {
		s.renderCode(w, http.StatusBadRequest, "bad_request", "invalid amount")
		return
	}

	if !body.Currency.Supported() {
		s.renderCode(w, http.StatusBadRequest, "bad_request", "unsupported currency")
		return
	}

	kind := core.KindSend
	if body.CrossChain {
		kind = core.KindCrossChain
		if body.TargetChain == "" {
			s.renderCode(w, http.StatusBadRequest, "bad_request", "target_chain required for cross-chain send")
			return
		}
	}

	tx, err := s.processorz.Process(r.Context(), &processor.Request{
		TraceID:     body.TraceID,
		From:        body.From,
		To:          body.To,
		Amount:      body.Amount,
		Currency:    body.Currency,
		Kind:        kind,
		CrossChain:  body.CrossChain,
		TargetChain: body.TargetChain,
		Auth: core.AuthContext{
			TwoFactorCode:  body.TwoFactorCode,
			BiometricProof: body.BiometricProof,
		},
	})
	if err != nil {
		s.renderErr(w, err)
		return
	}

	s.renderData(w, map[string]any{
		"transaction_id": tx.ID,
		"status":         tx.Status,
	})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		s.renderCode(w, http.StatusBadRequest, "bad_request", "address required")
		return
	}

	const limit = 100
	txs, err := s.processorz.History(r.Context(), address, limit)
	if err != nil {
		s.renderErr(w, err)
		return
	}

	views := make([]map[string]any, 0, len(txs))
	for _, tx := range txs {
		views = append(views, map[string]any{
			"id":          tx.ID,
			"from":        tx.From,
			"to":          tx.To,
			"amount":      tx.Amount,
			"currency":    tx.Currency,
			"kind":        tx.Kind,
			"status":      tx.Status,
			"reason":      tx.Reason,
			"cross_chain": tx.CrossChain,
			"timestamp":   tx.CreatedAt.Format(time.RFC3339),
		})
	}

	s.renderData(w, views)
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TransactionID string `json:"transaction_id"`
	}
	if !s.decode(w, r, &body) {
		return
	}

	tx, err := s.processorz.Cancel(r.Context(), body.TransactionID)
	if err != nil {
		s.renderErr(w, err)
		return
	}

	s.renderData(w, map[string]any{"transaction_id": tx.ID, "status": tx.Status})
}

type stakeBody struct {
	Address        string          `json:"address"`
	Currency       core.Currency   `json:"currency"`
	Amount         decimal.Decimal `json:"amount"`
	TwoFactorCode  string          `json:"two_factor_code"`
	BiometricProof string          `json:"biometric_proof"`
}

func (s *Server) stakeRequest(body *stakeBody, kind core.TransactionKind) *processor.Request {
	return &processor.Request{
		From:     body.Address,
		To:       body.Address,
		Amount:   body.Amount,
		Currency: body.Currency,
		Kind:     kind,
		Auth: core.AuthContext{
			TwoFactorCode:  body.TwoFactorCode,
			BiometricProof: body.BiometricProof,
		},
	}
}

func (s *Server) stake(w http.ResponseWriter, r *http.Request) {
	var body stakeBody
	if !s.decode(w, r, &body) {
		return
	}

	if !validAmount(body.Amount) {
		s.renderCode(w, http.StatusBadRequest, "bad_request", "invalid amount")
		return
	}

	tx, err := s.processorz.Process(r.Context(), s.stakeRequest(&body, core.KindStake))
	if err != nil {
		s.renderErr(w, err)
		return
	}

	account, err := s.registry.LookupAddress(r.Context(), body.Address)
	if err != nil {
		s.renderErr(w, err)
		return
	}

	position, err := s.stakingz.Position(r.Context(), account.ID, body.Currency)
	if err != nil {
		s.renderErr(w, err)
		return
	}

	s.renderData(w, map[string]any{
		"transaction_id": tx.ID,
		"position_id":    position.ID,
		"principal":      position.Principal,
	})
}

func (s *Server) unstake(w http.ResponseWriter, r *http.Request) {
	var body stakeBody
	if !s.decode(w, r, &body) {
		return
	}

	if !validAmount(body.Amount) {
		s.renderCode(w, http.StatusBadRequest, "bad_request", "invalid amount")
		return
	}

	tx, err := s.processorz.Process(r.Context(), s.stakeRequest(&body, core.KindUnstake))
	if err != nil {
		s.renderErr(w, err)
		return
	}

	s.renderData(w, map[string]any{"transaction_id": tx.ID})
}

func (s *Server) claim(w http.ResponseWriter, r *http.Request) {
	var body stakeBody
	if !s.decode(w, r, &body) {
		return
	}

	tx, err := s.processorz.Process(r.Context(), s.stakeRequest(&body, core.KindClaimReward))
	if err != nil {
		s.renderErr(w, err)
		return
	}

	s.renderData(w, map[string]any{"transaction_id": tx.ID, "reward": tx.Amount})
}

func (s *Server) positions(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	account, err := s.registry.LookupAddress(r.Context(), address)
	if err != nil {
		s.renderErr(w, err)
		return
	}

	positions, rewards, err := s.stakingz.Positions(r.Context(), account.ID)
	if err != nil {
		s.renderErr(w, err)
		return
	}

	views := make([]map[string]any, 0, len(positions))
	for i, position := range positions {
		views = append(views, map[string]any{
			"position_id":      position.ID,
			"currency":         position.Currency,
			"principal":        position.Principal,
			"apy_basis_points": position.APYBasisPoints,
			"started_at":       position.StartedAt.Format(time.RFC3339),
			"accrued_reward":   rewards[i],
		})
	}

	s.renderData(w, views)
}

func (s *Server) quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil || !validAmount(amount) {
		s.renderCode(w, http.StatusBadRequest, "bad_request", "invalid amount")
		return
	}

	quote, err := s.exchangez.Quote(r.Context(), core.Currency(q.Get("from")), core.Currency(q.Get("to")), amount)
	if err != nil {
		s.renderErr(w, err)
		return
	}

	s.renderData(w, quote)
}

func (s *Server) executeExchange(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Address        string          `json:"address"`
		From           core.Currency   `json:"from"`
		To             core.Currency   `json:"to"`
		Amount         decimal.Decimal `json:"amount"`
		QuotedRate     decimal.Decimal `json:"quoted_rate"`
		QuotedAt       time.Time       `json:"quoted_at"`
		TwoFactorCode  string          `json:"two_factor_code"`
		BiometricProof string          `json:"biometric_proof"`
	}
	if !s.decode(w, r, &body) {
		return
	}

	if !validAmount(body.Amount) {
		s.renderCode(w, http.StatusBadRequest, "bad_request", "invalid amount")
		return
	}

	var quoted *core.Quote
	if !body.QuotedRate.IsZero() {
		quoted = &core.Quote{
			From:     body.From,
			To:       body.To,
			Amount:   body.Amount,
			Rate:     body.QuotedRate,
			QuotedAt: body.QuotedAt,
		}
	}

	tx, err := s.processorz.Process(r.Context(), &processor.Request{
		From:       body.Address,
		To:         body.Address,
		Amount:     body.Amount,
		Currency:   body.From,
		Kind:       core.KindExchange,
		ToCurrency: body.To,
		Quote:      quoted,
		Auth: core.AuthContext{
			TwoFactorCode:  body.TwoFactorCode,
			BiometricProof: body.BiometricProof,
		},
	})
	if err != nil {
		s.renderErr(w, err)
		return
	}

	s.renderData(w, map[string]any{"transaction_id": tx.ID})
}

func (s *Server) bridgeConfirmed(w http.ResponseWriter, r *http.Request) {
	var body struct {
		LockID string `json:"lock_id"`
	}
	if !s.decode(w, r, &body) {
		return
	}

	if err := s.bridgez.OnConfirmed(r.Context(), body.LockID); err != nil {
		s.renderErr(w, err)
		return
	}

	s.renderData(w, map[string]any{"lock_id": body.LockID})
}

func (s *Server) bridgeFailed(w http.ResponseWriter, r *http.Request) {
	var body struct {
		LockID string `json:"lock_id"`
		Reason string `json:"reason"`
	}
	if !s.decode(w, r, &body) {
		return
	}

	if err := s.bridgez.OnFailed(r.Context(), body.LockID, body.Reason); err != nil {
		s.renderErr(w, err)
		return
	}

	s.renderData(w, map[string]any{"lock_id": body.LockID})
}
