package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bituncoin/btnledger/core"
	"github.com/bituncoin/btnledger/service/bridge"
	"github.com/bituncoin/btnledger/service/exchange"
	"github.com/bituncoin/btnledger/service/ledger"
	"github.com/bituncoin/btnledger/service/processor"
	"github.com/bituncoin/btnledger/service/registry"
	"github.com/bituncoin/btnledger/service/staking"
	"github.com/bituncoin/btnledger/store/memstore"
	"github.com/shopspring/decimal"
)

type scriptedPolicy struct {
	decision core.Decision
}

func (p *scriptedPolicy) Authorize(context.Context, string, core.TransactionKind, core.AuthContext) (core.Decision, error) {
	return p.decision, nil
}

func (p *scriptedPolicy) Observe(context.Context, string, core.TransactionKind, *core.Transaction) {}

func (p *scriptedPolicy) Flag(context.Context, string, string) error { return nil }

func (p *scriptedPolicy) AccountCreated(context.Context, *core.Account) {}

type stubSigner struct{}

func (stubSigner) Sign(context.Context, *core.Transaction) (string, error) { return "sig", nil }

type stubAdapter struct{}

func (stubAdapter) Lock(context.Context, *core.BridgeIntent, *core.Transaction) (string, error) {
	return "lock-1", nil
}

func (stubAdapter) Confirmed(context.Context, string) (bool, error) { return true, nil }

func (stubAdapter) Release(context.Context, string) error { return nil }

type stubRates struct{}

func (stubRates) Rate(_ context.Context, from, to core.Currency) (decimal.Decimal, error) {
	if from == core.BTN && to == core.BTC {
		return decimal.RequireFromString("0.5"), nil
	}
	return decimal.Zero, core.ErrUnsupportedPair
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type fixture struct {
	handler  http.Handler
	registry core.AccountRegistry
	ledgerz  *ledger.Engine
	policy   *scriptedPolicy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	accounts := memstore.NewAccountStore()
	transactions := memstore.NewTransactionStore()
	policy := &scriptedPolicy{decision: core.DecisionAllow}

	reg := registry.New(accounts, policy, logger)
	ledgerz := ledger.New(memstore.NewLedgerStore(), logger)
	stakingz := staking.New(ledgerz, memstore.NewStakeStore(), logger, staking.Config{
		MinStake:   decimal.RequireFromString("1"),
		LockPeriod: time.Hour,
	})
	exchangez := exchange.New(ledgerz, stubRates{}, logger, exchange.Config{
		FeeBasisPoints:      100,
		QuoteTTL:            time.Minute,
		SlippageBasisPoints: 100,
	})
	bridgez := bridge.New(ledgerz, memstore.NewBridgeIntentStore(), transactions, accounts, stubAdapter{}, logger, bridge.Config{
		ConfirmWindow: time.Hour,
		PollBackoff:   time.Second,
	})
	processorz := processor.New(accounts, transactions, policy, ledgerz, stakingz, exchangez, bridgez, stubSigner{}, logger, processor.Config{
		StakeAPYBasisPoints: 500,
	})

	server := New(reg, ledgerz, processorz, stakingz, exchangez, bridgez, logger)

	return &fixture{
		handler:  server.Handler(),
		registry: reg,
		ledgerz:  ledgerz,
		policy:   policy,
	}
}

func (f *fixture) do(t *testing.T, method, target string, body any) (int, *response) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var env response
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}

	return rec.Code, &env
}

func (f *fixture) createWallet(t *testing.T) string {
	t.Helper()

	code, env := f.do(t, http.MethodPost, "/wallet/create", map[string]any{})
	if code != http.StatusOK || !env.Success {
		t.Fatalf("create wallet: status %d, envelope %+v", code, env)
	}

	var data struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}

	return data.Address
}

func (f *fixture) fund(t *testing.T, address, amount string) {
	t.Helper()

	account, err := f.registry.LookupAddress(context.Background(), address)
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.ledgerz.ApplyDelta(context.Background(), "fund-"+address, ledger.Delta{
		AccountID: account.ID,
		Currency:  core.BTN,
		Amount:    decimal.RequireFromString(amount),
		Leg:       core.LegAvailable,
		Kind:      core.KindReceive,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCreateWallet(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(t, http.MethodPost, "/wallet/create", map[string]any{"enable_2fa": true})
	if code != http.StatusOK || !env.Success {
		t.Fatalf("status %d, envelope %+v", code, env)
	}

	var data struct {
		AccountID         string                     `json:"account_id"`
		Address           string                     `json:"address"`
		Addresses         map[core.Currency]string   `json:"addresses"`
		EnrollmentSecrets map[core.FactorKind]string `json:"enrollment_secrets"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(data.Address, "btn1") {
		t.Fatalf("primary address = %q, want btn1 prefix", data.Address)
	}
	if len(data.Addresses) != len(core.Currencies()) {
		t.Fatalf("got %d addresses, want %d", len(data.Addresses), len(core.Currencies()))
	}
	if data.EnrollmentSecrets[core.FactorTwoFactor] == "" {
		t.Fatal("2fa enrollment secret missing")
	}
}

func TestBalance(t *testing.T) {
	f := newFixture(t)
	address := f.createWallet(t)
	f.fund(t, address, "42.5")

	code, env := f.do(t, http.MethodGet, "/wallet/balance?address="+address, nil)
	if code != http.StatusOK || !env.Success {
		t.Fatalf("status %d, envelope %+v", code, env)
	}

	var data map[core.Currency]decimal.Decimal
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}

	if !data[core.BTN].Equal(decimal.RequireFromString("42.5")) {
		t.Fatalf("BTN balance = %s, want 42.5", data[core.BTN])
	}
	if !data[core.ETH].IsZero() {
		t.Fatalf("ETH balance = %s, want zero-filled 0", data[core.ETH])
	}
}

func TestBalanceUnknownAddress(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(t, http.MethodGet, "/wallet/balance?address=btn1missing", nil)
	if code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", code)
	}
	if env.Success || env.Error == nil || env.Error.Code != "not_found" {
		t.Fatalf("envelope %+v, want not_found error", env)
	}
}

func TestSend(t *testing.T) {
	f := newFixture(t)
	from := f.createWallet(t)
	to := f.createWallet(t)
	f.fund(t, from, "100")

	code, env := f.do(t, http.MethodPost, "/transaction/send", map[string]any{
		"trace_id": "trace-http-send",
		"from":     from,
		"to":       to,
		"amount":   "30",
		"currency": "BTN",
	})
	if code != http.StatusOK || !env.Success {
		t.Fatalf("status %d, envelope %+v", code, env)
	}

	var data struct {
		TransactionID string                 `json:"transaction_id"`
		Status        core.TransactionStatus `json:"status"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Status != core.StatusApplied {
		t.Fatalf("status = %s, want applied", data.Status)
	}

	code, env = f.do(t, http.MethodGet, "/transaction/history?address="+from, nil)
	if code != http.StatusOK || !env.Success {
		t.Fatalf("history: status %d, envelope %+v", code, env)
	}

	var txs []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &txs); err != nil {
		t.Fatal(err)
	}
	if len(txs) != 1 || txs[0].ID != data.TransactionID {
		t.Fatalf("history = %+v, want the applied send", txs)
	}
}

func TestSendInvalidAmount(t *testing.T) {
	f := newFixture(t)

	for _, amount := range []string{"0", "-1", "0.123456789"} {
		code, env := f.do(t, http.MethodPost, "/transaction/send", map[string]any{
			"from": "btn1a", "to": "btn1b", "amount": amount, "currency": "BTN",
		})
		if code != http.StatusBadRequest || env.Error == nil || env.Error.Code != "bad_request" {
			t.Fatalf("amount %s: status %d, envelope %+v", amount, code, env)
		}
	}
}

func TestSendUnsupportedCurrency(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(t, http.MethodPost, "/transaction/send", map[string]any{
		"from": "btn1a", "to": "btn1b", "amount": "1", "currency": "DOGE",
	})
	if code != http.StatusBadRequest || env.Error == nil || env.Error.Code != "bad_request" {
		t.Fatalf("status %d, envelope %+v", code, env)
	}
}

func TestSendCrossChainWithoutTargetChain(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(t, http.MethodPost, "/transaction/send", map[string]any{
		"from": "btn1a", "to": "0xb", "amount": "1", "currency": "BTN", "cross_chain": true,
	})
	if code != http.StatusBadRequest || env.Error == nil || env.Error.Code != "bad_request" {
		t.Fatalf("status %d, envelope %+v", code, env)
	}
}

func TestSendStepUpEnvelope(t *testing.T) {
	f := newFixture(t)
	from := f.createWallet(t)
	f.fund(t, from, "100")
	f.policy.decision = core.DecisionRequire2FA

	code, env := f.do(t, http.MethodPost, "/transaction/send", map[string]any{
		"trace_id": "trace-stepup",
		"from":     from,
		"to":       "btn1elsewhere",
		"amount":   "10",
		"currency": "BTN",
	})
	if code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", code)
	}
	if env.Success || env.Error == nil || env.Error.Code != "2fa_required" {
		t.Fatalf("envelope %+v, want 2fa_required error", env)
	}
}

func TestSendDeniedEnvelope(t *testing.T) {
	f := newFixture(t)
	from := f.createWallet(t)
	f.fund(t, from, "100")
	f.policy.decision = core.DecisionDeny

	code, env := f.do(t, http.MethodPost, "/transaction/send", map[string]any{
		"from": from, "to": "btn1elsewhere", "amount": "10", "currency": "BTN",
	})
	if code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", code)
	}
	if env.Error == nil || env.Error.Code != "security_denied" {
		t.Fatalf("envelope %+v, want security_denied error", env)
	}
}

func TestStakeAndPositions(t *testing.T) {
	f := newFixture(t)
	address := f.createWallet(t)
	f.fund(t, address, "100")

	code, env := f.do(t, http.MethodPost, "/staking/stake", map[string]any{
		"address": address, "currency": "BTN", "amount": "60",
	})
	if code != http.StatusOK || !env.Success {
		t.Fatalf("stake: status %d, envelope %+v", code, env)
	}

	var data struct {
		PositionID string          `json:"position_id"`
		Principal  decimal.Decimal `json:"principal"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.PositionID == "" || !data.Principal.Equal(decimal.RequireFromString("60")) {
		t.Fatalf("stake data %+v, want principal 60", data)
	}

	code, env = f.do(t, http.MethodGet, "/staking/positions?address="+address, nil)
	if code != http.StatusOK || !env.Success {
		t.Fatalf("positions: status %d, envelope %+v", code, env)
	}

	var positions []struct {
		PositionID string          `json:"position_id"`
		Principal  decimal.Decimal `json:"principal"`
	}
	if err := json.Unmarshal(env.Data, &positions); err != nil {
		t.Fatal(err)
	}
	if len(positions) != 1 || positions[0].PositionID != data.PositionID {
		t.Fatalf("positions = %+v, want the new position", positions)
	}
}

func TestExchangeQuoteAndExecute(t *testing.T) {
	f := newFixture(t)
	address := f.createWallet(t)
	f.fund(t, address, "200")

	code, env := f.do(t, http.MethodGet, "/exchange/quote?from=BTN&to=BTC&amount=100", nil)
	if code != http.StatusOK || !env.Success {
		t.Fatalf("quote: status %d, envelope %+v", code, env)
	}

	var quote core.Quote
	if err := json.Unmarshal(env.Data, &quote); err != nil {
		t.Fatal(err)
	}
	if !quote.Rate.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("rate = %s, want 0.5", quote.Rate)
	}

	code, env = f.do(t, http.MethodPost, "/exchange/execute", map[string]any{
		"address":     address,
		"from":        "BTN",
		"to":          "BTC",
		"amount":      "100",
		"quoted_rate": quote.Rate,
		"quoted_at":   quote.QuotedAt,
	})
	if code != http.StatusOK || !env.Success {
		t.Fatalf("execute: status %d, envelope %+v", code, env)
	}
}

func TestExchangeQuoteUnsupportedPair(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(t, http.MethodGet, "/exchange/quote?from=BTN&to=GLD&amount=10", nil)
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
	if env.Error == nil || env.Error.Code != "unsupported_pair" {
		t.Fatalf("envelope %+v, want unsupported_pair error", env)
	}
}

func TestVerifyEnrollment(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(t, http.MethodPost, "/wallet/create", map[string]any{"enable_2fa": true})
	if code != http.StatusOK {
		t.Fatalf("create: status %d", code)
	}

	var data struct {
		AccountID         string                     `json:"account_id"`
		EnrollmentSecrets map[core.FactorKind]string `json:"enrollment_secrets"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}

	code, env = f.do(t, http.MethodPost, "/wallet/enrollment/verify", map[string]any{
		"account_id": data.AccountID,
		"kind":       core.FactorTwoFactor,
		"proof":      data.EnrollmentSecrets[core.FactorTwoFactor],
	})
	if code != http.StatusOK || !env.Success {
		t.Fatalf("verify: status %d, envelope %+v", code, env)
	}

	code, env = f.do(t, http.MethodPost, "/wallet/enrollment/verify", map[string]any{
		"account_id": data.AccountID,
		"kind":       core.FactorTwoFactor,
		"proof":      "wrong",
	})
	if code != http.StatusBadRequest || env.Error == nil || env.Error.Code != "invalid_enrollment" {
		t.Fatalf("wrong proof: status %d, envelope %+v", code, env)
	}
}
