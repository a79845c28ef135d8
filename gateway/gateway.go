// Package gateway is the HTTP client for the external collaborators the
// engine depends on but does not implement: the custody signer, the rate
// feed, and the per-chain bridge gateways. Each collaborator is a narrow
// JSON endpoint; the engine only ever sees the core interfaces.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/bituncoin/btnledger/core"
	"github.com/shopspring/decimal"
)

type Config struct {
	RateURL   string `valid:"url,required"`
	ChainURL  string `valid:"url,required"`
	SignerURL string `valid:"url,required"`
}

func New(cfg Config) *Client {
	if _, err := govalidator.ValidateStruct(cfg); err != nil {
		panic(err)
	}

	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

type Client struct {
	cfg  Config
	http *http.Client
}

func (c *Client) Rate(ctx context.Context, from, to core.Currency) (decimal.Decimal, error) {
	var body struct {
		Rate decimal.Decimal `json:"rate"`
	}

	url := fmt.Sprintf("%s/rate?from=%s&to=%s", c.cfg.RateURL, from, to)
	if err := c.get(ctx, url, &body); err != nil {
		return decimal.Zero, err
	}

	if !body.Rate.IsPositive() {
		return decimal.Zero, core.ErrUnsupportedPair
	}

	return body.Rate, nil
}

func (c *Client) Lock(ctx context.Context, intent *core.BridgeIntent, tx *core.Transaction) (string, error) {
	var body struct {
		LockID string `json:"lock_id"`
	}

	err := c.post(ctx, c.cfg.ChainURL+"/locks", map[string]any{
		"transaction_id": intent.TransactionID,
		"source_chain":   intent.SourceChain,
		"target_chain":   intent.TargetChain,
		"to":             tx.To,
		"amount":         tx.Amount,
		"currency":       tx.Currency,
	}, &body)
	if err != nil {
		return "", err
	}

	return body.LockID, nil
}

func (c *Client) Confirmed(ctx context.Context, lockID string) (bool, error) {
	var body struct {
		Confirmed bool `json:"confirmed"`
	}

	if err := c.get(ctx, c.cfg.ChainURL+"/locks/"+lockID, &body); err != nil {
		return false, err
	}

	return body.Confirmed, nil
}

func (c *Client) Release(ctx context.Context, lockID string) error {
	return c.post(ctx, c.cfg.ChainURL+"/locks/"+lockID+"/release", map[string]any{}, nil)
}

func (c *Client) Sign(ctx context.Context, tx *core.Transaction) (string, error) {
	var body struct {
		Signature string `json:"signature"`
	}

	err := c.post(ctx, c.cfg.SignerURL+"/sign", map[string]any{
		"transaction_id": tx.ID,
		"from":           tx.From,
		"to":             tx.To,
		"amount":         tx.Amount,
		"currency":       tx.Currency,
	}, &body)
	if err != nil {
		return "", err
	}

	return body.Signature, nil
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, url string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("gateway: %s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
