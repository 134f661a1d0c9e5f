package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"wager-ledger-backend/internal/config"
)

// SignatureHeader carries the signature of the exact request body bytes, both
// on calls to the gateway and on its webhooks.
const SignatureHeader = "x-signature"

const maxGatewayResponse = 1 << 20

type AddressRequest struct {
	OrderID   string
	PaymentID int
	Amount    decimal.Decimal
}

type AddressResponse struct {
	Address        string
	DestinationTag string
}

// PaymentGateway issues deposit addresses.
type PaymentGateway interface {
	CreateAddress(ctx context.Context, req AddressRequest) (*AddressResponse, error)
}

// addressPayload is the body of POST /v2/address. Field order is part of the
// signature contract and must not change:
// platform_id, payment_id, amount, currency, order_id, is_payment_multiple,
// lifetime, callback_url.
type addressPayload struct {
	PlatformID        json.Number     `json:"platform_id"`
	PaymentID         int             `json:"payment_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	OrderID           string          `json:"order_id"`
	IsPaymentMultiple int             `json:"is_payment_multiple"`
	Lifetime          int             `json:"lifetime"`
	CallbackURL       string          `json:"callback_url"`
}

// flexString accepts a JSON string, number or null.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString(n.String())
	return nil
}

type addressResponse struct {
	Result  int        `json:"result"`
	Message flexString `json:"message"`

	Address        flexString `json:"address"`
	PayinAddress   flexString `json:"payin_address"`
	DestinationTag flexString `json:"destinationTag"`
	DestTagSnake   flexString `json:"destination_tag"`
	Memo           flexString `json:"memo"`
	PayinExtraID   flexString `json:"payin_extra_id"`

	Data *addressResponse `json:"data"`
}

func firstNonEmpty(values ...flexString) string {
	for _, v := range values {
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	}
	return ""
}

func (r *addressResponse) address() (string, string) {
	addr := firstNonEmpty(r.Address, r.PayinAddress)
	tag := firstNonEmpty(r.DestinationTag, r.DestTagSnake, r.Memo, r.PayinExtraID)
	if r.Data != nil {
		if addr == "" {
			addr = firstNonEmpty(r.Data.Address, r.Data.PayinAddress)
		}
		if tag == "" {
			tag = firstNonEmpty(r.Data.DestinationTag, r.Data.DestTagSnake, r.Data.Memo, r.Data.PayinExtraID)
		}
	}
	return addr, tag
}

// PassimPayClient talks to the PassimPay address-issuance endpoint.
type PassimPayClient struct {
	baseURL     string
	platformID  string
	callbackURL string
	currency    string
	lifetime    int
	signer      *Signer
	httpClient  *http.Client
}

func NewPassimPayClient(cfg *config.Config, signer *Signer) *PassimPayClient {
	return &PassimPayClient{
		baseURL:     strings.TrimRight(cfg.GatewayURL, "/"),
		platformID:  cfg.PlatformID,
		callbackURL: cfg.CallbackURL,
		currency:    cfg.Currency,
		lifetime:    cfg.AddressLifetime,
		signer:      signer,
		httpClient:  &http.Client{Timeout: cfg.GatewayTimeout},
	}
}

func (c *PassimPayClient) CreateAddress(ctx context.Context, req AddressRequest) (*AddressResponse, error) {
	body, err := Canonicalize(addressPayload{
		PlatformID:        json.Number(c.platformID),
		PaymentID:         req.PaymentID,
		Amount:            req.Amount,
		Currency:          c.currency,
		OrderID:           req.OrderID,
		IsPaymentMultiple: 0,
		Lifetime:          c.lifetime,
		CallbackURL:       c.callbackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/address", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build request: %v", ErrGateway, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(SignatureHeader, c.signer.SignRaw(body))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayResponse))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrGateway, err)
	}

	log.WithFields(log.Fields{
		"order_id": req.OrderID,
		"status":   resp.StatusCode,
	}).Debug("PassimPay address response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: unexpected status %s", ErrGateway, resp.Status)
	}

	var out addressResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrGateway, err)
	}
	if out.Result != 1 {
		return nil, fmt.Errorf("%w: result %d: %s", ErrGateway, out.Result, out.Message)
	}

	addr, tag := out.address()
	if addr == "" {
		return nil, fmt.Errorf("%w: no address returned", ErrGateway)
	}

	return &AddressResponse{
		Address:        addr,
		DestinationTag: tag,
	}, nil
}
