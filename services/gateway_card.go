package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gallhort/Baytup-sub000/models"
)

// CardGateway is the card rail used for EUR bookings. It speaks the
// provider's REST API directly; webhook authenticity is an HMAC-SHA256 over
// the raw payload.
// Configuration: CARD_GATEWAY_BASE_URL, CARD_GATEWAY_API_KEY,
// CARD_GATEWAY_WEBHOOK_SECRET.
type CardGateway struct {
	baseURL string
	apiKey  string
	secret  string
	client  *http.Client
}

func NewCardGateway() *CardGateway {
	return &CardGateway{
		baseURL: os.Getenv("CARD_GATEWAY_BASE_URL"),
		apiKey:  os.Getenv("CARD_GATEWAY_API_KEY"),
		secret:  os.Getenv("CARD_GATEWAY_WEBHOOK_SECRET"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *CardGateway) CreateIntent(ctx context.Context, amount float64, currency, bookingRef string, payer *models.User) (*PaymentIntent, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"amount":   int64(amount * 100), // minor units
		"currency": currency,
		"metadata": map[string]string{"booking_ref": bookingRef},
		"receipt_email": func() string {
			if payer != nil {
				return payer.Email
			}
			return ""
		}(),
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/payment_intents", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, asGatewayError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: card rail returned %d", ErrGatewayError, resp.StatusCode)
	}

	var out struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, asGatewayError(err)
	}

	return &PaymentIntent{
		ProviderTransactionID: out.ID,
		ClientPayload:         map[string]string{"clientSecret": out.ClientSecret},
	}, nil
}

func (g *CardGateway) GetStatus(ctx context.Context, providerTransactionID string) (*PaymentStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1/payment_intents/"+providerTransactionID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, asGatewayError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: card rail returned %d", ErrGatewayError, resp.StatusCode)
	}

	var out struct {
		Status       string `json:"status"`
		LatestCharge string `json:"latest_charge"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, asGatewayError(err)
	}

	return &PaymentStatus{
		IsPaid:            out.Status == "succeeded",
		RawStatus:         out.Status,
		ProviderChargeRef: out.LatestCharge,
	}, nil
}

func (g *CardGateway) VerifyWebhookSignature(payload []byte, signatureHeader string) bool {
	if g.secret == "" || signatureHeader == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(g.secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}
