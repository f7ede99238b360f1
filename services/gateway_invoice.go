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

// InvoiceGateway is the local invoicing rail used for DZD bookings
// (EDAHABIA/CIB checkout). The provider hosts the checkout page; we create
// an invoice and redirect the guest to it.
// Configuration: INVOICE_GATEWAY_BASE_URL, INVOICE_GATEWAY_API_KEY,
// INVOICE_GATEWAY_WEBHOOK_SECRET.
type InvoiceGateway struct {
	baseURL string
	apiKey  string
	secret  string
	client  *http.Client
}

func NewInvoiceGateway() *InvoiceGateway {
	return &InvoiceGateway{
		baseURL: os.Getenv("INVOICE_GATEWAY_BASE_URL"),
		apiKey:  os.Getenv("INVOICE_GATEWAY_API_KEY"),
		secret:  os.Getenv("INVOICE_GATEWAY_WEBHOOK_SECRET"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *InvoiceGateway) CreateIntent(ctx context.Context, amount float64, currency, bookingRef string, payer *models.User) (*PaymentIntent, error) {
	payload := map[string]interface{}{
		"amount":           amount,
		"currency":         currency,
		"payment_method":   "EDAHABIA",
		"invoice_number":   bookingRef,
		"webhook_endpoint": os.Getenv("INVOICE_GATEWAY_WEBHOOK_ENDPOINT"),
	}
	if payer != nil {
		payload["client"] = payer.FirstName + " " + payer.LastName
		payload["client_email"] = payer.Email
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/invoice", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Authorization", g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, asGatewayError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: invoicing rail returned %d", ErrGatewayError, resp.StatusCode)
	}

	var out struct {
		Invoice struct {
			ID          string `json:"id"`
			CheckoutURL string `json:"checkout_url"`
		} `json:"invoice"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, asGatewayError(err)
	}

	return &PaymentIntent{
		ProviderTransactionID: out.Invoice.ID,
		ClientPayload:         map[string]string{"checkoutURL": out.Invoice.CheckoutURL},
	}, nil
}

func (g *InvoiceGateway) GetStatus(ctx context.Context, providerTransactionID string) (*PaymentStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/invoice/"+providerTransactionID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Authorization", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, asGatewayError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: invoicing rail returned %d", ErrGatewayError, resp.StatusCode)
	}

	var out struct {
		Invoice struct {
			Status string `json:"status"` // paid, pending, failed
		} `json:"invoice"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, asGatewayError(err)
	}

	return &PaymentStatus{
		IsPaid:    out.Invoice.Status == "paid",
		RawStatus: out.Invoice.Status,
	}, nil
}

func (g *InvoiceGateway) VerifyWebhookSignature(payload []byte, signatureHeader string) bool {
	if g.secret == "" || signatureHeader == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(g.secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}
