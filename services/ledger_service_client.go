// agent-arena-system/services/ledger_service_client.go
package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"agent-arena-system/utils"
)

// LedgerServiceClient talks to the external settlement ledger that owns the
// actual agent funds. This service only mirrors balances; every real money
// movement goes through the ledger.
type LedgerServiceClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

type LedgerTransferResponse struct {
	TransferID string `json:"transfer_id"`
	Status     string `json:"status"`
}

func NewLedgerServiceClient(baseURL, token string) *LedgerServiceClient {
	return &LedgerServiceClient{
		BaseURL: baseURL,
		Token:   token,
		Client:  utils.HTTPClient,
	}
}

// Enabled reports whether a ledger endpoint is configured.
func (c *LedgerServiceClient) Enabled() bool { return c != nil && c.BaseURL != "" }

// Transfer posts a settlement instruction to the ledger.
func (c *LedgerServiceClient) Transfer(reference, toAgentID string, amount float64, reason string) (*LedgerTransferResponse, error) {
	url := fmt.Sprintf("%s/ledger/transfers", c.BaseURL)

	reqBody := map[string]interface{}{
		"reference":   reference,
		"to_agent_id": toAgentID,
		"amount":      amount,
		"reason":      reason,
	}
	jsonData, _ := json.Marshal(reqBody)

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.Printf("LedgerService /transfers returned %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("ledger transfer failed: %d", resp.StatusCode)
	}

	var out LedgerTransferResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}
