// internal/services/ledger_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/protrace/backend/internal/config"
)

// LedgerService talks to the HTTP gateway in front of the provenance ledger.
// Anchoring is advisory: every call is bounded by a timeout and no failure
// here is ever allowed to fail a product operation.
type LedgerService struct {
	cfg    config.LedgerConfig
	client *http.Client
}

type LedgerEvent struct {
	EventType    string    `json:"event_type"`
	Location     string    `json:"location"`
	Description  string    `json:"description"`
	IdentityHash string    `json:"identity_hash"`
	Timestamp    time.Time `json:"timestamp"`
	TxRef        string    `json:"tx_ref"`
}

type recordEventRequest struct {
	ProductID    string `json:"product_id"`
	EventType    string `json:"event_type"`
	Location     string `json:"location"`
	Description  string `json:"description"`
	IdentityHash string `json:"identity_hash"`
	Contract     string `json:"contract,omitempty"`
}

type recordEventResponse struct {
	TxRef string `json:"tx_ref"`
}

type getEventsResponse struct {
	Events []LedgerEvent `json:"events"`
}

func NewLedgerService(cfg config.LedgerConfig) *LedgerService {
	return &LedgerService{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
}

// Enabled reports whether a gateway is configured at all.
func (s *LedgerService) Enabled() bool {
	return s.cfg.GatewayURL != ""
}

// RecordEvent anchors one provenance event and returns the transaction
// reference. Callers treat any error as advisory.
func (s *LedgerService) RecordEvent(ctx context.Context, productID, eventType, location, description, identityHash string) (string, error) {
	if !s.Enabled() {
		return "", nil
	}

	body, err := json.Marshal(recordEventRequest{
		ProductID:    productID,
		EventType:    eventType,
		Location:     location,
		Description:  description,
		IdentityHash: identityHash,
		Contract:     s.cfg.ContractAddress,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode ledger event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.GatewayURL+"/events", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ledger gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("ledger gateway returned status %d", resp.StatusCode)
	}

	var out recordEventResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode ledger response: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"product_id": productID,
		"event_type": eventType,
		"tx_ref":     out.TxRef,
	}).Info("Ledger event anchored")

	return out.TxRef, nil
}

// GetEvents fetches the ledger-side history for a product. It never returns
// an error: the ledger view degrades to empty when the gateway is down,
// misbehaving or simply not configured.
func (s *LedgerService) GetEvents(ctx context.Context, productID string) []LedgerEvent {
	if !s.Enabled() {
		return []LedgerEvent{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.GatewayURL+"/events/"+productID, nil)
	if err != nil {
		logrus.WithError(err).Warn("Failed to build ledger query")
		return []LedgerEvent{}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		logrus.WithError(err).WithField("product_id", productID).Warn("Ledger query failed")
		return []LedgerEvent{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logrus.WithField("status", resp.StatusCode).Warn("Ledger query rejected")
		return []LedgerEvent{}
	}

	var out getEventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		logrus.WithError(err).Warn("Failed to decode ledger events")
		return []LedgerEvent{}
	}

	if out.Events == nil {
		return []LedgerEvent{}
	}
	return out.Events
}
