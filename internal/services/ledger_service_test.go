// internal/services/ledger_service_test.go
package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protrace/backend/internal/config"
)

func TestLedgerServiceDisabledWithoutGateway(t *testing.T) {
	svc := NewLedgerService(config.LedgerConfig{})

	assert.False(t, svc.Enabled())

	txRef, err := svc.RecordEvent(context.Background(), "p1", "CREATED", "Plant 1", "desc", "hash")
	require.NoError(t, err)
	assert.Empty(t, txRef)

	assert.Empty(t, svc.GetEvents(context.Background(), "p1"))
}

func TestLedgerServiceRecordEvent(t *testing.T) {
	var received recordEventRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/events", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		json.NewEncoder(w).Encode(recordEventResponse{TxRef: "0xabc123"})
	}))
	defer server.Close()

	svc := NewLedgerService(config.LedgerConfig{
		GatewayURL:      server.URL,
		ContractAddress: "0xcontract",
		Timeout:         5,
	})

	txRef, err := svc.RecordEvent(context.Background(), "p1", "IN_TRANSIT", "Hub 7", "desc", "hash")
	require.NoError(t, err)
	assert.Equal(t, "0xabc123", txRef)
	assert.Equal(t, "p1", received.ProductID)
	assert.Equal(t, "IN_TRANSIT", received.EventType)
	assert.Equal(t, "0xcontract", received.Contract)
}

func TestLedgerServiceRecordEventGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	svc := NewLedgerService(config.LedgerConfig{GatewayURL: server.URL, Timeout: 5})

	_, err := svc.RecordEvent(context.Background(), "p1", "CREATED", "Plant 1", "desc", "hash")
	assert.Error(t, err)
}

func TestLedgerServiceGetEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/events/p1", r.URL.Path)
		json.NewEncoder(w).Encode(getEventsResponse{Events: []LedgerEvent{
			{EventType: "CREATED", Location: "Plant 1", TxRef: "0x1", Timestamp: time.Now()},
			{EventType: "IN_TRANSIT", Location: "Hub 7", TxRef: "0x2", Timestamp: time.Now()},
		}})
	}))
	defer server.Close()

	svc := NewLedgerService(config.LedgerConfig{GatewayURL: server.URL, Timeout: 5})

	events := svc.GetEvents(context.Background(), "p1")
	require.Len(t, events, 2)
	assert.Equal(t, "0x1", events[0].TxRef)
}

// Any gateway failure degrades to an empty ledger view, never an error.
func TestLedgerServiceGetEventsDegradesToEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := NewLedgerService(config.LedgerConfig{GatewayURL: server.URL, Timeout: 5})
	assert.Empty(t, svc.GetEvents(context.Background(), "p1"))

	// Unreachable gateway behaves the same.
	server.Close()
	assert.Empty(t, svc.GetEvents(context.Background(), "p1"))
}
