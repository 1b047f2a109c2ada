package authority_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openlots/gatekeeper/internal/gatekeeper/authority"
)

func TestSubscriptionClient_Decodes(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("license_plate"); got != "XYZ999" {
			t.Errorf("expected license_plate=XYZ999, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"is_access_granted": true,
			"client_id":         7,
			"subscription_id":   42,
		})
	}))
	defer ts.Close()

	c := authority.NewSubscriptionClient(ts.URL, time.Second, nil)
	res, err := c.CheckPlate(context.Background(), "XYZ999")
	if err != nil {
		t.Fatalf("CheckPlate: %v", err)
	}

	if !res.AccessGranted {
		t.Error("expected access granted")
	}
	if res.ClientID == nil || *res.ClientID != 7 {
		t.Errorf("client id = %v", res.ClientID)
	}
	if res.SubscriptionID == nil || *res.SubscriptionID != 42 {
		t.Errorf("subscription id = %v", res.SubscriptionID)
	}
}

func TestSubscriptionClient_RetriesOn5xx(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"is_access_granted": false})
	}))
	defer ts.Close()

	c := authority.NewSubscriptionClient(ts.URL, time.Second, nil)
	if _, err := c.CheckPlate(context.Background(), "ABC123"); err != nil {
		t.Fatalf("expected the retry to succeed, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", calls.Load())
	}
}

func TestSubscriptionClient_RetryBudgetIsOne(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := authority.NewSubscriptionClient(ts.URL, time.Second, nil)
	_, err := c.CheckPlate(context.Background(), "ABC123")
	if !errors.Is(err, authority.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts (1 call + 1 retry), got %d", calls.Load())
	}
}

func TestSubscriptionClient_TimeoutIsTypedAndNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-r.Context().Done()
	}))
	defer ts.Close()

	c := authority.NewSubscriptionClient(ts.URL, 50*time.Millisecond, nil)
	_, err := c.CheckPlate(context.Background(), "QWE111")
	if !errors.Is(err, authority.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("a timeout must not be retried; got %d attempts", calls.Load())
	}
}

func TestSubscriptionClient_MalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer ts.Close()

	c := authority.NewSubscriptionClient(ts.URL, time.Second, nil)
	_, err := c.CheckPlate(context.Background(), "ABC123")
	if !errors.Is(err, authority.ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestSubscriptionClient_ConnectionRefused(t *testing.T) {
	// A closed server yields a connection error, not a timeout.
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	ts.Close()

	c := authority.NewSubscriptionClient(ts.URL, time.Second, nil)
	_, err := c.CheckPlate(context.Background(), "ABC123")
	if !errors.Is(err, authority.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestPaymentClient_TicketAndClientQueries(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("ticket_code") == "T-001":
			_ = json.NewEncoder(w).Encode(map[string]any{"is_paid": false, "remaining_fee": "15.00"})
		case q.Get("client_id") == "77":
			_ = json.NewEncoder(w).Encode(map[string]any{"is_paid": true, "remaining_fee": "0"})
		default:
			t.Errorf("unexpected query %q", r.URL.RawQuery)
			http.Error(w, "bad query", http.StatusBadRequest)
		}
	}))
	defer ts.Close()

	c := authority.NewPaymentClient(ts.URL, time.Second, nil)

	byTicket, err := c.Status(context.Background(), authority.PaymentRef{TicketCode: "T-001"})
	if err != nil {
		t.Fatalf("by ticket: %v", err)
	}
	if byTicket.Paid {
		t.Error("expected unpaid")
	}
	if !byTicket.RemainingFee.Equal(decimal.RequireFromString("15.00")) {
		t.Errorf("expected fee 15.00, got %s", byTicket.RemainingFee)
	}

	clientID := int64(77)
	byClient, err := c.Status(context.Background(), authority.PaymentRef{ClientID: &clientID})
	if err != nil {
		t.Fatalf("by client: %v", err)
	}
	if !byClient.Paid {
		t.Error("expected paid")
	}
}

func TestPaymentClient_EmptyRefRejected(t *testing.T) {
	c := authority.NewPaymentClient("http://localhost:1", time.Second, nil)
	_, err := c.Status(context.Background(), authority.PaymentRef{})
	if !errors.Is(err, authority.ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestSpaceClient_FullDerivation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("lot_id"); got != "lot_main" {
			t.Errorf("expected lot_id=lot_main, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"occupancy_count": 40, "capacity": 50})
	}))
	defer ts.Close()

	c := authority.NewSpaceClient(ts.URL, time.Second, nil)
	res, err := c.LotStatus(context.Background(), "lot_main")
	if err != nil {
		t.Fatalf("LotStatus: %v", err)
	}
	if res.Full() {
		t.Error("40/50 is not full")
	}

	if !(authority.SpaceStatusResult{OccupancyCount: 50, Capacity: 50}).Full() {
		t.Error("50/50 should be full")
	}
	if (authority.SpaceStatusResult{OccupancyCount: 100, Capacity: 0}).Full() {
		t.Error("zero capacity means no limit configured")
	}
}

func TestEventLogClient_PostsEntry(t *testing.T) {
	received := make(chan authority.LogEntry, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var entry authority.LogEntry
		if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
			t.Errorf("decode: %v", err)
		}
		received <- entry
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	c := authority.NewEventLogClient(ts.URL, time.Second, nil)
	err := c.Log(context.Background(), authority.LogEntry{
		EventType: "ENTRY",
		GateID:    "gate-a",
		Decision:  "OPEN",
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}

	entry := <-received
	if entry.EventType != "ENTRY" || entry.GateID != "gate-a" {
		t.Errorf("unexpected entry %+v", entry)
	}
}

func TestEventLogClient_ServerErrorSurfaced(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer ts.Close()

	c := authority.NewEventLogClient(ts.URL, time.Second, nil)
	if err := c.Log(context.Background(), authority.LogEntry{}); err == nil {
		t.Fatal("expected an error for a rejected entry")
	}
}
