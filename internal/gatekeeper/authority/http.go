package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// defaultCallTimeout bounds a single attempt against an authority.
	defaultCallTimeout = 2 * time.Second

	// retryDelay is the pause before the single retry of an idempotent read.
	retryDelay = 150 * time.Millisecond

	// maxResponseBody caps authority payloads; the largest real response
	// (a subscription check) is well under 1 KiB.
	maxResponseBody = 64 * 1024
)

// httpCore is the shared transport for the authority adapters: one GET per
// call, a per-attempt timeout, and at most one retry when the failure looks
// transient.  Timeouts and malformed payloads are never retried.
type httpCore struct {
	base    string
	client  *http.Client
	timeout time.Duration
}

func newHTTPCore(baseURL string, timeout time.Duration, client *http.Client) httpCore {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	if client == nil {
		client = &http.Client{}
	}
	return httpCore{
		base:    strings.TrimRight(baseURL, "/"),
		client:  client,
		timeout: timeout,
	}
}

// getJSON performs the bounded read-with-retry against path and decodes the
// body into out.  Returned errors wrap exactly one of ErrUnavailable,
// ErrTimeout, or ErrInvalidResponse.
func (c httpCore) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	attempt := func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrInvalidResponse, err))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return classifyTransportError(ctx, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			// Server-side trouble may clear up; allow the retry.
			return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("%w: status %d", ErrInvalidResponse, resp.StatusCode))
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		if err != nil {
			return classifyTransportError(ctx, err)
		}
		if err := json.Unmarshal(body, out); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrInvalidResponse, err))
		}
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(retryDelay), 1),
		ctx,
	)
	return backoff.Retry(attempt, bo)
}

// classifyTransportError maps a transport failure onto the taxonomy.  A
// per-attempt timeout is permanent: retrying it would double the caller's
// latency for the same outcome.
func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return backoff.Permanent(fmt.Errorf("%w: %v", ErrTimeout, err))
	}
	if errors.Is(err, context.Canceled) {
		return backoff.Permanent(fmt.Errorf("%w: %v", ErrTimeout, err))
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return backoff.Permanent(fmt.Errorf("%w: %v", ErrTimeout, err))
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// SubscriptionClient talks to the Subscription Authority.
type SubscriptionClient struct {
	core httpCore
}

func NewSubscriptionClient(baseURL string, timeout time.Duration, client *http.Client) *SubscriptionClient {
	return &SubscriptionClient{core: newHTTPCore(baseURL, timeout, client)}
}

func (c *SubscriptionClient) CheckPlate(ctx context.Context, licensePlate string) (SubscriptionCheckResult, error) {
	q := url.Values{}
	q.Set("license_plate", licensePlate)

	var out SubscriptionCheckResult
	if err := c.core.getJSON(ctx, "/v1/subscriptions/check", q, &out); err != nil {
		return SubscriptionCheckResult{}, fmt.Errorf("subscription check: %w", err)
	}
	return out, nil
}

// PaymentClient talks to the Payment Authority.
type PaymentClient struct {
	core httpCore
}

func NewPaymentClient(baseURL string, timeout time.Duration, client *http.Client) *PaymentClient {
	return &PaymentClient{core: newHTTPCore(baseURL, timeout, client)}
}

func (c *PaymentClient) Status(ctx context.Context, ref PaymentRef) (PaymentStatusResult, error) {
	if ref.Empty() {
		return PaymentStatusResult{}, fmt.Errorf("payment status: %w: empty reference", ErrInvalidResponse)
	}

	q := url.Values{}
	if ref.TicketCode != "" {
		q.Set("ticket_code", ref.TicketCode)
	} else {
		q.Set("client_id", strconv.FormatInt(*ref.ClientID, 10))
	}

	var out PaymentStatusResult
	if err := c.core.getJSON(ctx, "/v1/payments/status", q, &out); err != nil {
		return PaymentStatusResult{}, fmt.Errorf("payment status: %w", err)
	}
	return out, nil
}

// SpaceClient talks to the Space Authority.
type SpaceClient struct {
	core httpCore
}

func NewSpaceClient(baseURL string, timeout time.Duration, client *http.Client) *SpaceClient {
	return &SpaceClient{core: newHTTPCore(baseURL, timeout, client)}
}

func (c *SpaceClient) LotStatus(ctx context.Context, lotID string) (SpaceStatusResult, error) {
	q := url.Values{}
	q.Set("lot_id", lotID)

	var out SpaceStatusResult
	if err := c.core.getJSON(ctx, "/v1/lots/occupancy", q, &out); err != nil {
		return SpaceStatusResult{}, fmt.Errorf("lot status: %w", err)
	}
	return out, nil
}

// EventLogClient forwards audit entries to the Event Log Authority.  One
// POST, no retry: the caller already treats delivery as best-effort and the
// local audit store is the source of truth.
type EventLogClient struct {
	core httpCore
}

func NewEventLogClient(baseURL string, timeout time.Duration, client *http.Client) *EventLogClient {
	return &EventLogClient{core: newHTTPCore(baseURL, timeout, client)}
}

func (c *EventLogClient) Log(ctx context.Context, entry LogEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("event log: %w: %v", ErrInvalidResponse, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.core.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.core.base+"/v1/events", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("event log: %w: %v", ErrInvalidResponse, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.core.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("event log: %w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("event log: %w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("event log: %w: status %d", ErrInvalidResponse, resp.StatusCode)
	}
	return nil
}
