// Package client talks to the services payroll depends on.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/medflow/payroll-backend/internal/payroll/domain"
	"github.com/medflow/payroll-backend/pkg/errors"
	"github.com/medflow/payroll-backend/pkg/httputil"
	"github.com/medflow/payroll-backend/pkg/logger"
)

// StaffClient reads employee pay configuration from staff-service
type StaffClient struct {
	baseURL    string
	httpClient *http.Client
	maxRetries uint64
	logger     *logger.Logger
}

// NewStaffClient creates a new staff service client
func NewStaffClient(baseURL string, timeout time.Duration, log *logger.Logger) *StaffClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &StaffClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: 2,
		logger:     log,
	}
}

// GetFinancialSnapshot fetches the employee's current salary, allowances and
// deductions. It returns nil, nil when staff-service has no financial record
// for the employee.
func (c *StaffClient) GetFinancialSnapshot(ctx context.Context, employeeID string) (*domain.FinancialSnapshot, error) {
	endpoint := c.baseURL + "/api/v1/staff/employees/" + url.PathEscape(employeeID) + "/payroll-snapshot"

	var snapshot *domain.FinancialSnapshot
	op := func() error {
		var err error
		snapshot, err = c.fetchSnapshot(ctx, endpoint)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = time.Second

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx))
	if err != nil {
		c.logger.Error().Err(err).Str("employee_id", employeeID).Msg("failed to fetch payroll snapshot")
		return nil, errors.Wrap(err, "STAFF_SERVICE_UNAVAILABLE", "could not load the employee's financial information", http.StatusBadGateway)
	}

	if snapshot != nil && snapshot.EmployeeID == "" {
		snapshot.EmployeeID = employeeID
	}
	return snapshot, nil
}

// fetchSnapshot performs one request. Client errors are permanent; network
// failures and 5xx responses may be retried.
func (c *StaffClient) fetchSnapshot(ctx context.Context, endpoint string) (*domain.FinancialSnapshot, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json")
	if reqID := httputil.GetRequestID(ctx); reqID != "" {
		httpReq.Header.Set("X-Request-ID", reqID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call staff service: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("staff service returned status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("payroll snapshot request failed with status %d", resp.StatusCode))
	}

	// staff-service wraps responses in {"success": true, "data": ...}
	var response struct {
		Success bool                      `json:"success"`
		Data    *domain.FinancialSnapshot `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}

	return response.Data, nil
}
