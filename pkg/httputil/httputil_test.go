package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/medflow/payroll-backend/pkg/actor"
	"github.com/medflow/payroll-backend/pkg/auth"
	"github.com/medflow/payroll-backend/pkg/errors"
	"github.com/medflow/payroll-backend/pkg/logger"
	"github.com/medflow/payroll-backend/pkg/messaging"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	claims *auth.Claims
	err    error
}

func (s stubValidator) ValidateAccessToken(string) (*auth.Claims, error) {
	return s.claims, s.err
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return resp
}

func TestError(t *testing.T) {
	t.Run("renders app errors with their status", func(t *testing.T) {
		rr := httptest.NewRecorder()
		Error(rr, errors.DuplicatePeriod("emp-7", 3, 2025))

		assert.Equal(t, http.StatusConflict, rr.Code)
		resp := decode(t, rr)
		assert.False(t, resp.Success)
		assert.Equal(t, "DUPLICATE_PERIOD", resp.Error.Code)
	})

	t.Run("hides unknown errors behind 500", func(t *testing.T) {
		rr := httptest.NewRecorder()
		Error(rr, assert.AnError)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "INTERNAL_ERROR", decode(t, rr).Error.Code)
	})
}

func TestNewMeta(t *testing.T) {
	m := NewMeta(2, 20, 41)
	assert.Equal(t, 3, m.TotalPages)
	assert.Equal(t, int64(41), m.Total)

	assert.Equal(t, 0, NewMeta(1, 20, 0).TotalPages)
}

func TestPagination(t *testing.T) {
	tests := []struct {
		query       string
		wantPage    int
		wantPerPage int
	}{
		{"", 1, 20},
		{"page=3&per_page=50", 3, 50},
		{"page=0&per_page=1000", 1, 100},
		{"page=abc&per_page=-4", 1, 20},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			page, perPage := Pagination(r)
			assert.Equal(t, tt.wantPage, page)
			assert.Equal(t, tt.wantPerPage, perPage)
		})
	}
}

func TestValidate(t *testing.T) {
	type request struct {
		Amount decimal.Decimal `json:"amount" validate:"gt=0"`
		Months *int            `json:"months" validate:"omitempty,min=1,max=12"`
		Reason string          `json:"reason" validate:"required"`
	}

	months := 13
	err := Validate(request{Amount: decimal.Zero, Months: &months})
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	assert.Contains(t, appErr.Details, "Amount")
	assert.Contains(t, appErr.Details, "Months")
	assert.Contains(t, appErr.Details, "Reason")

	months = 6
	assert.NoError(t, Validate(request{Amount: decimal.NewFromInt(1200), Months: &months, Reason: "rent"}))
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	var dst struct {
		Notes string `json:"notes"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"notes":"x","status":"PUBLISHED"}`))
	err := DecodeJSON(r, &dst)
	assert.True(t, errors.Is(err, errors.ErrBadRequest))
}

func TestAuthenticate(t *testing.T) {
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := actor.FromContext(r.Context())
		JSON(w, http.StatusOK, a)
	})

	t.Run("bearer token", func(t *testing.T) {
		v := stubValidator{claims: &auth.Claims{UserID: "emp-1", Role: "employee"}}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer abc")
		rr := httptest.NewRecorder()

		Authenticate(v, false)(echo).ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"id":"emp-1"`)
	})

	t.Run("invalid token", func(t *testing.T) {
		v := stubValidator{err: errors.Unauthorized("invalid token")}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer abc")
		rr := httptest.NewRecorder()

		Authenticate(v, true)(echo).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("gateway headers only when trusted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-User-ID", "emp-2")

		rr := httptest.NewRecorder()
		Authenticate(stubValidator{}, true)(echo).ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"id":"emp-2"`)

		rr = httptest.NewRecorder()
		Authenticate(stubValidator{}, false)(echo).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
		rr := httptest.NewRecorder()

		Authenticate(stubValidator{}, true)(echo).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestRequestID_SetsCorrelationID(t *testing.T) {
	var correlation string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlation = messaging.CorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "req-1", correlation)
	assert.Equal(t, "req-1", rr.Header().Get("X-Request-ID"))
}

func TestRecoverer(t *testing.T) {
	h := Recoverer(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
