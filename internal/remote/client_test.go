package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talahum/internal/core"
)

func newTestClient(t *testing.T, h http.HandlerFunc, tokens TokenSource) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/api", tokens)
	require.NoError(t, err)
	return c
}

func TestListSubscribers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/subscription", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("month"))
		assert.Equal(t, "2024", r.URL.Query().Get("year"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"data":[{"Subscriber_Id":1,"status":"active","user":{"name":"Ali"},
			"subscriptions":[{"id":4,"month":3,"year":2024,"status":"paid","amount":"25.5"}]}]}`)
	}, StaticToken("secret"))

	items, err := c.ListSubscribers(context.Background(), core.Period{Month: 3, Year: 2024})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(1), items[0].ID)
	assert.Equal(t, "Ali", items[0].User.Name)
	require.Len(t, items[0].Subscriptions, 1)
	assert.Equal(t, int64(2550), items[0].Subscriptions[0].Amount.Cents)
}

func TestListSubscribersEnvelopeShapes(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantLen int
		wantErr bool
	}{
		{"missing data", `{}`, 0, false},
		{"null data", `{"data":null}`, 0, false},
		{"empty array", `{"data":[]}`, 0, false},
		{"object data", `{"data":{"id":1}}`, 0, true},
		{"not json", `<html>`, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tc.body)
			}, nil)
			items, err := c.ListSubscribers(context.Background(), core.Period{Month: 1, Year: 2024})
			if tc.wantErr {
				var decErr *core.DecodeError
				require.ErrorAs(t, err, &decErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, items, tc.wantLen)
		})
	}
}

func TestNoAuthorizationWithoutToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"data":[]}`)
	}, StaticToken("  "))
	_, err := c.ListSubscribers(context.Background(), core.Period{Month: 1, Year: 2024})
	require.NoError(t, err)
}

func TestNextReceiptNumber(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"max id", `{"data":[{"id":3},{"id":41},{"id":"7"}]}`, "000041"},
		{"empty list", `{"data":[]}`, "000000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/subscriptions", r.URL.Path)
				_, _ = io.WriteString(w, tc.body)
			}, nil)
			got, err := c.NextReceiptNumber(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCreatePayment(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/subscriptions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "flow-1", r.Header.Get("X-Idempotency-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":{"id":99}}`)
	}, nil)

	err := c.CreatePayment(context.Background(), core.Payment{
		FlowID:       "flow-1",
		SubscriberID: 7,
		Amount:       core.Money{Cents: 5050},
		Month:        3,
		Year:         2024,
		Method:       core.PaymentMethodCash,
		Status:       core.StatusPaid,
		PaidAt:       core.NewDate(2024, 3, 9),
	})
	require.NoError(t, err)
	assert.Equal(t, float64(7), got["subscriber_id"])
	assert.Equal(t, 50.5, got["amount"])
	assert.Equal(t, float64(3), got["month"])
	assert.Equal(t, "CASH", got["payment_method"])
	assert.Equal(t, "paid", got["status"])
	assert.Equal(t, "2024-03-09", got["paid_at"])
	assert.NotContains(t, got, "year")
}

func TestCreatePaymentAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"error":"الاشتراك مسجل مسبقا"}`)
	}, nil)

	err := c.CreatePayment(context.Background(), core.Payment{SubscriberID: 1, Amount: core.Money{Cents: 100}, Month: 1})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	msg, ok := ServerMessage(err)
	assert.True(t, ok)
	assert.Equal(t, "الاشتراك مسجل مسبقا", msg)
}

func TestAPIErrorWithoutMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, nil)
	_, err := c.ListSubscribers(context.Background(), core.Period{Month: 1, Year: 2024})
	require.Error(t, err)
	_, ok := ServerMessage(err)
	assert.False(t, ok)
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com", nil)
	assert.Error(t, err)
}

func TestFileToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")

	tok, err := FileToken{Path: path}.Token(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tok)

	require.NoError(t, os.WriteFile(path, []byte("abc\n"), 0o600))
	tok, err = FileToken{Path: path}.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}
