package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"talahum/internal/core"
)

func TestParsePeriodParams(t *testing.T) {
	now := time.Date(2024, time.March, 14, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		values  url.Values
		want    core.Period
		wantErr bool
	}{
		{
			name:   "both provided",
			values: url.Values{"year": {"2023"}, "month": {"11"}},
			want:   core.Period{Year: 2023, Month: 11},
		},
		{
			name:   "empty defaults to current period",
			values: url.Values{},
			want:   core.Period{Year: 2024, Month: 3},
		},
		{
			name:   "only month keeps current year",
			values: url.Values{"month": {"7"}},
			want:   core.Period{Year: 2024, Month: 7},
		},
		{
			name:   "whitespace is trimmed",
			values: url.Values{"year": {" 2022 "}, "month": {" 1"}},
			want:   core.Period{Year: 2022, Month: 1},
		},
		{
			name:    "month out of range",
			values:  url.Values{"year": {"2024"}, "month": {"13"}},
			wantErr: true,
		},
		{
			name:    "month not a number",
			values:  url.Values{"month": {"march"}},
			wantErr: true,
		},
		{
			name:    "year not a number",
			values:  url.Values{"year": {"20x4"}},
			wantErr: true,
		},
		{
			name:    "year out of range",
			values:  url.Values{"year": {"12"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeriodParams(tt.values, now)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParsePeriodParams() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePeriodParams() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParsePeriodParams() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequestBodyParser_JSON(t *testing.T) {
	body := `{"subscriber_id": 3, "amount": "50", "description": "اشتراك مارس"}`
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if !parser.IsJSON() {
		t.Error("Expected IsJSON() to be true")
	}
	if id := parser.Get("subscriber_id"); id != "3" {
		t.Errorf("Get('subscriber_id') = %q, want '3'", id)
	}
	if desc := parser.Get("description"); desc != "اشتراك مارس" {
		t.Errorf("Get('description') = %q", desc)
	}
}

func TestRequestBodyParser_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"amount":`))
	req.Header.Set("Content-Type", "application/json")

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err == nil {
		t.Fatal("Parse() expected error for truncated JSON")
	}
	if parser.IsJSON() {
		t.Error("IsJSON() should be false after a failed parse")
	}
}

func TestRequestBodyParser_FormData(t *testing.T) {
	body := "amount=25.5&date=2024-03-02&description=++cash+"
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if parser.IsJSON() {
		t.Error("Expected IsJSON() to be false for form data")
	}

	form := parser.PaymentForm()
	if form.Amount != "25.5" {
		t.Errorf("Amount = %q, want '25.5'", form.Amount)
	}
	if form.Date != "2024-03-02" {
		t.Errorf("Date = %q, want '2024-03-02'", form.Date)
	}
	if form.Description != "cash" {
		t.Errorf("Description = %q, want 'cash'", form.Description)
	}
}

func TestRequestBodyParser_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(""))

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if val := parser.Get("nonexistent"); val != "" {
		t.Errorf("Get('nonexistent') = %q, want empty string", val)
	}
	if form := parser.PaymentForm(); form.Amount != "" || form.Date != "" {
		t.Errorf("PaymentForm() = %+v, want zero form", form)
	}
}

func TestRequireMethod(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		allowed []string
		wantErr bool
	}{
		{"POST allowed", http.MethodPost, []string{http.MethodPost}, false},
		{"HEAD allowed with multiple", http.MethodHead, []string{http.MethodGet, http.MethodHead}, false},
		{"GET not allowed", http.MethodGet, []string{http.MethodPost}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/test", nil)
			result := RequireMethod(req, tt.allowed...)

			if tt.wantErr && result == nil {
				t.Error("Expected error response but got nil")
			}
			if !tt.wantErr && result != nil {
				t.Error("Expected nil but got error response")
			}
		})
	}
}

func TestRequireMethod_AllowHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodDelete, "/test", nil)
	w := httptest.NewRecorder()

	RequireMethod(req, http.MethodGet, http.MethodPost).Write(w)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
	if got := w.Header().Get("Allow"); got != "GET, POST" {
		t.Errorf("Allow = %q, want 'GET, POST'", got)
	}
}

func TestParseFormOrFail(t *testing.T) {
	body := "subscriber_id=2&month=1&year=2024"
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if result := ParseFormOrFail(req); result != nil {
		t.Error("Expected nil for valid form, got error response")
	}
	if req.Form.Get("subscriber_id") != "2" {
		t.Error("Form was not parsed correctly")
	}
}

func TestParseFormOrFail_Malformed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("month=%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	result := ParseFormOrFail(req)
	if result == nil {
		t.Fatal("Expected error response for malformed form")
	}

	w := httptest.NewRecorder()
	result.Write(w)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
