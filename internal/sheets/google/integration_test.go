//go:build integration

package google

import (
	"context"
	"os"
	"testing"

	"talahum/internal/core"
	"talahum/internal/sheets"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_AppendReceipt(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	spreadsheetID := os.Getenv("GOOGLE_SPREADSHEET_ID")
	if spreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}
	cfg := Config{
		SpreadsheetID:      spreadsheetID,
		SheetName:          os.Getenv("GOOGLE_SHEET_NAME"),
		ServiceAccountFile: os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"),
		ServiceAccountJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
	}
	if cfg.ServiceAccountFile == "" && cfg.ServiceAccountJSON == "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		t.Skip("service account credentials not configured, skipping integration test")
	}

	ctx := context.Background()
	client, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ref, err := client.AppendReceipt(ctx, sheets.LedgerEntry{
		ReceiptNumber: "999999",
		PaidAt:        core.NewDate(2024, 1, 1),
		Name:          "integration test",
		MemberType:    core.MemberNonMember,
		Amount:        core.Money{Cents: 1},
		Period:        core.Period{Month: 1, Year: 2024},
		Description:   "integration test row, safe to delete",
	})
	if err != nil {
		t.Fatalf("AppendReceipt() error = %v", err)
	}
	t.Logf("Appended test row at %s", ref)
}
