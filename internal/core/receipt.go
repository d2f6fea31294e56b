package core

import "fmt"

// FallbackReceiptNumber is used when the sequence cannot be read.
const FallbackReceiptNumber = "000001"

// FormatReceiptNumber zero-pads n to six digits.
//
// Numbers are derived from the highest known subscription id, so two
// payments captured at the same time can receive the same number.
func FormatReceiptNumber(n int64) string {
	if n < 0 {
		n = 0
	}
	return fmt.Sprintf("%06d", n)
}

// ReceiptFilename is the download name of a payment receipt.
func ReceiptFilename(receiptNumber string) string {
	return "سند_دفع_" + receiptNumber + ".pdf"
}

// PeriodReportFilename is the download name of a period summary.
func PeriodReportFilename(p Period) string {
	return fmt.Sprintf("اشتراكات-%s-%d.pdf", p.MonthName(), p.Year)
}
