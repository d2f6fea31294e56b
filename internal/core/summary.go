package core

// Summary holds the counters shown above the subscriptions table.
type Summary struct {
	Total   int
	Paid    int
	Pending int
	Amount  Money
}

// Summarize derives the counters from rows. Rows without a subscription
// count toward Total only.
func Summarize(rows []PeriodRow) Summary {
	var s Summary
	for _, r := range rows {
		s.Total++
		if r.Subscription == nil {
			continue
		}
		switch {
		case r.Subscription.Status.IsPaid():
			s.Paid++
		case r.Subscription.Status.IsPending():
			s.Pending++
		}
		s.Amount = s.Amount.Add(r.Subscription.Amount)
	}
	return s
}
