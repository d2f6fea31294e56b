package core

// Normalize builds one PeriodRow per raw subscriber, in input order.
//
// For each subscriber the first subscription whose month and year equal the
// period is selected; later matches are ignored and counted in Duplicates.
// A subscriber without a matching subscription yields a row with a nil
// Subscription. Normalize has no side effects and never fails.
func Normalize(items []RawSubscriber, p Period) []PeriodRow {
	rows := make([]PeriodRow, 0, len(items))
	for _, item := range items {
		row := PeriodRow{Subscriber: subscriberFromRaw(item)}
		for i := range item.Subscriptions {
			raw := item.Subscriptions[i]
			if raw.Month != p.Month || raw.Year != p.Year {
				continue
			}
			if row.Subscription != nil {
				row.Duplicates++
				continue
			}
			row.Subscription = subscriptionFromRaw(raw)
		}
		rows = append(rows, row)
	}
	return rows
}

func subscriberFromRaw(item RawSubscriber) Subscriber {
	return Subscriber{
		ID:           item.ID,
		UserID:       item.User.ID,
		Status:       item.Status,
		Name:         item.User.Name,
		Email:        item.User.Email,
		Phone:        item.User.Phone,
		SubscribedAt: item.SubscribedAt,
	}
}

func subscriptionFromRaw(raw RawSubscription) *SubscriptionRecord {
	rec := &SubscriptionRecord{
		ID:     raw.ID,
		Month:  raw.Month,
		Year:   raw.Year,
		Amount: raw.Amount,
		Status: NormalizeStatus(raw.Status),
	}
	if raw.PaymentMethod != nil {
		pm := *raw.PaymentMethod
		rec.PaymentMethod = &pm
	}
	if t, ok := ParsePaidAt(raw.PaidAt); ok {
		rec.PaidAt = &t
	}
	return rec
}
