package domain

var allowedTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:   {InvoiceStatusSent, InvoiceStatusCancelled},
	InvoiceStatusSent:    {InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled},
	InvoiceStatusOverdue: {InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusCancelled},
}

// CanTransition reports whether an invoice may move from one status to
// another. Paid and cancelled are terminal.
func CanTransition(from, to InvoiceStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsEditable reports whether line items and discounts may still change.
func (i *Invoice) IsEditable() bool {
	return i.Status == InvoiceStatusDraft || i.Status == InvoiceStatusSent || i.Status == InvoiceStatusOverdue
}

// Valid reports whether s is a known status.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	}
	return false
}
