package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCalculateLateFee(t *testing.T) {
	capAt := d("20")
	cases := []struct {
		name   string
		total  string
		policy LateFeePolicy
		want   string
	}{
		{
			name:   "flat",
			total:  "500",
			policy: LateFeePolicy{Type: LateFeeTypeFlat, Amount: d("25")},
			want:   "25.00",
		},
		{
			name:   "percentage",
			total:  "1234.56",
			policy: LateFeePolicy{Type: LateFeeTypePercentage, Amount: d("1.5")},
			want:   "18.52",
		},
		{
			name:   "percentage capped",
			total:  "5000",
			policy: LateFeePolicy{Type: LateFeeTypePercentage, Amount: d("2"), MaxAmount: &capAt},
			want:   "20.00",
		},
		{
			name:   "flat capped",
			total:  "10",
			policy: LateFeePolicy{Type: LateFeeTypeFlat, Amount: d("35"), MaxAmount: &capAt},
			want:   "20.00",
		},
		{
			name:   "unknown type",
			total:  "100",
			policy: LateFeePolicy{Type: LateFeeType("weekly"), Amount: d("5")},
			want:   "0.00",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CalculateLateFee(d(tc.total), tc.policy)
			assert.Equal(t, tc.want, got.StringFixed(2))
		})
	}
}

func TestPreviewInvoice_MatchesPersistedComputation(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	in := PreviewInput{
		Client:       Party{Name: "Acme Corporation"},
		InvoiceDate:  issued,
		PaymentTerms: PaymentTermsNet15,
		TaxRate:      d("8.5"),
		Items: []LineItemInput{
			{Description: "Website Development", Quantity: d("40"), Rate: d("150")},
			{Description: "SEO Optimization", Quantity: d("10"), Rate: d("100")},
		},
	}

	var doc Document = NewPreviewInvoice(in)
	assert.True(t, doc.IsPreview())
	assert.Equal(t, "PREVIEW", doc.Number())
	assert.Equal(t, "USD", doc.CurrencyCode())
	assert.Equal(t, DefaultTemplateStyle, doc.Style())
	assert.Equal(t, issued.AddDate(0, 0, 15), doc.DueOn())

	amounts := doc.Amounts()
	assert.Equal(t, "7000.00", amounts.Subtotal.StringFixed(2))
	assert.Equal(t, "595.00", amounts.Tax.StringFixed(2))
	assert.Equal(t, "7595.00", amounts.Total.StringFixed(2))

	lines := doc.Lines()
	lines[0].Description = "mutated"
	assert.Equal(t, "Website Development", doc.Lines()[0].Description)
}

func TestInvoiceImplementsDocument(t *testing.T) {
	inv := &Invoice{
		InvoiceNumber: "INV-00001",
		Currency:      "EUR",
		ClientName:    "Tech Startup Inc",
		LineItems: []LineItem{
			{Description: "Mobile App Design", Quantity: d("60"), Rate: d("175"), Amount: d("10500")},
		},
		Total: d("10500"),
	}

	var doc Document = inv
	assert.False(t, doc.IsPreview())
	assert.Equal(t, "INV-00001", doc.Number())
	assert.Equal(t, "Tech Startup Inc", doc.BillTo().Name)
	assert.Len(t, doc.Lines(), 1)
	assert.True(t, decimal.NewFromInt(10500).Equal(doc.Amounts().Total))
	assert.Equal(t, "€", CurrencySymbol(doc.CurrencyCode()))
}
