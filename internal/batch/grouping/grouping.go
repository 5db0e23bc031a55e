// Package grouping turns validated batch rows into one invoice per client.
package grouping

import (
	"strings"

	"github.com/invoicekits/invoicekits/internal/batch/csvimport"
	companydomain "github.com/invoicekits/invoicekits/internal/company/domain"
	invoicedomain "github.com/invoicekits/invoicekits/internal/invoice/domain"
	"github.com/shopspring/decimal"
)

// Group holds everything needed to create one client's invoice.
type Group struct {
	ClientName    string
	ClientEmail   string
	ClientPhone   string
	ClientAddress string
	TaxRate       decimal.Decimal
	Currency      string
	PaymentTerms  invoicedomain.PaymentTerms
	Notes         string
	TemplateStyle string
	// FirstLine is the file row that introduced this client.
	FirstLine int
	Items     []invoicedomain.LineItemInput
}

// ByClient groups rows on the exact client_name. Client metadata comes from
// the first row for each client, company defaults fill blank fields, and
// groups are returned in order of first appearance.
func ByClient(rows []csvimport.Row, defaults companydomain.Defaults) []Group {
	var groups []Group
	index := make(map[string]int)

	for _, row := range rows {
		idx, ok := index[row.ClientName]
		if !ok {
			groups = append(groups, newGroup(row, defaults))
			idx = len(groups) - 1
			index[row.ClientName] = idx
		}
		groups[idx].Items = append(groups[idx].Items, invoicedomain.LineItemInput{
			Description: row.ItemDescription,
			Quantity:    row.Quantity,
			Rate:        row.Rate,
		})
	}
	return groups
}

func newGroup(row csvimport.Row, defaults companydomain.Defaults) Group {
	g := Group{
		ClientName:    row.ClientName,
		ClientEmail:   row.ClientEmail,
		ClientPhone:   row.ClientPhone,
		ClientAddress: row.ClientAddress,
		TaxRate:       defaults.TaxRate,
		Currency:      strings.ToUpper(row.Currency),
		PaymentTerms:  invoicedomain.PaymentTerms(strings.ToLower(row.PaymentTerms)),
		Notes:         row.Notes,
		TemplateStyle: defaults.TemplateStyle,
		FirstLine:     row.Line,
	}
	if row.TaxRate != nil {
		g.TaxRate = *row.TaxRate
	}
	if g.Currency == "" {
		g.Currency = defaults.Currency
	}
	if g.PaymentTerms == "" {
		g.PaymentTerms = defaults.PaymentTerms
	}
	if g.Notes == "" {
		g.Notes = defaults.Notes
	}
	return g
}

// Request converts the group into an invoice creation request.
func (g Group) Request() invoicedomain.CreateInvoiceRequest {
	taxRate := g.TaxRate
	items := make([]invoicedomain.LineItemInput, len(g.Items))
	copy(items, g.Items)
	return invoicedomain.CreateInvoiceRequest{
		ClientName:    g.ClientName,
		ClientEmail:   g.ClientEmail,
		ClientPhone:   g.ClientPhone,
		ClientAddress: g.ClientAddress,
		PaymentTerms:  g.PaymentTerms,
		Currency:      g.Currency,
		TaxRate:       &taxRate,
		Notes:         g.Notes,
		TemplateStyle: g.TemplateStyle,
		Items:         items,
		Source:        invoicedomain.SourceBatch,
	}
}
