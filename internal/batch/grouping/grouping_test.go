package grouping

import (
	"testing"

	"github.com/invoicekits/invoicekits/internal/batch/csvimport"
	companydomain "github.com/invoicekits/invoicekits/internal/company/domain"
	invoicedomain "github.com/invoicekits/invoicekits/internal/invoice/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaults = companydomain.Defaults{
	Currency:      "EUR",
	TaxRate:       decimal.RequireFromString("19"),
	PaymentTerms:  invoicedomain.PaymentTermsNet15,
	Notes:         "Danke!",
	TemplateStyle: "executive",
}

func rows(t *testing.T, body string) []csvimport.Row {
	t.Helper()
	res, err := csvimport.ValidateBytes(csvimport.FormatCSV, []byte(body), csvimport.PolicyRejectFile)
	require.NoError(t, err)
	return res.Rows
}

func TestByClient_MergesRowsInOrder(t *testing.T) {
	groups := ByClient(rows(t,
		"client_name,item_description,quantity,rate,client_email\n"+
			"Acme Corp,Design,2,50,ap@acme.example\n"+
			"Beta LLC,Hosting,1,20,\n"+
			"Acme Corp,Build,3,70,other@acme.example\n",
	), defaults)

	require.Len(t, groups, 2)
	acme := groups[0]
	assert.Equal(t, "Acme Corp", acme.ClientName)
	assert.Equal(t, "ap@acme.example", acme.ClientEmail, "metadata comes from the first row")
	require.Len(t, acme.Items, 2)
	assert.Equal(t, "Design", acme.Items[0].Description)
	assert.Equal(t, "Build", acme.Items[1].Description)
	assert.Equal(t, 2, acme.FirstLine)

	assert.Equal(t, "Beta LLC", groups[1].ClientName)
	assert.Equal(t, 3, groups[1].FirstLine)
}

func TestByClient_CaseSensitiveKey(t *testing.T) {
	groups := ByClient(rows(t,
		"client_name,item_description,quantity,rate\n"+
			"Acme Corp,Design,1,1\n"+
			"ACME CORP,Design,1,1\n",
	), defaults)
	assert.Len(t, groups, 2)
}

func TestByClient_CompanyDefaultsFillBlanks(t *testing.T) {
	groups := ByClient(rows(t,
		"client_name,item_description,quantity,rate,tax_rate,currency,payment_terms,notes\n"+
			"Acme Corp,Design,1,100,,,,\n"+
			"Beta LLC,Design,1,100,0,usd,NET_60,Thanks\n",
	), defaults)
	require.Len(t, groups, 2)

	acme := groups[0]
	assert.Equal(t, "19", acme.TaxRate.String())
	assert.Equal(t, "EUR", acme.Currency)
	assert.Equal(t, invoicedomain.PaymentTermsNet15, acme.PaymentTerms)
	assert.Equal(t, "Danke!", acme.Notes)
	assert.Equal(t, "executive", acme.TemplateStyle)

	beta := groups[1]
	assert.True(t, beta.TaxRate.IsZero(), "an explicit zero tax rate is kept")
	assert.Equal(t, "USD", beta.Currency)
	assert.Equal(t, invoicedomain.PaymentTermsNet60, beta.PaymentTerms)
	assert.Equal(t, "Thanks", beta.Notes)
}

func TestGroupRequest(t *testing.T) {
	groups := ByClient(rows(t, "client_name,item_description,quantity,rate\nAcme,Design,2,50\n"), defaults)
	req := groups[0].Request()

	assert.Equal(t, "Acme", req.ClientName)
	require.NotNil(t, req.TaxRate)
	assert.Equal(t, "19", req.TaxRate.String())
	assert.Equal(t, "batch", req.Source)
	require.Len(t, req.Items, 1)

	req.Items[0].Description = "changed"
	assert.Equal(t, "Design", groups[0].Items[0].Description)
}
