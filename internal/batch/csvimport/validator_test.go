package csvimport

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const header = "client_name,item_description,quantity,rate,tax_rate\n"

func validate(t *testing.T, body string, policy Policy) (Result, error) {
	t.Helper()
	return ValidateBytes(FormatCSV, []byte(body), policy)
}

func TestValidate_TenRowsOneNegativeRate(t *testing.T) {
	var b strings.Builder
	b.WriteString(header)
	for i := 1; i <= 9; i++ {
		fmt.Fprintf(&b, "Client %d,Consulting,1,100,10\n", i)
	}
	b.WriteString("Client 10,Consulting,1,-5,10\n")

	_, err := validate(t, b.String(), PolicyRejectFile)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"Row 11: rate cannot be negative"}, verr.Errors)
	assert.Equal(t, "Validation errors:\nRow 11: rate cannot be negative", err.Error())
}

func TestValidate_SkipRowsKeepsValidRows(t *testing.T) {
	body := header +
		"Acme Corp,Design,2,50,\n" +
		",Design,1,10,\n" +
		"Acme Corp,Build,1,abc,\n" +
		"Beta LLC,Hosting,3,20,5\n"

	res, err := validate(t, body, PolicySkipRows)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, 2, res.Rows[0].Line)
	assert.Equal(t, 5, res.Rows[1].Line)
	assert.Equal(t, []string{
		"Row 3: client_name is required",
		"Row 4: invalid rate value",
	}, res.Skipped)
	assert.Nil(t, res.Rows[0].TaxRate)
	require.NotNil(t, res.Rows[1].TaxRate)
	assert.Equal(t, "5", res.Rows[1].TaxRate.String())

	_, err = validate(t, body, PolicyRejectFile)
	assert.Error(t, err)
}

func TestValidate_AllRowMessages(t *testing.T) {
	body := header +
		" , ,0,-1,101\n" +
		"A,B,x,y,z\n"

	_, err := validate(t, body, PolicyRejectFile)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{
		"Row 2: client_name is required",
		"Row 2: item_description is required",
		"Row 2: quantity must be positive",
		"Row 2: rate cannot be negative",
		"Row 2: tax_rate must be between 0 and 100",
		"Row 3: invalid quantity value",
		"Row 3: invalid rate value",
		"Row 3: invalid tax_rate value",
	}, verr.Errors)
}

func TestValidate_FileLevelErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{name: "empty", body: "", want: "CSV file is empty"},
		{name: "header only", body: header, want: "CSV file is empty"},
		{name: "missing columns", body: "client_name,rate\nAcme,1\n", want: "Missing required columns: item_description, quantity"},
		{name: "not utf8", body: "client_name\n\xff\xfe\n", want: "CSV file must be UTF-8 encoded"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := validate(t, tc.body, PolicySkipRows)
			require.Error(t, err)
			assert.Equal(t, tc.want, err.Error())
		})
	}
}

func TestValidate_BOMAndWhitespace(t *testing.T) {
	body := "\xEF\xBB\xBFclient_name, item_description ,quantity,rate\n  Acme Corp ,  Design , 2.5 , 80 \n\n"

	res, err := validate(t, body, PolicyRejectFile)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	row := res.Rows[0]
	assert.Equal(t, "Acme Corp", row.ClientName)
	assert.Equal(t, "Design", row.ItemDescription)
	assert.Equal(t, "2.5", row.Quantity.String())
	assert.Equal(t, "80", row.Rate.String())
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyRejectFile, p)

	p, err = ParsePolicy(" SKIP_ROWS ")
	require.NoError(t, err)
	assert.Equal(t, PolicySkipRows, p)

	_, err = ParsePolicy("best_effort")
	assert.Error(t, err)
}

func TestTemplates(t *testing.T) {
	csvData, err := TemplateCSV()
	require.NoError(t, err)
	res, err := ValidateBytes(FormatCSV, csvData, PolicyRejectFile)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 3)
	assert.True(t, strings.HasPrefix(string(csvData), strings.Join(TemplateHeaders, ",")+"\n"))

	xlsxData, err := TemplateXLSX()
	require.NoError(t, err)
	res, err = ValidateBytes(FormatXLSX, xlsxData, PolicyRejectFile)
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, "Tech Startup Inc", res.Rows[2].ClientName)
	assert.Equal(t, "net_15", res.Rows[2].PaymentTerms)
}

func TestFormatFromFilename(t *testing.T) {
	f, ok := FormatFromFilename("March.CSV")
	assert.True(t, ok)
	assert.Equal(t, FormatCSV, f)

	f, ok = FormatFromFilename("march.xlsx")
	assert.True(t, ok)
	assert.Equal(t, FormatXLSX, f)

	_, ok = FormatFromFilename("march.xls")
	assert.False(t, ok)
}
