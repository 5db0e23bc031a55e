package csvimport

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	ColClientName      = "client_name"
	ColClientEmail     = "client_email"
	ColClientPhone     = "client_phone"
	ColClientAddress   = "client_address"
	ColItemDescription = "item_description"
	ColQuantity        = "quantity"
	ColRate            = "rate"
	ColTaxRate         = "tax_rate"
	ColCurrency        = "currency"
	ColPaymentTerms    = "payment_terms"
	ColNotes           = "notes"
)

// RequiredColumns must all be present in the header.
var RequiredColumns = []string{ColClientName, ColItemDescription, ColQuantity, ColRate}

// OptionalColumns are read when present.
var OptionalColumns = []string{
	ColClientEmail,
	ColClientPhone,
	ColClientAddress,
	ColTaxRate,
	ColCurrency,
	ColPaymentTerms,
	ColNotes,
}

const msgEmptyFile = "CSV file is empty"

var hundred = decimal.NewFromInt(100)

// Policy decides what happens to a file that has invalid rows.
type Policy string

const (
	// PolicyRejectFile rejects the whole file when any row is invalid.
	PolicyRejectFile Policy = "reject_file"
	// PolicySkipRows keeps the valid rows and reports the invalid ones.
	PolicySkipRows Policy = "skip_rows"
)

// ParsePolicy maps a configured name to a Policy. Empty means reject_file.
func ParsePolicy(v string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(v))) {
	case "", PolicyRejectFile:
		return PolicyRejectFile, nil
	case PolicySkipRows:
		return PolicySkipRows, nil
	default:
		return "", fmt.Errorf("unknown validation policy %q", v)
	}
}

// Row is one validated line item. Optional text fields are empty when the
// column is missing or blank; TaxRate is nil in that case.
type Row struct {
	Line            int
	ClientName      string
	ClientEmail     string
	ClientPhone     string
	ClientAddress   string
	ItemDescription string
	Quantity        decimal.Decimal
	Rate            decimal.Decimal
	TaxRate         *decimal.Decimal
	Currency        string
	PaymentTerms    string
	Notes           string
}

// ValidationError rejects a file. File-level problems carry only Message;
// row problems carry every row error in file order.
type ValidationError struct {
	Message string
	Errors  []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) > 0 {
		return "Validation errors:\n" + strings.Join(e.Errors, "\n")
	}
	return e.Message
}

func fileError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

// Result is the outcome of a successful validation. Skipped is only
// populated under PolicySkipRows.
type Result struct {
	Rows    []Row
	Skipped []string
}

// Validate checks the header then every row. Row numbers count the header
// as row 1.
func Validate(table Table, policy Policy) (Result, error) {
	if len(table.Rows) == 0 {
		return Result{}, fileError(msgEmptyFile)
	}

	index := headerIndex(table.Header)
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return Result{}, fileError("Missing required columns: " + strings.Join(missing, ", "))
	}

	var (
		result Result
		errs   []string
	)
	for i, record := range table.Rows {
		line := i + 2
		row, rowErrs := validateRow(record, index, line)
		if len(rowErrs) > 0 {
			errs = append(errs, rowErrs...)
			continue
		}
		result.Rows = append(result.Rows, row)
	}

	if len(errs) == 0 {
		return result, nil
	}
	if policy == PolicySkipRows && len(result.Rows) > 0 {
		result.Skipped = errs
		return result, nil
	}
	return Result{}, &ValidationError{Errors: errs}
}

// ValidateBytes reads and validates data in one step.
func ValidateBytes(format Format, data []byte, policy Policy) (Result, error) {
	table, err := Read(format, data)
	if err != nil {
		return Result{}, err
	}
	return Validate(table, policy)
}

func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	return index
}

func validateRow(record []string, index map[string]int, line int) (Row, []string) {
	get := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var errs []string
	row := Row{
		Line:            line,
		ClientName:      get(ColClientName),
		ClientEmail:     get(ColClientEmail),
		ClientPhone:     get(ColClientPhone),
		ClientAddress:   get(ColClientAddress),
		ItemDescription: get(ColItemDescription),
		Currency:        get(ColCurrency),
		PaymentTerms:    get(ColPaymentTerms),
		Notes:           get(ColNotes),
	}

	if row.ClientName == "" {
		errs = append(errs, fmt.Sprintf("Row %d: client_name is required", line))
	}
	if row.ItemDescription == "" {
		errs = append(errs, fmt.Sprintf("Row %d: item_description is required", line))
	}

	if quantity, err := decimal.NewFromString(get(ColQuantity)); err != nil {
		errs = append(errs, fmt.Sprintf("Row %d: invalid quantity value", line))
	} else if !quantity.IsPositive() {
		errs = append(errs, fmt.Sprintf("Row %d: quantity must be positive", line))
	} else {
		row.Quantity = quantity
	}

	if rate, err := decimal.NewFromString(get(ColRate)); err != nil {
		errs = append(errs, fmt.Sprintf("Row %d: invalid rate value", line))
	} else if rate.IsNegative() {
		errs = append(errs, fmt.Sprintf("Row %d: rate cannot be negative", line))
	} else {
		row.Rate = rate
	}

	if raw := get(ColTaxRate); raw != "" {
		if taxRate, err := decimal.NewFromString(raw); err != nil {
			errs = append(errs, fmt.Sprintf("Row %d: invalid tax_rate value", line))
		} else if taxRate.IsNegative() || taxRate.GreaterThan(hundred) {
			errs = append(errs, fmt.Sprintf("Row %d: tax_rate must be between 0 and 100", line))
		} else {
			row.TaxRate = &taxRate
		}
	}

	return row, errs
}
