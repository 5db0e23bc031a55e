package csvimport

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// TemplateHeaders is the column order of the downloadable template.
var TemplateHeaders = []string{
	ColClientName,
	ColClientEmail,
	ColClientPhone,
	ColClientAddress,
	ColItemDescription,
	ColQuantity,
	ColRate,
	ColTaxRate,
	ColCurrency,
	ColPaymentTerms,
	ColNotes,
}

// TemplateRows are the sample rows shipped with the template.
var TemplateRows = [][]string{
	{
		"Acme Corporation", "billing@acme.com", "+1 555-0100", "123 Business Ave, New York, NY 10001",
		"Website Development", "40", "150", "8.5", "USD", "net_30", "Thank you for your business!",
	},
	{
		"Acme Corporation", "billing@acme.com", "+1 555-0100", "123 Business Ave, New York, NY 10001",
		"SEO Optimization", "10", "100", "8.5", "USD", "net_30", "Thank you for your business!",
	},
	{
		"Tech Startup Inc", "finance@techstartup.io", "+1 555-0200", "456 Innovation Blvd, San Francisco, CA 94102",
		"Mobile App Design", "60", "175", "0", "USD", "net_15", "",
	},
}

const templateSheet = "Invoices"

// TemplateCSV renders the template as CSV.
func TemplateCSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(TemplateHeaders); err != nil {
		return nil, err
	}
	if err := w.WriteAll(TemplateRows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TemplateXLSX renders the template as a single-sheet workbook.
func TemplateXLSX() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), templateSheet); err != nil {
		return nil, err
	}

	rows := append([][]string{TemplateHeaders}, TemplateRows...)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(templateSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write template row %d: %w", i+1, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	last, err := excelize.CoordinatesToCellName(len(TemplateHeaders), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(templateSheet, "A1", last, bold); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
