// Package pdf renders invoice documents with maroto.
package pdf

import (
	"context"
	"fmt"
	"strings"

	"github.com/invoicekits/invoicekits/internal/invoice/domain"
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const dateLayout = "January 2, 2006"

var styleColors = map[string]props.Color{
	"clean_slate":          {Red: 55, Green: 65, Blue: 81},
	"executive":            {Red: 30, Green: 58, Blue: 138},
	"bold_modern":          {Red: 220, Green: 38, Blue: 38},
	"classic_professional": {Red: 17, Green: 24, Blue: 39},
	"neon_edge":            {Red: 16, Green: 185, Blue: 129},
}

var watermarkColor = props.Color{Red: 200, Green: 200, Blue: 200}

// Renderer implements domain.Renderer.
type Renderer struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Renderer {
	return &Renderer{log: log.Named("pdf.renderer")}
}

func (r *Renderer) Render(ctx context.Context, doc domain.Document) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("render: nil document")
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()
	m := maroto.New(cfg)

	if header := watermarkRows(doc); len(header) > 0 {
		if err := m.RegisterHeader(header...); err != nil {
			return nil, fmt.Errorf("render watermark: %w", err)
		}
	}

	accent := styleColors[doc.Style()]
	if _, ok := styleColors[doc.Style()]; !ok {
		accent = styleColors[domain.DefaultTemplateStyle]
	}
	symbol := domain.CurrencySymbol(doc.CurrencyCode())
	money := func(v decimal.Decimal) string {
		return symbol + v.StringFixed(domain.MoneyPlaces)
	}

	m.AddRow(12,
		text.NewCol(8, "Invoice", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
			Color: &accent,
		}),
		text.NewCol(4, doc.Number(), props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
			Top:   3,
		}),
	)

	m.AddRow(16,
		col.New(6).Add(
			text.New("Date of issue: "+doc.IssuedOn().Format(dateLayout), props.Text{Size: 9}),
			text.New("Date due: "+doc.DueOn().Format(dateLayout), props.Text{Size: 9, Top: 5}),
		),
		col.New(6),
	)

	party := doc.BillTo()
	billTo := col.New(12).Add(
		text.New("Bill to", props.Text{Style: fontstyle.Bold, Size: 10}),
		text.New(party.Name, props.Text{Size: 9, Top: 5}),
	)
	top := 9.0
	for _, line := range []string{party.Address, party.Email, party.Phone} {
		if strings.TrimSpace(line) == "" {
			continue
		}
		billTo.Add(text.New(line, props.Text{Size: 9, Top: top}))
		top += 4
	}
	m.AddRow(top+8, billTo)

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9, Color: &accent}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right, Color: &accent}),
		text.NewCol(2, "Rate", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right, Color: &accent}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right, Color: &accent}),
	)
	for _, item := range doc.Lines() {
		m.AddRow(8,
			text.NewCol(6, item.Description, props.Text{Size: 9}),
			text.NewCol(2, item.Quantity.String(), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, money(item.Rate), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, money(item.Amount), props.Text{Size: 9, Align: align.Right}),
		)
	}

	amounts := doc.Amounts()
	m.AddRows(totalRow("Subtotal", money(amounts.Subtotal), false))
	m.AddRows(totalRow(fmt.Sprintf("Tax (%s%%)", amounts.TaxRate.String()), money(amounts.Tax), false))
	if amounts.Discount.IsPositive() {
		m.AddRows(totalRow("Discount", "-"+money(amounts.Discount), false))
	}
	if amounts.LateFee.IsPositive() {
		m.AddRows(totalRow("Late fee", money(amounts.LateFee), false))
	}
	m.AddRows(totalRow("Total", money(amounts.Total), true))

	if memo := strings.TrimSpace(doc.Memo()); memo != "" {
		m.AddRow(20,
			col.New(12).Add(
				text.New("Notes", props.Text{Style: fontstyle.Bold, Size: 9, Top: 6}),
				text.New(memo, props.Text{Size: 9, Top: 11}),
			),
		)
	}

	out, err := m.Generate()
	if err != nil {
		r.log.Warn("pdf generation failed", zap.String("invoice_number", doc.Number()), zap.Error(err))
		return nil, fmt.Errorf("render %s: %w", doc.Number(), err)
	}
	return out.GetBytes(), nil
}

func totalRow(label, value string, bold bool) core.Row {
	style := fontstyle.Normal
	if bold {
		style = fontstyle.Bold
	}
	return row.New(7).Add(
		col.New(8),
		text.NewCol(2, label, props.Text{Size: 9, Style: style}),
		text.NewCol(2, value, props.Text{Size: 9, Style: style, Align: align.Right}),
	)
}

func watermarkRows(doc domain.Document) []core.Row {
	var label string
	if marked, ok := doc.(domain.Watermarker); ok {
		label = marked.WatermarkText()
	}
	if label == "" && doc.IsPreview() {
		label = "PREVIEW"
	}
	if label == "" {
		return nil
	}
	return []core.Row{
		row.New(10).Add(
			text.NewCol(12, label, props.Text{
				Size:  14,
				Style: fontstyle.Bold,
				Align: align.Center,
				Color: &watermarkColor,
			}),
		),
	}
}
