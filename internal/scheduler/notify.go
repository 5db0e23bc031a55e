package scheduler

import (
	"bytes"
	"fmt"
	"text/template"

	companydomain "github.com/invoicekits/invoicekits/internal/company/domain"
	invoicedomain "github.com/invoicekits/invoicekits/internal/invoice/domain"
	"github.com/invoicekits/invoicekits/internal/providers/email"
	"github.com/invoicekits/invoicekits/internal/scheduler/guard"
)

var lateFeeTmpl = template.Must(template.New("late_fee").Parse(`Hello {{.Client}},

A late fee of {{.Fee}} has been added to invoice {{.Number}}, which is {{.DaysOverdue}} day(s) past due.
The new balance is {{.Total}}.

{{.Company}}
`))

var reminderTmpl = template.Must(template.New("reminder").Parse(`Hello {{.Client}},

{{.Lead}}
Invoice {{.Number}} for {{.Total}} {{.When}}.

{{.Company}}
`))

type noticeData struct {
	Client      string
	Company     string
	Number      string
	Fee         string
	Total       string
	DaysOverdue int
	Lead        string
	When        string
}

func money(inv *invoicedomain.Invoice, amount string) string {
	return invoicedomain.CurrencySymbol(inv.Currency) + amount
}

func lateFeeMessage(company *companydomain.Company, inv *invoicedomain.Invoice, daysOverdue int) (email.Message, error) {
	var body bytes.Buffer
	err := lateFeeTmpl.Execute(&body, noticeData{
		Client:      inv.ClientName,
		Company:     company.Name,
		Number:      inv.InvoiceNumber,
		Fee:         money(inv, inv.LateFeeApplied.StringFixed(2)),
		Total:       money(inv, inv.Total.StringFixed(2)),
		DaysOverdue: max(daysOverdue, 0),
	})
	if err != nil {
		return email.Message{}, err
	}
	return email.Message{
		To:      []string{inv.ClientEmail},
		Subject: fmt.Sprintf("Late fee applied to invoice %s", inv.InvoiceNumber),
		Body:    body.String(),
	}, nil
}

func reminderMessage(company *companydomain.Company, inv *invoicedomain.Invoice, offset int) (email.Message, error) {
	data := noticeData{
		Client:  inv.ClientName,
		Company: company.Name,
		Number:  inv.InvoiceNumber,
		Total:   money(inv, inv.Total.StringFixed(2)),
	}
	var subject string
	switch guard.ReminderType(offset) {
	case guard.ReminderBefore:
		subject = fmt.Sprintf("Invoice %s is due in %d day(s)", inv.InvoiceNumber, -offset)
		data.Lead = "This is a friendly reminder about an upcoming payment."
		data.When = fmt.Sprintf("is due on %s", inv.DueDate.Format("January 2, 2006"))
	case guard.ReminderDue:
		subject = fmt.Sprintf("Invoice %s is due today", inv.InvoiceNumber)
		data.Lead = "This is a reminder that payment is due today."
		data.When = "is due today"
	default:
		subject = fmt.Sprintf("Invoice %s is %d day(s) overdue", inv.InvoiceNumber, offset)
		data.Lead = "We have not yet received payment for the invoice below."
		data.When = fmt.Sprintf("was due on %s", inv.DueDate.Format("January 2, 2006"))
	}

	var body bytes.Buffer
	if err := reminderTmpl.Execute(&body, data); err != nil {
		return email.Message{}, err
	}
	return email.Message{
		To:      []string{inv.ClientEmail},
		Subject: subject,
		Body:    body.String(),
	}, nil
}
