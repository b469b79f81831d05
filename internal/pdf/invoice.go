// Package pdf renders invoices as PDF documents.
package pdf

import (
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	marotocfg "github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/marchfield/liveryard/internal/models"
)

// RenderInvoice builds a PDF for the given invoice. Line items must be
// preloaded; letterhead details come from the business settings.
func RenderInvoice(inv *models.Invoice, settings *models.BusinessSettings) ([]byte, error) {
	cfg := marotocfg.NewBuilder().
		WithLeftMargin(15).
		WithTopMargin(15).
		WithRightMargin(15).
		Build()

	m := maroto.New(cfg)

	addLetterhead(m, settings)
	addInvoiceMeta(m, inv)
	addLineItems(m, inv)
	addTotal(m, inv)
	addFooter(m, settings)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate invoice pdf: %w", err)
	}
	return doc.GetBytes(), nil
}

func addLetterhead(m core.Maroto, settings *models.BusinessSettings) {
	m.AddRow(12, text.NewCol(12, settings.BusinessName, props.Text{
		Size:  18,
		Style: fontstyle.Bold,
	}))
	if settings.Address != "" {
		m.AddRow(6, text.NewCol(12, settings.Address, props.Text{Size: 9}))
	}
	contact := settings.Email
	if settings.Phone != "" {
		if contact != "" {
			contact += "  |  "
		}
		contact += settings.Phone
	}
	if contact != "" {
		m.AddRow(6, text.NewCol(12, contact, props.Text{Size: 9}))
	}
	m.AddRow(4, line.NewCol(12))
}

func addInvoiceMeta(m core.Maroto, inv *models.Invoice) {
	m.AddRow(10, text.NewCol(12, "INVOICE "+inv.InvoiceNumber, props.Text{
		Size:  14,
		Style: fontstyle.Bold,
		Top:   2,
	}))

	m.AddRow(6,
		text.NewCol(6, "Billed to: "+inv.Owner.Name, props.Text{Size: 10}),
		text.NewCol(6, "Issued: "+inv.CreatedAt.Format("2 January 2006"), props.Text{
			Size:  10,
			Align: align.Right,
		}),
	)
	m.AddRow(6,
		text.NewCol(6, fmt.Sprintf("Period: %s to %s",
			inv.PeriodStart.Format("2 Jan 2006"),
			inv.PeriodEnd.Format("2 Jan 2006")), props.Text{Size: 10}),
		text.NewCol(6, "Due: "+inv.DueDate.Format("2 January 2006"), props.Text{
			Size:  10,
			Align: align.Right,
		}),
	)
	m.AddRow(4, col.New(12))
}

func addLineItems(m core.Maroto, inv *models.Invoice) {
	header := props.Text{Size: 9, Style: fontstyle.Bold}
	m.AddRow(8,
		text.NewCol(8, "Description", header),
		text.NewCol(4, "Amount", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	for _, item := range inv.LineItems {
		m.AddRow(7,
			text.NewCol(8, item.Description, props.Text{Size: 9}),
			text.NewCol(4, "£"+item.LineTotal.StringFixed(2), props.Text{
				Size:  9,
				Align: align.Right,
			}),
		)
	}
	m.AddRow(2, line.NewCol(12))
}

func addTotal(m core.Maroto, inv *models.Invoice) {
	m.AddRow(10,
		text.NewCol(8, "Total", props.Text{Size: 11, Style: fontstyle.Bold}),
		text.NewCol(4, "£"+inv.Total.StringFixed(2), props.Text{
			Size:  11,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)
}

func addFooter(m core.Maroto, settings *models.BusinessSettings) {
	if settings.BankDetails == "" {
		return
	}
	m.AddRow(6, text.NewCol(12, "Payment details", props.Text{
		Size:  9,
		Style: fontstyle.Bold,
		Top:   4,
	}))
	m.AddRow(8, text.NewCol(12, settings.BankDetails, props.Text{Size: 9}))
}
