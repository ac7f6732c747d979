package pdf

import (
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"invoicely/backend/internal/domain"
)

// Renderer lays out an invoice document for download or printing.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render produces the PDF bytes for one invoice with the issuing company's
// details in the header and payment block.
func (r *Renderer) Render(invoice domain.Invoice, company domain.CompanySettings) ([]byte, error) {
	m := maroto.New(config.NewBuilder().Build())

	m.AddRow(10,
		col.New(8).Add(
			text.New(company.Name, props.Text{
				Size:  16,
				Style: fontstyle.Bold,
			}),
		),
		col.New(4).Add(
			text.New("INVOICE", props.Text{
				Size:  20,
				Style: fontstyle.BoldItalic,
				Align: align.Right,
			}),
		),
	)

	m.AddRow(6,
		col.New(8).Add(
			text.New(company.Address, props.Text{
				Size: 9,
			}),
		),
		col.New(4).Add(
			text.New(fmt.Sprintf("Invoice #: %s", invoice.InvoiceNumber), props.Text{
				Size:  10,
				Style: fontstyle.Bold,
				Align: align.Right,
			}),
		),
	)

	m.AddRow(5,
		col.New(8).Add(
			text.New(fmt.Sprintf("%s · %s", company.Phone, company.Email), props.Text{
				Size: 9,
			}),
		),
		col.New(4).Add(
			text.New(fmt.Sprintf("Date: %s", invoice.CreatedDate.Format("January 2, 2006")), props.Text{
				Size:  9,
				Align: align.Right,
			}),
		),
	)

	m.AddRow(5,
		col.New(8),
		col.New(4).Add(
			text.New(fmt.Sprintf("Due Date: %s", invoice.DueDate.Format("January 2, 2006")), props.Text{
				Size:  9,
				Align: align.Right,
			}),
		),
	)

	m.AddRow(5,
		col.New(8),
		col.New(4).Add(
			text.New(fmt.Sprintf("Status: %s", invoice.Status), props.Text{
				Size:  9,
				Align: align.Right,
			}),
		),
	)

	m.AddRow(10)

	m.AddRow(8,
		col.New(12).Add(
			text.New(fmt.Sprintf("Bill To: %s", invoice.Client.Name), props.Text{
				Size:  11,
				Style: fontstyle.Bold,
			}),
		),
	)

	if invoice.Client.Address != "" {
		m.AddRow(5,
			col.New(12).Add(
				text.New(invoice.Client.Address, props.Text{
					Size: 9,
				}),
			),
		)
	}

	if invoice.Client.Email != "" || invoice.Client.Phone != "" {
		contact := invoice.Client.Email
		if invoice.Client.Phone != "" {
			if contact != "" {
				contact += " · "
			}
			contact += invoice.Client.Phone
		}
		m.AddRow(5,
			col.New(12).Add(
				text.New(contact, props.Text{
					Size: 9,
				}),
			),
		)
	}

	m.AddRow(10)

	m.AddRow(8,
		col.New(6).Add(
			text.New("Description", props.Text{
				Size:  9,
				Style: fontstyle.Bold,
			}),
		),
		col.New(2).Add(
			text.New("Qty", props.Text{
				Size:  9,
				Style: fontstyle.Bold,
				Align: align.Right,
			}),
		),
		col.New(2).Add(
			text.New("Price", props.Text{
				Size:  9,
				Style: fontstyle.Bold,
				Align: align.Right,
			}),
		),
		col.New(2).Add(
			text.New("Amount", props.Text{
				Size:  9,
				Style: fontstyle.Bold,
				Align: align.Right,
			}),
		),
	)

	for _, item := range invoice.Items {
		m.AddRow(6,
			col.New(6).Add(
				text.New(item.Description, props.Text{
					Size: 8,
				}),
			),
			col.New(2).Add(
				text.New(fmt.Sprintf("%d", item.Quantity), props.Text{
					Size:  8,
					Align: align.Right,
				}),
			),
			col.New(2).Add(
				text.New(fmt.Sprintf("%.2f", item.Price), props.Text{
					Size:  8,
					Align: align.Right,
				}),
			),
			col.New(2).Add(
				text.New(fmt.Sprintf("%.2f", item.Total()), props.Text{
					Size:  8,
					Align: align.Right,
				}),
			),
		)
	}

	m.AddRow(8)

	r.totalRow(m, "Subtotal:", invoice.Subtotal(), false)
	if invoice.TaxPercentage > 0 {
		r.totalRow(m, fmt.Sprintf("Tax (%.1f%%):", invoice.TaxPercentage), invoice.TaxAmount(), false)
	}
	if invoice.DiscountAmount > 0 {
		r.totalRow(m, "Discount:", -invoice.DiscountAmount, false)
	}
	r.totalRow(m, "Total:", invoice.Total(), true)

	m.AddRow(10)
	m.AddRow(8,
		col.New(12).Add(
			text.New("Payment Information", props.Text{
				Size:  12,
				Style: fontstyle.Bold,
			}),
		),
	)
	m.AddRow(5,
		col.New(12).Add(
			text.New(fmt.Sprintf("Bank: %s", company.BankName), props.Text{
				Size: 9,
			}),
		),
	)
	m.AddRow(5,
		col.New(12).Add(
			text.New(fmt.Sprintf("Account: %s", company.BankAccount), props.Text{
				Size: 9,
			}),
		),
	)
	m.AddRow(5,
		col.New(12).Add(
			text.New(fmt.Sprintf("IFSC: %s", company.BankIFSC), props.Text{
				Size: 9,
			}),
		),
	)

	if invoice.Notes != "" {
		m.AddRow(8,
			col.New(12).Add(
				text.New(invoice.Notes, props.Text{
					Size: 8,
				}),
			),
		)
	}

	document, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate invoice pdf: %w", err)
	}
	return document.GetBytes(), nil
}

func (r *Renderer) totalRow(m core.Maroto, label string, amount float64, grand bool) {
	size := 9.0
	if grand {
		size = 10
	}
	m.AddRow(6,
		col.New(8),
		col.New(2).Add(
			text.New(label, props.Text{
				Size:  size,
				Style: fontstyle.Bold,
				Align: align.Right,
			}),
		),
		col.New(2).Add(
			text.New(fmt.Sprintf("%.2f", amount), props.Text{
				Size:  size,
				Style: fontstyle.Bold,
				Align: align.Right,
			}),
		),
	)
}
