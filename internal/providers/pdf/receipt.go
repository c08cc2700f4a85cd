package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

func (p *MarotoProvider) GenerateReceipt(ctx context.Context, data ReceiptData) (io.Reader, error) {
	m := newDocument()

	m.AddRow(15,
		text.NewCol(12, "Payment receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(25,
		col.New(6).Add(
			text.New("Invoice number: "+data.InvoiceNumber, props.Text{Top: 0}),
			text.New("Date paid: "+data.DatePaid, props.Text{Top: 4}),
			text.New("Method: "+data.PaymentMethod, props.Text{Top: 8}),
		),
		col.New(6).Add(
			text.New("Reference: "+data.Reference, props.Text{Top: 0}),
		),
	)

	addParties(m, data.InvoiceData)

	m.AddRow(15,
		text.NewCol(12, data.AmountTotal+" paid on "+data.DatePaid, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	addItemTable(m, data.Items)

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Payment", props.Text{Size: 9}),
		text.NewCol(2, data.AmountTotal, props.Text{Size: 9, Align: align.Right}),
	)
	if data.CreditApplied != "" {
		m.AddRow(10,
			col.New(8),
			text.NewCol(2, "Credit applied", props.Text{Size: 9}),
			text.NewCol(2, data.CreditApplied, props.Text{Size: 9, Align: align.Right}),
		)
	}
	if data.RewardApplied != "" {
		m.AddRow(10,
			col.New(8),
			text.NewCol(2, "Rewards applied", props.Text{Size: 9}),
			text.NewCol(2, data.RewardApplied, props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Balance due", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, data.AmountDue, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}
