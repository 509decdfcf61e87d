package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// StatementData is a statement of account already formatted for print.
type StatementData struct {
	SchoolName    string
	StudentName   string
	StudentNumber string
	Semester      string
	IssueDate     string
	DueDate       string

	Sections []StatementSection
	Ledger   []LedgerRow

	TotalAmount      string
	MinAmount        string
	PaidAmount       string
	RemainingBalance string
}

type StatementSection struct {
	Name  string
	Lines []StatementLine
}

type StatementLine struct {
	Description string
	Amount      string
}

type LedgerRow struct {
	Date        string
	Description string
	Amount      string
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateStatement(ctx context.Context, data StatementData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Statement of Account", props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, data.SchoolName, props.Text{
			Size:  10,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(22,
		col.New(6).Add(
			text.New(data.StudentName, props.Text{Style: fontstyle.Bold}),
			text.New("ID number: "+data.StudentNumber, props.Text{Top: 5}),
			text.New(data.Semester, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Issued: "+data.IssueDate, props.Text{Align: align.Right}),
			text.New("Minimum due by: "+data.DueDate, props.Text{Top: 5, Align: align.Right}),
		),
	)

	for _, section := range data.Sections {
		m.AddRow(10,
			text.NewCol(12, section.Name, props.Text{Style: fontstyle.Bold, Size: 10, Top: 3}),
		)
		for _, line := range section.Lines {
			m.AddRow(6,
				text.NewCol(9, line.Description, props.Text{Size: 9, Left: 4}),
				text.NewCol(3, line.Amount, props.Text{Size: 9, Align: align.Right}),
			)
		}
	}

	m.AddRow(8)
	summary := [][2]string{
		{"Total", data.TotalAmount},
		{"Minimum amount", data.MinAmount},
		{"Paid", data.PaidAmount},
		{"Remaining balance", data.RemainingBalance},
	}
	for _, row := range summary {
		m.AddRow(7,
			col.New(6),
			text.NewCol(3, row[0], props.Text{Size: 9, Style: fontstyle.Bold}),
			text.NewCol(3, row[1], props.Text{Size: 9, Align: align.Right}),
		)
	}

	if len(data.Ledger) > 0 {
		m.AddRow(12,
			text.NewCol(12, "Account transactions", props.Text{Style: fontstyle.Bold, Size: 10, Top: 5}),
		)
		m.AddRow(7,
			text.NewCol(3, "Date", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.NewCol(3, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		)
		for _, row := range data.Ledger {
			m.AddRow(6,
				text.NewCol(3, row.Date, props.Text{Size: 9}),
				text.NewCol(6, row.Description, props.Text{Size: 9}),
				text.NewCol(3, row.Amount, props.Text{Size: 9, Align: align.Right}),
			)
		}
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}
