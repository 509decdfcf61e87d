package service

import (
	"context"
	"io"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/registrar/internal/providers/pdf"
	"github.com/smallbiznis/registrar/internal/soa/domain"
)

const printDate = "Jan 2, 2006"

// Renderer prints statements with the configured PDF provider.
type Renderer struct {
	svc *Service
	pdf pdf.Provider
}

func NewRenderer(svc *Service, provider pdf.Provider) *Renderer {
	return &Renderer{svc: svc, pdf: provider}
}

// RenderPDF prints the statement with its current balance.
func (r *Renderer) RenderPDF(ctx context.Context, soaID snowflake.ID) (io.Reader, error) {
	statement, err := r.svc.Get(ctx, soaID)
	if err != nil {
		return nil, err
	}
	balance, err := r.svc.Balance(ctx, soaID)
	if err != nil {
		return nil, err
	}

	data := pdf.StatementData{
		SchoolName:       "Office of the University Registrar",
		IssueDate:        statement.UpdatedAt.Format(printDate),
		DueDate:          statement.MinAmountDueDate.Format(printDate),
		TotalAmount:      statement.TotalAmount.StringFixed(2),
		MinAmount:        statement.MinAmount.StringFixed(2),
		PaidAmount:       balance.PaidAmount.StringFixed(2),
		RemainingBalance: balance.RemainingBalance.StringFixed(2),
	}

	enrollment, err := r.svc.enrollments.FindByID(ctx, r.svc.db, statement.EnrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment != nil {
		student, err := r.svc.academic.FindStudent(ctx, r.svc.db, enrollment.StudentID)
		if err != nil {
			return nil, err
		}
		if student != nil {
			data.StudentName = student.FullName()
			data.StudentNumber = student.IDNumber
		}
		semester, err := r.svc.academic.FindSemester(ctx, r.svc.db, enrollment.SemesterID)
		if err != nil {
			return nil, err
		}
		if semester != nil {
			data.Semester = semester.Term.String() + " semester"
		}
	}

	data.Sections = sections(statement)
	for _, tx := range statement.Transactions {
		data.Ledger = append(data.Ledger, pdf.LedgerRow{
			Date:        tx.PostedAt.Format(printDate),
			Description: tx.Description,
			Amount:      tx.Amount.StringFixed(2),
		})
	}

	return r.pdf.GenerateStatement(ctx, data)
}

func sections(statement *domain.Statement) []pdf.StatementSection {
	index := make(map[snowflake.ID]int, len(statement.Categories))
	out := make([]pdf.StatementSection, 0, len(statement.Categories))
	for _, category := range statement.Categories {
		index[category.ID] = len(out)
		out = append(out, pdf.StatementSection{Name: category.Name})
	}
	for _, line := range statement.Lines {
		if line.CategoryID == nil {
			continue
		}
		i, ok := index[*line.CategoryID]
		if !ok {
			continue
		}
		out[i].Lines = append(out[i].Lines, pdf.StatementLine{
			Description: line.Description,
			Amount:      line.Value.StringFixed(2),
		})
	}
	return out
}
