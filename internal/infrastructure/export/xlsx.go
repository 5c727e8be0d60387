// Package export renders reconciliation workbooks.
package export

import (
	"fmt"
	"time"

	appreconciliation "github.com/erp/reconciliation/internal/application/reconciliation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Sheet names, in workbook order
const (
	SheetSummary     = "Summary"
	SheetMatches     = "Matches"
	SheetAllocations = "Allocations"
	SheetExceptions  = "Exceptions"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// XLSXRenderer renders a reconciliation detail into an XLSX workbook
type XLSXRenderer struct{}

// NewXLSXRenderer creates an XLSXRenderer
func NewXLSXRenderer() *XLSXRenderer {
	return &XLSXRenderer{}
}

// ContentType returns the XLSX MIME type
func (XLSXRenderer) ContentType() string { return xlsxContentType }

// Extension returns ".xlsx"
func (XLSXRenderer) Extension() string { return ".xlsx" }

type sheet struct {
	name    string
	headers []any
	rows    [][]any
}

// Render writes the summary, matches, allocations and exceptions sheets
func (r XLSXRenderer) Render(detail *appreconciliation.ReconciliationDetailResponse) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	sheets := []sheet{
		summarySheet(detail),
		matchesSheet(detail.Matches),
		allocationsSheet(detail.Allocations),
		exceptionsSheet(detail.Exceptions),
	}
	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return nil, err
		}
		if err := writeSheet(f, s, header); err != nil {
			return nil, fmt.Errorf("write sheet %s: %w", s.name, err)
		}
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, s sheet, headerStyle int) error {
	if err := f.SetSheetRow(s.name, "A1", &s.headers); err != nil {
		return err
	}
	lastCol, err := excelize.ColumnNumberToName(len(s.headers))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(s.name, "A1", lastCol+"1", headerStyle); err != nil {
		return err
	}
	if err := f.SetColWidth(s.name, "A", lastCol, 20); err != nil {
		return err
	}
	for i, row := range s.rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(s.name, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func summarySheet(d *appreconciliation.ReconciliationDetailResponse) sheet {
	return sheet{
		name:    SheetSummary,
		headers: []any{"Field", "Value"},
		rows: [][]any{
			{"ID", d.ID.String()},
			{"Name", d.Name},
			{"Type", d.Type},
			{"Status", d.Status},
			{"Period Start", d.PeriodStart},
			{"Period End", d.PeriodEnd},
			{"Total Items", d.TotalItems},
			{"Matched Items", d.MatchedItems},
			{"Unmatched Items", d.UnmatchedItems},
			{"Total Amount", amount(d.TotalAmount)},
			{"Matched Amount", amount(d.MatchedAmount)},
			{"Match Rate (%)", amount(d.MatchRate)},
			{"Finalized At", timestamp(d.FinalizedAt)},
			{"Notes", d.Notes},
		},
	}
}

// matchesSheet writes one row per match side so every entry is visible
func matchesSheet(matches []appreconciliation.MatchResponse) sheet {
	s := sheet{
		name:    SheetMatches,
		headers: []any{"Match ID", "Type", "Amount", "Difference", "Rule ID", "Entry ID", "Role", "Entry Amount", "Created At"},
	}
	for _, m := range matches {
		for _, e := range m.Entries {
			s.rows = append(s.rows, []any{
				m.ID.String(), m.MatchType, amount(m.Amount), amount(m.Difference), optionalID(m.RuleID),
				e.ClearingEntryID.String(), e.Role, amount(e.Amount), m.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
	}
	return s
}

func allocationsSheet(allocations []appreconciliation.AllocationResponse) sheet {
	s := sheet{
		name:    SheetAllocations,
		headers: []any{"Allocation ID", "Entry ID", "Target Account", "Amount", "Notes", "Created At"},
	}
	for _, a := range allocations {
		s.rows = append(s.rows, []any{
			a.ID.String(), a.ClearingEntryID.String(), a.TargetAccountID.String(),
			amount(a.Amount), a.Notes, a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return s
}

func exceptionsSheet(exceptions []appreconciliation.ExceptionResponse) sheet {
	s := sheet{
		name:    SheetExceptions,
		headers: []any{"Exception ID", "Category", "Description", "Amount", "Resolved", "Resolution", "Resolved At"},
	}
	for _, e := range exceptions {
		s.rows = append(s.rows, []any{
			e.ID.String(), e.Category, e.Description, amount(e.Amount),
			e.Resolved, e.Resolution, timestamp(e.ResolvedAt),
		})
	}
	return s
}

func amount(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func optionalID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func timestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

var _ appreconciliation.WorkbookRenderer = XLSXRenderer{}
