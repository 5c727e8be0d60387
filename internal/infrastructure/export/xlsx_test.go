package export

import (
	"bytes"
	"testing"
	"time"

	appreconciliation "github.com/erp/reconciliation/internal/application/reconciliation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDetail() *appreconciliation.ReconciliationDetailResponse {
	created := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	ruleID := uuid.New()
	debit, credit := uuid.New(), uuid.New()
	return &appreconciliation.ReconciliationDetailResponse{
		ReconciliationResponse: appreconciliation.ReconciliationResponse{
			ID:             uuid.New(),
			Name:           "March bank",
			Type:           "bank",
			Status:         "finalized",
			PeriodStart:    "2026-03-01",
			PeriodEnd:      "2026-03-31",
			TotalItems:     3,
			MatchedItems:   2,
			UnmatchedItems: 1,
			TotalAmount:    decimal.RequireFromString("350.00"),
			MatchedAmount:  decimal.RequireFromString("200.00"),
			MatchRate:      decimal.RequireFromString("66.67"),
		},
		Matches: []appreconciliation.MatchResponse{{
			ID:        uuid.New(),
			MatchType: "one_to_one",
			Amount:    decimal.RequireFromString("100.00"),
			RuleID:    &ruleID,
			CreatedAt: created,
			Entries: []appreconciliation.MatchEntryResponse{
				{ClearingEntryID: debit, Role: "debit", Amount: decimal.RequireFromString("100.00")},
				{ClearingEntryID: credit, Role: "credit", Amount: decimal.RequireFromString("-100.00")},
			},
		}},
		Allocations: []appreconciliation.AllocationResponse{{
			ID:              uuid.New(),
			ClearingEntryID: debit,
			TargetAccountID: uuid.New(),
			Amount:          decimal.RequireFromString("40.50"),
			CreatedAt:       created,
		}},
		Exceptions: []appreconciliation.ExceptionResponse{{
			ID:          uuid.New(),
			Category:    "amount_mismatch",
			Description: "REF-9 differs by 0.40",
			Amount:      decimal.RequireFromString("0.40"),
		}},
	}
}

func openWorkbook(t *testing.T, content []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestXLSXRenderer_Metadata(t *testing.T) {
	r := NewXLSXRenderer()
	assert.Equal(t, ".xlsx", r.Extension())
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", r.ContentType())
}

func TestXLSXRenderer_Sheets(t *testing.T) {
	detail := sampleDetail()
	content, err := NewXLSXRenderer().Render(detail)
	require.NoError(t, err)

	f := openWorkbook(t, content)
	assert.Equal(t, []string{SheetSummary, SheetMatches, SheetAllocations, SheetExceptions}, f.GetSheetList())

	summary, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"Field", "Value"}, summary[0])
	assert.Equal(t, []string{"Name", "March bank"}, summary[2])
	assert.Equal(t, []string{"Status", "finalized"}, summary[4])

	matches, err := f.GetRows(SheetMatches)
	require.NoError(t, err)
	require.Len(t, matches, 3, "header plus one row per match side")
	assert.Equal(t, "debit", matches[1][6])
	assert.Equal(t, "credit", matches[2][6])
	assert.Equal(t, detail.Matches[0].RuleID.String(), matches[1][4])

	allocations, err := f.GetRows(SheetAllocations)
	require.NoError(t, err)
	require.Len(t, allocations, 2)
	assert.Equal(t, "40.5", allocations[1][3])

	exceptions, err := f.GetRows(SheetExceptions)
	require.NoError(t, err)
	require.Len(t, exceptions, 2)
	assert.Equal(t, "amount_mismatch", exceptions[1][1])
	assert.Equal(t, "FALSE", exceptions[1][4])
}

func TestXLSXRenderer_EmptyDetail(t *testing.T) {
	content, err := NewXLSXRenderer().Render(&appreconciliation.ReconciliationDetailResponse{})
	require.NoError(t, err)

	f := openWorkbook(t, content)
	rows, err := f.GetRows(SheetMatches)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
