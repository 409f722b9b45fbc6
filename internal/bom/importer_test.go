package bom

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bomdb/bomdb/internal/model"
	"github.com/bomdb/bomdb/internal/store/memory"
)

func seedAssembly(t *testing.T, st *memory.Store) model.Assembly {
	t.Helper()
	customer := st.AddCustomer(model.Customer{Name: "Acme", Active: true})
	project := st.AddProject(model.Project{CustomerID: customer.ID, Code: "ACME-1", Title: "Controller"})
	return st.AddAssembly(model.Assembly{ProjectID: project.ID, Rev: "B", TestMode: model.ModeUnpowered})
}

// ============================================================================
// ImportBOM Tests
// ============================================================================

func TestImportBOM_ReferenceExpansion(t *testing.T) {
	st := memory.New()
	asm := seedAssembly(t, st)
	ctx := context.Background()

	data := []byte("part_number,reference,qty\n" +
		"P1,R1-R3,999\n" +
		"P2,\"R5,R7\",2\n" +
		"P3,R9,10\n")

	report := NewImporter(st).ImportBOM(ctx, asm.ID, data)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, report.Total, report.Matched+report.Unmatched)

	items, err := st.ListBOMItems(ctx, asm.ID)
	require.NoError(t, err)

	byRef := make(map[string]model.BOMItem, len(items))
	for _, it := range items {
		byRef[it.Reference] = it
	}

	// R1-R3 with qty 999 splits into three items of qty 1 plus a mismatch.
	for _, ref := range []string{"R1", "R2", "R3"} {
		it, ok := byRef[ref]
		require.True(t, ok, "expected item %s", ref)
		assert.Equal(t, 1, it.Qty, "reference %s", ref)
	}
	require.NotEmpty(t, report.Errors)
	found := false
	for _, e := range report.Errors {
		if strings.Contains(e, "qty=999 but 3 references expanded") {
			found = true
		}
	}
	assert.True(t, found, "errors should report the quantity mismatch: %v", report.Errors)

	// R5,R7 with qty 2 splits cleanly, qty 1 each, no mismatch.
	assert.Equal(t, 1, byRef["R5"].Qty)
	assert.Equal(t, 1, byRef["R7"].Qty)
	for _, e := range report.Errors {
		assert.NotContains(t, e, "qty=2 but 2")
	}

	// A single reference keeps the declared quantity unsplit.
	assert.Equal(t, 10, byRef["R9"].Qty)
	assert.Len(t, items, 6)
}

func TestImportBOM_NoReferenceKeepsDeclaredQty(t *testing.T) {
	st := memory.New()
	asm := seedAssembly(t, st)
	ctx := context.Background()

	data := []byte("part_number,reference,qty\nP1,,10\n")
	report := NewImporter(st).ImportBOM(ctx, asm.ID, data)

	require.Equal(t, 1, report.Total)
	items, err := st.ListBOMItems(ctx, asm.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 10, items[0].Qty)
	assert.Empty(t, items[0].Reference)
}

func TestImportBOM_CaseInsensitiveIdentity(t *testing.T) {
	st := memory.New()
	asm := seedAssembly(t, st)
	ctx := context.Background()

	first := NewImporter(st).ImportBOM(ctx, asm.ID,
		[]byte("part_number,reference\nABC,R1\n"))
	assert.Equal(t, 1, first.Unmatched)

	// Same number, different casing, fresh batch: must match, not create.
	second := NewImporter(st).ImportBOM(ctx, asm.ID,
		[]byte("part_number,reference\nabc,R2\n"))
	assert.Equal(t, 1, second.Matched)
	assert.Equal(t, 0, second.Unmatched)

	require.Len(t, st.Parts(), 1)
	assert.Equal(t, "ABC", st.Parts()[0].PartNumber, "first-seen casing is kept")
}

func TestImportBOM_UnmatchedPartCreatesTask(t *testing.T) {
	st := memory.New()
	asm := seedAssembly(t, st)
	ctx := context.Background()

	// NEW-1 appears twice in one batch: one part, one task.
	data := []byte("part_number,reference\nNEW-1,R1\nNEW-1,R2\nNEW-2,C1\n")
	report := NewImporter(st).ImportBOM(ctx, asm.ID, data)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Matched, "same-batch repeat counts as matched")
	assert.Equal(t, 2, report.Unmatched)
	assert.Len(t, report.CreatedTaskIDs, 2)

	tasks := st.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "Define part NEW-1 from BOM of assembly B", tasks[0].Title)
	assert.Equal(t, model.TaskTodo, tasks[0].Status)
	assert.Equal(t, asm.ProjectID, tasks[0].ProjectID)
}

func TestImportBOM_StructuralFailureZeroCounts(t *testing.T) {
	st := memory.New()
	asm := seedAssembly(t, st)
	ctx := context.Background()

	tests := []struct {
		name string
		data []byte
	}{
		{name: "unknown column", data: []byte("part_number,reference,bogus\nP1,R1,x\n")},
		{name: "missing required column", data: []byte("reference\nR1\n")},
		{name: "empty file", data: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := NewImporter(st).ImportBOM(ctx, asm.ID, tt.data)
			assert.Equal(t, 0, report.Total)
			assert.Equal(t, 0, report.Matched)
			assert.Equal(t, 0, report.Unmatched)
			require.Len(t, report.Errors, 1)
		})
	}

	items, err := st.ListBOMItems(ctx, asm.ID)
	require.NoError(t, err)
	assert.Empty(t, items, "structural failures must not persist rows")
}

func TestImportBOM_AssemblyNotFound(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	report := NewImporter(st).ImportBOM(ctx, 42,
		[]byte("part_number,reference\nP1,R1\n"))

	assert.Equal(t, 0, report.Total)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "assembly not found")
}

func TestImportBOM_BadRowDoesNotAbortBatch(t *testing.T) {
	st := memory.New()
	asm := seedAssembly(t, st)
	ctx := context.Background()

	data := []byte("part_number,reference,qty\n" +
		"P1,R1,1\n" +
		",R2,1\n" + // missing part number
		"P3,R3,nope\n" + // bad qty
		"P4,R4,1\n")

	report := NewImporter(st).ImportBOM(ctx, asm.ID, data)

	assert.Equal(t, 2, report.Total, "skipped rows are not counted")
	assert.Len(t, report.Errors, 2)
	assert.Equal(t, report.Total, report.Matched+report.Unmatched)

	items, err := st.ListBOMItems(ctx, asm.ID)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestImportBOM_RowMetadataCarriedToItems(t *testing.T) {
	st := memory.New()
	asm := seedAssembly(t, st)
	ctx := context.Background()

	data := []byte("part_number,reference,qty,manufacturer,mpn,unit_cost,currency,description\n" +
		"P1,R1,1,Yageo,RC0402FR,$0.07,usd,pullup resistor\n")

	report := NewImporter(st).ImportBOM(ctx, asm.ID, data)
	require.Empty(t, report.Errors)

	items, err := st.ListBOMItems(ctx, asm.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	it := items[0]
	assert.Equal(t, "Yageo", it.Manufacturer)
	assert.Equal(t, "RC0402FR", it.AltPartNumber)
	assert.Equal(t, "USD", it.Currency)
	assert.Equal(t, "pullup resistor", it.Notes)
	require.NotNil(t, it.UnitCost)
	assert.Equal(t, "0.07", it.UnitCost.String())
	assert.True(t, it.IsFitted)
}

// ============================================================================
// PartResolver Tests
// ============================================================================

func TestPartResolver_CreateThenCacheHit(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	r := NewPartResolver(st)

	part, created, err := r.Resolve(ctx, "XYZ-9")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.ClassPassive, part.ActivePassive, "new parts default passive")

	again, created, err := r.Resolve(ctx, "xyz-9")
	require.NoError(t, err)
	assert.False(t, created, "cache hit is never a creation")
	assert.Equal(t, part.ID, again.ID)
}

func TestPartResolver_TrimsAndRejectsEmpty(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	r := NewPartResolver(st)

	part, created, err := r.Resolve(ctx, "  PN-77  ")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "PN-77", part.PartNumber)

	_, _, err = r.Resolve(ctx, "   ")
	assert.Error(t, err)
}
