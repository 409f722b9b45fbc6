package bom

import (
	"context"
	"errors"
	"fmt"

	"github.com/bomdb/bomdb/internal/logging"
	"github.com/bomdb/bomdb/internal/model"
	"github.com/bomdb/bomdb/internal/store"
)

// ImportReport is the structured outcome of one import batch. Import
// failures are data, not errors: structural problems produce a zero-count
// report with a single error string, row-level problems accumulate in Errors
// while processing continues.
type ImportReport struct {
	Total          int
	Matched        int
	Unmatched      int
	CreatedTaskIDs []int64
	Errors         []string
}

// Importer drives one BOM import batch: ingest, reference expansion, part
// resolution, item persistence and remediation-task creation.
type Importer struct {
	st store.Store
}

// NewImporter creates an importer backed by st.
func NewImporter(st store.Store) *Importer {
	return &Importer{st: st}
}

// ImportBOM parses raw BOM bytes and imports them into the assembly.
//
// Structural failures (undecodable input, bad headers, missing assembly)
// abort the batch before any row is processed and return a report with zero
// counts and the failure in Errors. A bad row never aborts the batch.
func (im *Importer) ImportBOM(ctx context.Context, assemblyID int64, data []byte) ImportReport {
	rows, warnings, err := Parse(data)
	if err != nil {
		return ImportReport{Errors: []string{err.Error()}}
	}

	report := im.ImportRows(ctx, assemblyID, rows)
	if report.Total == 0 && len(report.Errors) > 0 && len(rows) > 0 {
		// Structural failure inside ImportRows; parse warnings would only
		// obscure the cause.
		return report
	}
	report.Errors = append(warnings, report.Errors...)
	return report
}

// ImportRows imports already-parsed rows into the assembly. Each row's
// persistence commits incrementally; a failing row is reported and skipped
// without rolling back earlier rows.
func (im *Importer) ImportRows(ctx context.Context, assemblyID int64, rows []Row) ImportReport {
	var report ImportReport

	assembly, err := im.st.GetAssembly(ctx, assemblyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			report.Errors = append(report.Errors, "assembly not found")
		} else {
			report.Errors = append(report.Errors, fmt.Sprintf("load assembly: %v", err))
		}
		return report
	}

	resolver := NewPartResolver(im.st)

	for _, row := range rows {
		report.Total++

		part, created, err := resolver.Resolve(ctx, row.PartNumber)
		var partID *int64
		switch {
		case err != nil:
			// Resolution failed outright; keep the line with a null part
			// link so the BOM stays complete.
			report.Unmatched++
			report.Errors = append(report.Errors, fmt.Sprintf("Row %d: resolve part %q: %v", row.Line, row.PartNumber, err))
		case created:
			report.Unmatched++
			id := part.ID
			partID = &id
			task := model.Task{
				ProjectID:   assembly.ProjectID,
				Title:       fmt.Sprintf("Define part %s from BOM of assembly %s", part.PartNumber, assembly.Rev),
				Description: row.Description,
				Status:      model.TaskTodo,
			}
			if terr := im.st.InsertTask(ctx, &task); terr != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("Row %d: create task: %v", row.Line, terr))
			} else {
				report.CreatedTaskIDs = append(report.CreatedTaskIDs, task.ID)
			}
		default:
			report.Matched++
			id := part.ID
			partID = &id
		}

		for _, item := range im.buildItems(assemblyID, partID, row, &report) {
			if ierr := im.st.InsertBOMItem(ctx, &item); ierr != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("Row %d: insert item %s: %v", row.Line, item.Reference, ierr))
			}
		}
	}

	logging.WithFields(ctx, "assembly_id", assemblyID).Debug("bom import finished",
		"total", report.Total,
		"matched", report.Matched,
		"unmatched", report.Unmatched,
		"tasks", len(report.CreatedTaskIDs),
	)

	return report
}

// buildItems turns one row into its BOMItems. A multi-reference expression
// splits into one item per reference with Qty 1; a single or absent
// reference keeps the declared quantity.
func (im *Importer) buildItems(assemblyID int64, partID *int64, row Row, report *ImportReport) []model.BOMItem {
	base := model.BOMItem{
		AssemblyID:    assemblyID,
		PartID:        partID,
		Qty:           row.Qty,
		Manufacturer:  row.Manufacturer,
		UnitCost:      row.UnitCost,
		Currency:      row.Currency,
		AltPartNumber: row.MPN,
		IsFitted:      true,
		Notes:         row.Description,
	}

	refs := ExpandReferences(row.Reference)
	switch len(refs) {
	case 0:
		return []model.BOMItem{base}
	case 1:
		base.Reference = refs[0]
		return []model.BOMItem{base}
	default:
		if row.Qty != len(refs) {
			report.Errors = append(report.Errors, fmt.Sprintf("qty=%d but %d references expanded", row.Qty, len(refs)))
		}
		items := make([]model.BOMItem, 0, len(refs))
		for _, ref := range refs {
			item := base
			item.Reference = ref
			item.Qty = 1
			items = append(items, item)
		}
		return items
	}
}
