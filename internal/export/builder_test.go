package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bomdb/bomdb/internal/cebridge"
	"github.com/bomdb/bomdb/internal/logging"
	"github.com/bomdb/bomdb/internal/model"
	"github.com/bomdb/bomdb/internal/store/memory"
)

// fakeBridge is a scriptable Client for builder tests.
type fakeBridge struct {
	ready      bool
	readyErr   error
	mapped     map[string]int64
	lookupErr  error
	exportErr  error
	exportPath string

	lookupCalls [][]string
	exportIDs   []int64
}

func (f *fakeBridge) WaitUntilReady(_ context.Context) (cebridge.ReadyState, error) {
	if f.readyErr != nil {
		return cebridge.ReadyState{}, f.readyErr
	}
	if !f.ready {
		return cebridge.ReadyState{}, cebridge.ErrNotReady
	}
	return cebridge.ReadyState{Ready: true, Version: "test"}, nil
}

func (f *fakeBridge) LookupComplexIDs(_ context.Context, partNumbers []string) (map[string]int64, []string, error) {
	f.lookupCalls = append(f.lookupCalls, partNumbers)
	if f.lookupErr != nil {
		return nil, nil, f.lookupErr
	}
	mapped := make(map[string]int64)
	var unmapped []string
	for _, pn := range partNumbers {
		if id, ok := f.mapped[pn]; ok {
			mapped[pn] = id
		} else {
			unmapped = append(unmapped, pn)
		}
	}
	return mapped, unmapped, nil
}

func (f *fakeBridge) ExportMDB(_ context.Context, ids []int64, outDir, filename string) (cebridge.ExportResult, error) {
	f.exportIDs = ids
	if f.exportErr != nil {
		return cebridge.ExportResult{}, f.exportErr
	}
	path := f.exportPath
	if path == "" {
		path = filepath.Join(outDir, filename)
	}
	return cebridge.ExportResult{ExportedCount: len(ids), ExportPath: path, TraceID: "bridge-trace"}, nil
}

type exportFixture struct {
	st  *memory.Store
	asm model.Assembly
}

func newExportFixture(t *testing.T) *exportFixture {
	t.Helper()
	st := memory.New()
	customer := st.AddCustomer(model.Customer{Name: "Acme", Active: true})
	project := st.AddProject(model.Project{CustomerID: customer.ID, Code: "ACME-1", Title: "Controller"})
	asm := st.AddAssembly(model.Assembly{ProjectID: project.ID, Rev: "B", TestMode: model.ModeUnpowered})
	return &exportFixture{st: st, asm: asm}
}

func (f *exportFixture) addLine(t *testing.T, pn string, class model.PartClass, ref string, kind model.MethodKind, detail string, fitted bool) {
	t.Helper()
	ctx := context.Background()

	part, err := f.st.GetPartByNumber(ctx, pn)
	if err != nil {
		part = model.Part{PartNumber: pn, ActivePassive: class}
		require.NoError(t, f.st.InsertPart(ctx, &part))
		if kind != "" {
			require.NoError(t, f.st.InsertPartTestMap(ctx, model.PartTestMap{
				PartID: part.ID, PowerMode: model.ModeUnpowered, Profile: model.ProfilePassive,
				Kind: kind, Detail: detail,
			}))
		}
	}
	it := model.BOMItem{AssemblyID: f.asm.ID, PartID: &part.ID, Reference: ref, Qty: 1, IsFitted: fitted}
	require.NoError(t, f.st.InsertBOMItem(ctx, &it))
}

// ============================================================================
// BuildExport Tests
// ============================================================================

func TestBuildExport_GroupingAndManifest(t *testing.T) {
	f := newExportFixture(t)
	// Two lines sharing a resolved assignment land in one group.
	f.addLine(t, "R-0402", model.ClassPassive, "R2", model.MethodMacro, "Continuity", true)
	f.addLine(t, "R-0402", model.ClassPassive, "R10", model.MethodMacro, "Continuity", true)
	f.addLine(t, "C-100N", model.ClassPassive, "C1", model.MethodQuickTest, "cap check", true)
	// Unfitted lines stay out of the export entirely.
	f.addLine(t, "R-0402", model.ClassPassive, "R99", model.MethodMacro, "Continuity", false)

	bridge := &fakeBridge{ready: true}
	builder := NewBuilder(f.st, bridge, nil)

	out, err := builder.BuildExport(context.Background(), f.asm.ID, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, StatusSkipped, out.Status, "no Complex lines means no database artifact")
	assert.Empty(t, out.DatabasePath)
	assert.Empty(t, bridge.lookupCalls, "bridge is not consulted without Complex lines")
	assert.NotEmpty(t, out.TraceID)

	assert.Equal(t, 2, out.Diagnostics.PerGroupCounts["Macro_Continuity"])
	assert.Equal(t, 1, out.Diagnostics.PerGroupCounts["Quick_test__QT__cap_check"])

	require.FileExists(t, out.ManifestPath)
	raw, err := os.ReadFile(out.ManifestPath)
	require.NoError(t, err)
	manifest := string(raw)
	assert.Contains(t, manifest, "group\ttest_method\ttest_detail\tqty\treferences\tpart_numbers")
	assert.Contains(t, manifest, "Macro_Continuity\tMacro\tContinuity\t2\tR2,R10\tR-0402")
	assert.NotContains(t, manifest, "R99")

	folderName := filepath.Base(out.FolderPath)
	assert.True(t, strings.HasPrefix(folderName, "Acme - Controller - Rev B - "),
		"folder %q should carry the composed name", folderName)
}

func TestBuildExport_ComplexLookupAndDatabase(t *testing.T) {
	f := newExportFixture(t)
	f.addLine(t, "FPGA-1", model.ClassActive, "U1", model.MethodComplex, "", true)
	f.addLine(t, "FPGA-1", model.ClassActive, "U2", model.MethodComplex, "", true)
	f.addLine(t, "R-0402", model.ClassPassive, "R1", model.MethodMacro, "Continuity", true)

	bridge := &fakeBridge{ready: true, mapped: map[string]int64{"FPGA-1": 101}}
	builder := NewBuilder(f.st, bridge, nil)

	out, err := builder.BuildExport(context.Background(), f.asm.ID, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, []int64{101}, bridge.exportIDs, "ids are de-duplicated across lines")
	assert.Equal(t, filepath.Join(out.FolderPath, "bom_complexes.mdb"), out.DatabasePath)
	assert.Equal(t, "bridge-trace", out.TraceID)
	assert.Empty(t, out.Diagnostics.MissingComplexParts)

	// Only the Complex lines' part numbers reach the lookup.
	require.Len(t, bridge.lookupCalls, 1)
	assert.Equal(t, []string{"FPGA-1"}, bridge.lookupCalls[0])
}

func TestBuildExport_MissingMappingIsPartial(t *testing.T) {
	f := newExportFixture(t)
	f.addLine(t, "FPGA-1", model.ClassActive, "U1", model.MethodComplex, "", true)
	f.addLine(t, "ASIC-9", model.ClassActive, "U2", model.MethodComplex, "", true)

	bridge := &fakeBridge{ready: true, mapped: map[string]int64{"FPGA-1": 101}}
	builder := NewBuilder(f.st, bridge, nil)

	out, err := builder.BuildExport(context.Background(), f.asm.ID, t.TempDir())
	require.NoError(t, err, "a mapping gap must not abort the export")

	assert.Equal(t, StatusPartial, out.Status)
	assert.Equal(t, []string{"ASIC-9"}, out.Diagnostics.MissingComplexParts)
	assert.NotEmpty(t, out.DatabasePath, "the resolvable subset is still exported")
}

func TestBuildExport_NoMappedIDsSkipsDatabase(t *testing.T) {
	f := newExportFixture(t)
	f.addLine(t, "ASIC-9", model.ClassActive, "U1", model.MethodComplex, "", true)

	bridge := &fakeBridge{ready: true}
	builder := NewBuilder(f.st, bridge, nil)

	out, err := builder.BuildExport(context.Background(), f.asm.ID, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, StatusSkipped, out.Status)
	assert.Empty(t, out.DatabasePath)
	assert.Nil(t, bridge.exportIDs, "export is not requested without ids")
	assert.Equal(t, []string{"ASIC-9"}, out.Diagnostics.MissingComplexParts)
}

func TestBuildExport_BridgeNotReadyKeepsManifest(t *testing.T) {
	f := newExportFixture(t)
	f.addLine(t, "FPGA-1", model.ClassActive, "U1", model.MethodComplex, "", true)

	bridge := &fakeBridge{ready: false}
	builder := NewBuilder(f.st, bridge, nil)

	out, err := builder.BuildExport(context.Background(), f.asm.ID, t.TempDir())
	require.Error(t, err, "total service failure is not masked as missing mapping")
	assert.True(t, errors.Is(err, cebridge.ErrNotReady))

	// The folder and manifest survive so the caller can retry the
	// database step alone.
	assert.FileExists(t, out.ManifestPath)
	assert.Empty(t, out.DatabasePath)
	assert.Empty(t, out.Diagnostics.MissingComplexParts)
}

func TestBuildExport_UnresolvedLinesWarned(t *testing.T) {
	f := newExportFixture(t)
	f.addLine(t, "MYSTERY", model.ClassPassive, "X1", "", "", true)

	builder := NewBuilder(f.st, &fakeBridge{ready: true}, nil)
	out, err := builder.BuildExport(context.Background(), f.asm.ID, t.TempDir())
	require.NoError(t, err)

	require.NotEmpty(t, out.Warnings)
	assert.Contains(t, out.Warnings[0], "missing test assignment for: X1")
	assert.Equal(t, 1, out.Diagnostics.PerGroupCounts["unassigned"])
}

func TestBuildExport_ReusesContextTraceID(t *testing.T) {
	f := newExportFixture(t)
	f.addLine(t, "R-0402", model.ClassPassive, "R1", model.MethodMacro, "Continuity", true)

	builder := NewBuilder(f.st, &fakeBridge{ready: true}, nil)
	ctx := logging.WithTraceID(context.Background(), "batch-trace")

	out, err := builder.BuildExport(ctx, f.asm.ID, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "batch-trace", out.TraceID)
}

func TestBuildExport_AssemblyNotFound(t *testing.T) {
	f := newExportFixture(t)
	builder := NewBuilder(f.st, &fakeBridge{ready: true}, nil)

	_, err := builder.BuildExport(context.Background(), 404, t.TempDir())
	assert.Error(t, err)
}
