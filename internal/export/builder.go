// Package export groups resolved BOM lines into export units and writes the
// export package: a run folder, a tab-delimited manifest and, when the
// assembly carries Complex-linked parts, a binary test database rendered by
// the Complex Editor bridge.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bomdb/bomdb/internal/cebridge"
	"github.com/bomdb/bomdb/internal/logging"
	"github.com/bomdb/bomdb/internal/model"
	"github.com/bomdb/bomdb/internal/store"
	"github.com/bomdb/bomdb/internal/testplan"
)

// Status classifies an export run.
type Status string

const (
	// StatusSuccess means every Complex-linked part was mapped and the
	// database artifact was written.
	StatusSuccess Status = "success"
	// StatusPartial means artifacts were written but some part numbers had
	// no bridge mapping; see Diagnostics.MissingComplexParts.
	StatusPartial Status = "partial"
	// StatusSkipped means no database artifact was requested because no
	// complex ids were available. The folder and manifest still exist.
	StatusSkipped Status = "skipped"
)

// Diagnostics carries the non-fatal findings of an export run.
type Diagnostics struct {
	// MissingComplexParts lists part numbers of fitted Complex lines the
	// bridge could not map, sorted and de-duplicated.
	MissingComplexParts []string
	// PerGroupCounts maps group token to the number of BOM lines in it.
	PerGroupCounts map[string]int
}

// Outcome is the result of one export run. A partial export with
// diagnostics is a valid outcome, not an error.
type Outcome struct {
	FolderPath   string
	ManifestPath string
	DatabasePath string
	Status       Status
	Warnings     []string
	Diagnostics  Diagnostics
	TraceID      string
}

const (
	manifestName = "bom_manifest.txt"
	databaseName = "bom_complexes.mdb"
)

// Builder assembles export packages for one assembly at a time.
type Builder struct {
	st     store.Store
	bridge cebridge.Client
	log    *slog.Logger
	now    func() time.Time
}

// NewBuilder wires an export builder. The bridge client is an injected
// capability so tests can substitute a fake.
func NewBuilder(st store.Store, bridge cebridge.Client, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{st: st, bridge: bridge, log: log, now: time.Now}
}

// line is one fitted BOM line with its resolved assignment.
type line struct {
	reference  string
	partNumber string
	qty        int
	resolved   testplan.Resolved
}

type groupKey struct {
	method string
	detail string
}

// group is one export unit: all lines sharing a resolved assignment.
type group struct {
	key   groupKey
	token string
	lines []line
}

// BuildExport resolves the assembly's BOM, groups the fitted lines by their
// effective (test method, test detail) pair and writes the export package
// under baseDir. Mapping gaps surface in the outcome's diagnostics; only
// store and bridge transport failures return an error.
func (b *Builder) BuildExport(ctx context.Context, assemblyID int64, baseDir string) (Outcome, error) {
	// Reuse the batch trace id when the caller started one; mint otherwise.
	traceID := logging.TraceID(ctx)
	if traceID == "" {
		traceID = uuid.New().String()
	}
	out := Outcome{
		Status:  StatusSkipped,
		TraceID: traceID,
		Diagnostics: Diagnostics{
			PerGroupCounts: make(map[string]int),
		},
	}
	log := b.log.With("trace_id", traceID, "assembly_id", assemblyID)

	resolver, items, err := testplan.Load(ctx, b.st, assemblyID)
	if err != nil {
		return out, fmt.Errorf("load assembly state: %w", err)
	}
	assembly := resolver.Assembly()

	bomName, err := b.composeBOMName(ctx, assembly)
	if err != nil {
		return out, err
	}

	lines, warnings := b.collectLines(resolver, items)
	out.Warnings = warnings
	groups := buildGroups(lines)
	for _, g := range groups {
		out.Diagnostics.PerGroupCounts[g.token] = len(g.lines)
	}

	folder := filepath.Join(baseDir, fmt.Sprintf("%s - %s",
		sanitizeComponent(bomName, fmt.Sprintf("Assembly_%d", assembly.ID)),
		b.now().Format("20060102_150405")))
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return out, fmt.Errorf("create export folder: %w", err)
	}
	out.FolderPath = folder

	manifestPath := filepath.Join(folder, manifestName)
	if err := writeManifest(manifestPath, groups); err != nil {
		return out, fmt.Errorf("write manifest: %w", err)
	}
	out.ManifestPath = manifestPath
	log.Info("export manifest written", "groups", len(groups), "lines", len(lines))

	complexPNs := complexPartNumbers(lines)
	if len(complexPNs) == 0 {
		out.Warnings = append(out.Warnings, "no Complex-linked parts; database artifact not generated")
		return out, nil
	}

	if _, err := b.bridge.WaitUntilReady(ctx); err != nil {
		// The folder and manifest stand; the caller retries the database
		// step once the bridge recovers.
		return out, fmt.Errorf("bridge readiness: %w", err)
	}

	mapped, unmapped, err := b.bridge.LookupComplexIDs(ctx, complexPNs)
	if err != nil {
		return out, fmt.Errorf("complex lookup: %w", err)
	}
	if len(unmapped) > 0 {
		sort.Strings(unmapped)
		out.Diagnostics.MissingComplexParts = unmapped
		out.Warnings = append(out.Warnings,
			"complex ids missing for: "+strings.Join(unmapped, ", "))
	}

	ids := sortedIDs(mapped)
	if len(ids) == 0 {
		out.Warnings = append(out.Warnings, "no complex ids found; database artifact not generated")
		return out, nil
	}

	result, err := b.bridge.ExportMDB(ctx, ids, folder, databaseName)
	if err != nil {
		return out, fmt.Errorf("database export: %w", err)
	}
	out.DatabasePath = result.ExportPath
	if out.DatabasePath == "" {
		out.DatabasePath = filepath.Join(folder, databaseName)
	}
	if result.TraceID != "" {
		out.TraceID = result.TraceID
	}

	out.Status = StatusSuccess
	if len(out.Diagnostics.MissingComplexParts) > 0 {
		out.Status = StatusPartial
	}
	log.Info("export complete",
		"status", string(out.Status),
		"exported", result.ExportedCount,
		"missing", len(out.Diagnostics.MissingComplexParts))
	return out, nil
}

// composeBOMName builds the human-readable run name from customer, project
// and revision, tolerating missing parents.
func (b *Builder) composeBOMName(ctx context.Context, assembly model.Assembly) (string, error) {
	parts := make([]string, 0, 3)

	project, err := b.st.GetProject(ctx, assembly.ProjectID)
	switch {
	case err == nil:
		customer, cerr := b.st.GetCustomer(ctx, project.CustomerID)
		if cerr == nil && strings.TrimSpace(customer.Name) != "" {
			parts = append(parts, strings.TrimSpace(customer.Name))
		} else if cerr != nil && !errors.Is(cerr, store.ErrNotFound) {
			return "", fmt.Errorf("load customer: %w", cerr)
		}
		if title := strings.TrimSpace(project.Title); title != "" {
			parts = append(parts, title)
		}
	case errors.Is(err, store.ErrNotFound):
		// orphan assembly, fall through to the fallback name
	default:
		return "", fmt.Errorf("load project: %w", err)
	}

	if rev := strings.TrimSpace(assembly.Rev); rev != "" {
		parts = append(parts, "Rev "+rev)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("Assembly %d", assembly.ID), nil
	}
	return strings.Join(parts, " - "), nil
}

// collectLines resolves every fitted line and reports lines without a usable
// assignment as warnings rather than dropping them silently.
func (b *Builder) collectLines(resolver *testplan.Resolver, items []model.BOMItem) ([]line, []string) {
	lines := make([]line, 0, len(items))
	var unassigned []string
	for _, it := range items {
		if !it.IsFitted {
			continue
		}
		res := resolver.Resolve(it)
		pn := ""
		if it.PartID != nil {
			if p, ok := resolver.Part(*it.PartID); ok {
				pn = p.PartNumber
			}
		}
		if res.Method == "" {
			ref := it.Reference
			if ref == "" {
				ref = pn
			}
			if ref != "" {
				unassigned = append(unassigned, ref)
			}
		}
		lines = append(lines, line{
			reference:  it.Reference,
			partNumber: pn,
			qty:        it.Qty,
			resolved:   res,
		})
	}

	var warnings []string
	if len(unassigned) > 0 {
		sort.Slice(unassigned, func(i, j int) bool { return naturalLess(unassigned[i], unassigned[j]) })
		warnings = append(warnings, "missing test assignment for: "+strings.Join(unassigned, ", "))
	}
	return lines, warnings
}

// buildGroups partitions lines by (method, detail) and assigns each group a
// stable filesystem token, ordered by key for deterministic output.
func buildGroups(lines []line) []group {
	byKey := make(map[groupKey][]line)
	for _, l := range lines {
		key := groupKey{method: l.resolved.Method, detail: l.resolved.Detail}
		byKey[key] = append(byKey[key], l)
	}

	keys := make([]groupKey, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].method != keys[j].method {
			return keys[i].method < keys[j].method
		}
		return keys[i].detail < keys[j].detail
	})

	taken := make(map[string]int)
	groups := make([]group, 0, len(keys))
	for _, k := range keys {
		gl := byKey[k]
		sort.Slice(gl, func(i, j int) bool { return naturalLess(gl[i].reference, gl[j].reference) })
		groups = append(groups, group{
			key:   k,
			token: groupToken(k, taken),
			lines: gl,
		})
	}
	return groups
}

// groupToken derives a filesystem-safe token from the group's identifying
// text, disambiguating collisions with a numeric suffix.
func groupToken(k groupKey, taken map[string]int) string {
	base := strings.TrimSpace(k.method + " " + k.detail)
	if base == "" {
		base = "unassigned"
	}
	var sb strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	token := strings.Trim(sb.String(), "_")
	if token == "" {
		token = "unassigned"
	}
	fold := strings.ToLower(token)
	taken[fold]++
	if n := taken[fold]; n > 1 {
		token = fmt.Sprintf("%s_%d", token, n)
	}
	return token
}

// writeManifest emits one tab-delimited row per group: token, method,
// detail, line count, references and distinct part numbers.
func writeManifest(path string, groups []group) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, "group\ttest_method\ttest_detail\tqty\treferences\tpart_numbers"); err != nil {
		return err
	}
	for _, g := range groups {
		refs := make([]string, 0, len(g.lines))
		pnSet := make(map[string]bool)
		for _, l := range g.lines {
			if l.reference != "" {
				refs = append(refs, l.reference)
			}
			if l.partNumber != "" {
				pnSet[l.partNumber] = true
			}
		}
		pns := make([]string, 0, len(pnSet))
		for pn := range pnSet {
			pns = append(pns, pn)
		}
		sort.Strings(pns)
		if _, err := fmt.Fprintf(f, "%s\t%s\t%s\t%d\t%s\t%s\n",
			g.token, g.key.method, g.key.detail, len(g.lines),
			strings.Join(refs, ","), strings.Join(pns, ",")); err != nil {
			return err
		}
	}
	return f.Sync()
}

// complexPartNumbers collects the distinct part numbers of fitted lines whose
// effective method is Complex, sorted for a stable lookup request.
func complexPartNumbers(lines []line) []string {
	set := make(map[string]bool)
	for _, l := range lines {
		if l.resolved.Method == string(model.MethodComplex) && l.partNumber != "" {
			set[l.partNumber] = true
		}
	}
	pns := make([]string, 0, len(set))
	for pn := range set {
		pns = append(pns, pn)
	}
	sort.Strings(pns)
	return pns
}

func sortedIDs(mapped map[string]int64) []int64 {
	seen := make(map[int64]bool, len(mapped))
	ids := make([]int64, 0, len(mapped))
	for _, id := range mapped {
		if id > 0 && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
