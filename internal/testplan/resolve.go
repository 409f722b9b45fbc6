// Package testplan computes the effective test assignment for BOM lines.
//
// An assignment is never stored on the line; it is derived fresh from the
// assembly's current power mode, the part's electrical classification, the
// part's test-map rows and any per-item override, so switching an assembly
// between powered and unpowered changes every line's assignment on the next
// read.
package testplan

import (
	"context"
	"fmt"

	"github.com/bomdb/bomdb/internal/model"
	"github.com/bomdb/bomdb/internal/store"
)

// Source marks where a resolved assignment came from.
type Source string

const (
	SourceOverride    Source = "override"     // per-item override won
	SourceMapping     Source = "mapping"      // part test-map row at the requested mode
	SourceFallback    Source = "fallback"     // powered lookup served by an unpowered row
	SourceUnresolved  Source = "unresolved"   // part has no applicable rows
	SourceMissingPart Source = "missing_part" // line has no part link
)

// Resolved is the effective test assignment for one BOM line. Method and
// Detail reflect the assembly's present mode; MethodPowered and
// DetailPowered are populated only when the assembly is powered and the part
// is electrically active. Passive parts never receive a powered functional
// test regardless of their map rows.
type Resolved struct {
	Method        string
	Detail        string
	MethodPowered string
	DetailPowered string
	PowerMode     model.TestMode
	Source        Source
	Message       string
}

// selection is a single-mode pick before the powered/unpowered columns are
// combined.
type selection struct {
	method string
	detail string
	source Source
}

type mapKey struct {
	mode    model.TestMode
	profile model.TestProfile
}

// Resolver resolves test assignments for the BOM lines of one assembly using
// pre-loaded lookups, caching per-mode picks so export grouping can resolve
// the whole BOM without repeated work.
type Resolver struct {
	assembly  model.Assembly
	parts     map[int64]model.Part // keyed by part id
	mappings  map[int64]map[mapKey]model.PartTestMap
	overrides map[int64]map[model.TestMode]model.TestOverride
	cache     map[int64]map[model.TestMode]selection
}

// NewResolver builds a resolver from already-loaded state.
func NewResolver(
	assembly model.Assembly,
	parts []model.Part,
	mappings []model.PartTestMap,
	overrides []model.TestOverride,
) *Resolver {
	r := &Resolver{
		assembly:  assembly,
		parts:     make(map[int64]model.Part, len(parts)),
		mappings:  make(map[int64]map[mapKey]model.PartTestMap),
		overrides: make(map[int64]map[model.TestMode]model.TestOverride),
		cache:     make(map[int64]map[model.TestMode]selection),
	}
	for _, p := range parts {
		r.parts[p.ID] = p
	}
	for _, m := range mappings {
		byKey, ok := r.mappings[m.PartID]
		if !ok {
			byKey = make(map[mapKey]model.PartTestMap)
			r.mappings[m.PartID] = byKey
		}
		byKey[mapKey{m.PowerMode, m.Profile}] = m
	}
	for _, o := range overrides {
		byMode, ok := r.overrides[o.BOMItemID]
		if !ok {
			byMode = make(map[model.TestMode]model.TestOverride)
			r.overrides[o.BOMItemID] = byMode
		}
		byMode[o.PowerMode] = o
	}
	return r
}

// Load fetches the assembly, its BOM lines and every lookup the resolver
// needs in one pass, returning the resolver and the lines. The assembly's
// test mode is read fresh here, so callers see mode switches immediately.
func Load(ctx context.Context, st store.Store, assemblyID int64) (*Resolver, []model.BOMItem, error) {
	assembly, err := st.GetAssembly(ctx, assemblyID)
	if err != nil {
		return nil, nil, fmt.Errorf("load assembly %d: %w", assemblyID, err)
	}

	items, err := st.ListBOMItems(ctx, assemblyID)
	if err != nil {
		return nil, nil, fmt.Errorf("list bom items: %w", err)
	}

	partIDs := make([]int64, 0, len(items))
	seen := make(map[int64]bool, len(items))
	itemIDs := make([]int64, 0, len(items))
	for _, it := range items {
		itemIDs = append(itemIDs, it.ID)
		if it.PartID != nil && !seen[*it.PartID] {
			seen[*it.PartID] = true
			partIDs = append(partIDs, *it.PartID)
		}
	}

	parts := make([]model.Part, 0, len(partIDs))
	for _, id := range partIDs {
		p, err := st.GetPart(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("load part %d: %w", id, err)
		}
		parts = append(parts, p)
	}

	mappings, err := st.ListPartTestMaps(ctx, partIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("list part test maps: %w", err)
	}
	overrides, err := st.ListTestOverrides(ctx, itemIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("list overrides: %w", err)
	}

	return NewResolver(assembly, parts, mappings, overrides), items, nil
}

// Assembly returns the assembly state the resolver was loaded with.
func (r *Resolver) Assembly() model.Assembly { return r.assembly }

// Part returns a loaded part by id.
func (r *Resolver) Part(id int64) (model.Part, bool) {
	p, ok := r.parts[id]
	return p, ok
}

// Resolve computes the effective assignment for one BOM line under the
// assembly's current test mode.
func (r *Resolver) Resolve(item model.BOMItem) Resolved {
	if item.PartID == nil {
		return Resolved{
			Source:  SourceMissingPart,
			Message: fmt.Sprintf("Part missing for BOM item %s", item.Reference),
		}
	}
	part, ok := r.parts[*item.PartID]
	if !ok {
		return Resolved{
			Source:  SourceMissingPart,
			Message: fmt.Sprintf("Part %d not loaded for BOM item %s", *item.PartID, item.Reference),
		}
	}

	current := r.resolveForMode(item, part, r.assembly.TestMode)

	out := Resolved{
		Method:    current.method,
		Detail:    current.detail,
		PowerMode: r.assembly.TestMode,
		Source:    current.source,
	}
	if out.Method == "" {
		out.Message = fmt.Sprintf("Missing %s test assignment for part %s", r.assembly.TestMode, part.PartNumber)
	}

	// Powered columns only exist for active parts on a powered assembly.
	if r.assembly.TestMode == model.ModePowered && part.ActivePassive == model.ClassActive {
		powered := r.resolveForMode(item, part, model.ModePowered)
		out.MethodPowered = powered.method
		out.DetailPowered = powered.detail
	}

	return out
}

// resolveForMode picks the assignment for a single power mode: override
// first, then the ordered (mode, profile) candidate list, then the unpowered
// fallback for powered lookups.
func (r *Resolver) resolveForMode(item model.BOMItem, part model.Part, mode model.TestMode) selection {
	byMode, cached := r.cache[item.ID]
	if cached {
		if sel, ok := byMode[mode]; ok {
			return sel
		}
	} else {
		byMode = make(map[model.TestMode]selection, 2)
		r.cache[item.ID] = byMode
	}

	sel := r.pickForMode(item, part, mode)
	byMode[mode] = sel
	return sel
}

func (r *Resolver) pickForMode(item model.BOMItem, part model.Part, mode model.TestMode) selection {
	if o, ok := r.overrides[item.ID][mode]; ok {
		return selection{
			method: string(o.Kind),
			detail: o.Detail,
			source: SourceOverride,
		}
	}

	if m, ok := r.pickMapping(part, mode); ok {
		return selection{
			method: string(m.Kind),
			detail: m.Detail,
			source: SourceMapping,
		}
	}

	// An unpowered row is the generic baseline for powered lookups; the
	// reverse direction is never implied.
	if mode == model.ModePowered {
		if m, ok := r.pickMapping(part, model.ModeUnpowered); ok {
			return selection{
				method: string(m.Kind),
				detail: m.Detail,
				source: SourceFallback,
			}
		}
	}

	return selection{source: SourceUnresolved}
}

func (r *Resolver) pickMapping(part model.Part, mode model.TestMode) (model.PartTestMap, bool) {
	byKey := r.mappings[part.ID]
	if len(byKey) == 0 {
		return model.PartTestMap{}, false
	}
	for _, profile := range profileOrder(part.ActivePassive, mode) {
		if m, ok := byKey[mapKey{mode, profile}]; ok {
			return m, true
		}
	}
	return model.PartTestMap{}, false
}

// profileOrder is the explicit candidate order for map lookups. Passive
// parts only ever consult passive-profile rows; active parts prefer the
// profile matching the mode and then the alternate.
func profileOrder(class model.PartClass, mode model.TestMode) []model.TestProfile {
	if class == model.ClassPassive {
		return []model.TestProfile{model.ProfilePassive}
	}
	if mode == model.ModePowered {
		return []model.TestProfile{model.ProfileActive, model.ProfilePassive}
	}
	return []model.TestProfile{model.ProfilePassive, model.ProfileActive}
}
