package bom

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bomdb/bomdb/internal/model"
	"github.com/bomdb/bomdb/internal/store"
)

// PartResolver maps part-number strings onto canonical Part identities,
// creating new parts on first sight. Lookups are case-insensitive and fronted
// by a cache scoped to one import batch, so a part created for an earlier row
// is visible to later rows without a store round trip.
type PartResolver struct {
	st    store.Store
	cache map[string]model.Part // case-folded number -> part
}

// NewPartResolver creates a resolver for a single import batch.
func NewPartResolver(st store.Store) *PartResolver {
	return &PartResolver{
		st:    st,
		cache: make(map[string]model.Part),
	}
}

// Resolve returns the part for partNumber, creating one if no part with the
// same case-folded number exists. created reports whether this call created
// the part; repeats of the same number within the batch return created=false.
func (r *PartResolver) Resolve(ctx context.Context, partNumber string) (part model.Part, created bool, err error) {
	pn := strings.TrimSpace(partNumber)
	if pn == "" {
		return model.Part{}, false, fmt.Errorf("empty part number")
	}
	key := strings.ToLower(pn)

	if cached, ok := r.cache[key]; ok {
		return cached, false, nil
	}

	part, err = r.st.GetPartByNumber(ctx, pn)
	if err == nil {
		r.cache[key] = part
		return part, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.Part{}, false, fmt.Errorf("lookup part %q: %w", pn, err)
	}

	// First sight: create with the original casing and default class.
	part = model.Part{
		PartNumber:    pn,
		ActivePassive: model.ClassPassive,
	}
	if err := r.st.InsertPart(ctx, &part); err != nil {
		if errors.Is(err, store.ErrDuplicatePart) {
			// Lost a race with a concurrent writer; the part exists now.
			existing, lerr := r.st.GetPartByNumber(ctx, pn)
			if lerr != nil {
				return model.Part{}, false, fmt.Errorf("re-lookup part %q: %w", pn, lerr)
			}
			r.cache[key] = existing
			return existing, false, nil
		}
		return model.Part{}, false, fmt.Errorf("create part %q: %w", pn, err)
	}

	r.cache[key] = part
	return part, true, nil
}
