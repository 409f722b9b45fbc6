// Package store defines the persistence contract consumed by the import,
// resolution and export engines. Implementations live in the memory and
// postgres subpackages.
package store

import (
	"context"
	"errors"

	"github.com/bomdb/bomdb/internal/model"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicatePart is returned when an insert would create a second part
// with the same case-folded number.
var ErrDuplicatePart = errors.New("store: duplicate part number")

// Store is the transactional backing store for the BOM engine.
//
// Part lookup by number is case-insensitive; implementations must fold the
// number before comparing so the engine never creates two parts whose folded
// numbers collide.
type Store interface {
	GetCustomer(ctx context.Context, id int64) (model.Customer, error)
	GetProject(ctx context.Context, id int64) (model.Project, error)
	GetAssembly(ctx context.Context, id int64) (model.Assembly, error)
	UpdateAssemblyTestMode(ctx context.Context, id int64, mode model.TestMode) error

	GetPart(ctx context.Context, id int64) (model.Part, error)
	GetPartByNumber(ctx context.Context, partNumber string) (model.Part, error)
	InsertPart(ctx context.Context, p *model.Part) error

	InsertBOMItem(ctx context.Context, item *model.BOMItem) error
	ListBOMItems(ctx context.Context, assemblyID int64) ([]model.BOMItem, error)

	ListPartTestMaps(ctx context.Context, partIDs []int64) ([]model.PartTestMap, error)
	InsertPartTestMap(ctx context.Context, m model.PartTestMap) error
	ListTestOverrides(ctx context.Context, bomItemIDs []int64) ([]model.TestOverride, error)
	InsertTestOverride(ctx context.Context, o model.TestOverride) error

	InsertTask(ctx context.Context, t *model.Task) error
}
