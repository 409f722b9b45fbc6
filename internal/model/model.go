// Package model defines the domain entities for the BOM catalogue:
// customers, projects, assemblies, BOM line items, canonical parts and the
// test-map rows that drive test-method resolution.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TestMode is the electrical power state an assembly is tested under.
type TestMode string

const (
	ModePowered   TestMode = "powered"
	ModeUnpowered TestMode = "unpowered"
)

// Opposite returns the other power mode.
func (m TestMode) Opposite() TestMode {
	if m == ModePowered {
		return ModeUnpowered
	}
	return ModePowered
}

// PartClass is a part's electrical classification.
type PartClass string

const (
	ClassActive  PartClass = "active"
	ClassPassive PartClass = "passive"
)

// TestProfile tags a test-map row as an active- or passive-style procedure.
// It is distinct from PartClass even though the values coincide.
type TestProfile string

const (
	ProfileActive  TestProfile = "active"
	ProfilePassive TestProfile = "passive"
)

// MethodKind identifies which kind of test procedure a map row points at.
type MethodKind string

const (
	// MethodMacro is a macro-based test referencing a TestMacro.
	MethodMacro MethodKind = "Macro"
	// MethodScript is a scripted test referencing a ScriptTest.
	MethodScript MethodKind = "Script"
	// MethodQuickTest is a quick text-based test; the text lives in Detail.
	MethodQuickTest MethodKind = "Quick test (QT)"
	// MethodComplex marks a line whose test program comes from the external
	// Complex Editor. Lines with this method participate in MDB export.
	MethodComplex MethodKind = "Complex"
)

// TaskStatus tracks remediation task progress.
type TaskStatus string

const (
	TaskTodo  TaskStatus = "todo"
	TaskDoing TaskStatus = "doing"
	TaskDone  TaskStatus = "done"
)

// Customer owns projects.
type Customer struct {
	ID           int64
	Name         string
	ContactEmail string
	Active       bool
	CreatedAt    time.Time
}

// Project groups assemblies under a customer.
type Project struct {
	ID         int64
	CustomerID int64
	Code       string
	Title      string
	CreatedAt  time.Time
}

// Assembly is one board revision inside a project. TestMode is mutable and
// governs which test-map rows are current for its BOM lines.
type Assembly struct {
	ID        int64
	ProjectID int64
	Rev       string
	Notes     string
	TestMode  TestMode
	CreatedAt time.Time
}

// Part is the canonical catalogue identity for a part number. Uniqueness is
// case-insensitive: "ABC" and "abc" are the same part, stored with the
// casing of the first occurrence.
type Part struct {
	ID            int64
	PartNumber    string
	Description   string
	Package       string
	Value         string
	Function      string
	ActivePassive PartClass
	PowerRequired bool
	DatasheetURL  string
	ProductURL    string
	TolP          string
	TolN          string
	CreatedAt     time.Time
}

// BOMItem is one line of an assembly's BOM. PartID is nil while the part
// number is unmatched. After reference expansion multi-reference rows are
// split into one item per reference with Qty 1.
type BOMItem struct {
	ID            int64
	AssemblyID    int64
	PartID        *int64
	Reference     string
	Qty           int
	Manufacturer  string
	UnitCost      *decimal.Decimal
	Currency      string
	AltPartNumber string
	IsFitted      bool
	Notes         string
}

// TestMacro is a named macro-based test procedure.
type TestMacro struct {
	ID      int64
	Name    string
	GlbPath string
	Notes   string
}

// ScriptTest is a named scripted test procedure.
type ScriptTest struct {
	ID       int64
	Name     string
	FilePath string
	Notes    string
}

// PartTestMap assigns a test procedure to a part for one
// (power mode, profile) combination. Exactly one of TestMacroID and
// ScriptTestID is set for macro/script rows; quick-test rows set neither
// and carry the procedure text in Detail.
type PartTestMap struct {
	PartID       int64
	PowerMode    TestMode
	Profile      TestProfile
	Kind         MethodKind
	TestMacroID  *int64
	ScriptTestID *int64
	Detail       string
}

// TestOverride is a per-item test assignment that takes precedence over the
// part-level map for its power mode.
type TestOverride struct {
	BOMItemID    int64
	PowerMode    TestMode
	Kind         MethodKind
	TestMacroID  *int64
	ScriptTestID *int64
	Detail       string
}

// Task is a remediation item created when an imported part number has no
// catalogue match.
type Task struct {
	ID          int64
	ProjectID   int64
	Title       string
	Description string
	Status      TaskStatus
	CreatedAt   time.Time
}
