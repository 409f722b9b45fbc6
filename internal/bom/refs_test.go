package bom

import (
	"reflect"
	"testing"
)

// ============================================================================
// ExpandReferences Tests
// ============================================================================

func TestExpandReferences(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want []string
	}{
		{
			name: "single reference",
			expr: "R1",
			want: []string{"R1"},
		},
		{
			name: "comma list",
			expr: "R1,R5,R7",
			want: []string{"R1", "R5", "R7"},
		},
		{
			name: "simple range",
			expr: "R1-R3",
			want: []string{"R1", "R2", "R3"},
		},
		{
			name: "range then single",
			expr: "R1-R3,C5",
			want: []string{"R1", "R2", "R3", "C5"},
		},
		{
			name: "whitespace around tokens",
			expr: " R1 , R2 ",
			want: []string{"R1", "R2"},
		},
		{
			name: "empty expression",
			expr: "",
			want: nil,
		},
		{
			name: "whitespace only",
			expr: "   ",
			want: nil,
		},
		{
			name: "empty tokens skipped",
			expr: "R1,,R2",
			want: []string{"R1", "R2"},
		},
		{
			name: "multi-letter prefix range",
			expr: "LED1-LED3",
			want: []string{"LED1", "LED2", "LED3"},
		},
		{
			name: "zero padded range preserves width",
			expr: "C01-C03",
			want: []string{"C01", "C02", "C03"},
		},
		{
			name: "mismatched prefixes kept literal",
			expr: "R1-C3",
			want: []string{"R1-C3"},
		},
		{
			name: "reversed bounds kept literal",
			expr: "R5-R2",
			want: []string{"R5-R2"},
		},
		{
			name: "degenerate range of one",
			expr: "R4-R4",
			want: []string{"R4"},
		},
		{
			name: "non-range hyphen token kept literal",
			expr: "TP-GND",
			want: []string{"TP-GND"},
		},
		{
			name: "case-insensitive prefix match",
			expr: "r1-R3",
			want: []string{"r1", "r2", "r3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpandReferences(tt.expr)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExpandReferences(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestExpandReferences_LargeRange(t *testing.T) {
	got := ExpandReferences("R1-R100")
	if len(got) != 100 {
		t.Fatalf("expanded %d references, want 100", len(got))
	}
	if got[0] != "R1" || got[99] != "R100" {
		t.Errorf("bounds = %q..%q, want R1..R100", got[0], got[99])
	}
}
