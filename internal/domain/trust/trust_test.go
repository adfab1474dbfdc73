package trust

import (
	"sort"
	"testing"
)

func TestDefault_TrustsEpicOnly(t *testing.T) {
	p := Default()

	tests := []struct {
		source string
		want   bool
	}{
		{"EPIC", true},
		{"epic", true},
		{" Epic ", true},
		{"clarity", false},
		{"caboodle", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := p.IsTrusted(tt.source); got != tt.want {
			t.Errorf("IsTrusted(%q) = %v, want %v", tt.source, got, tt.want)
		}
	}
}

func TestNewPolicy_DropsBlankNames(t *testing.T) {
	p := NewPolicy("EPIC", "  ", "", "hl7")

	got := p.Sources()
	sort.Strings(got)
	if len(got) != 2 || got[0] != "EPIC" || got[1] != "HL7" {
		t.Fatalf("unexpected sources: %v", got)
	}
	if !p.IsTrusted("HL7") {
		t.Error("expected HL7 to be trusted")
	}
}

func TestZeroPolicy_TrustsNothing(t *testing.T) {
	var p Policy
	if p.IsTrusted("EPIC") {
		t.Error("zero policy should not trust anything")
	}
}
