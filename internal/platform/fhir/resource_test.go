package fhir

import (
	"encoding/json"
	"testing"
)

func TestFormatReference(t *testing.T) {
	if got := FormatReference("Patient", "123"); got != "Patient/123" {
		t.Errorf("expected Patient/123, got %s", got)
	}
}

func TestParseReference(t *testing.T) {
	tests := []struct {
		ref    string
		typ    string
		id     string
		wantOK bool
	}{
		{"Patient/123", "Patient", "123", true},
		{"BodyStructure/abc-def", "BodyStructure", "abc-def", true},
		{"Patient", "", "", false},
		{"/123", "", "", false},
		{"Patient/", "", "", false},
		{"Patient/1/_history/2", "", "", false},
	}
	for _, tt := range tests {
		typ, id, ok := ParseReference(tt.ref)
		if ok != tt.wantOK || typ != tt.typ || id != tt.id {
			t.Errorf("ParseReference(%q) = %q, %q, %v", tt.ref, typ, id, ok)
		}
	}
}

func TestOutcomes(t *testing.T) {
	nf := NotFoundOutcome("BodyStructure", "x1")
	if nf.ResourceType != "OperationOutcome" || nf.Issue[0].Code != "not-found" {
		t.Errorf("unexpected outcome %+v", nf)
	}
	if nf.Issue[0].Diagnostics != "BodyStructure/x1 not found" {
		t.Errorf("unexpected diagnostics %s", nf.Issue[0].Diagnostics)
	}
	if ErrorOutcome("boom").Issue[0].Code != "processing" {
		t.Error("expected processing code")
	}
	if InvalidOutcome("bad id").Issue[0].Code != "invalid" {
		t.Error("expected invalid code")
	}
}

func TestExtension_DecimalJSON(t *testing.T) {
	v := 62.5
	b, err := json.Marshal(Extension{URL: "urn:x", ValueDecimal: &v})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"url":"urn:x","valueDecimal":62.5}` {
		t.Errorf("unexpected json %s", b)
	}
}
