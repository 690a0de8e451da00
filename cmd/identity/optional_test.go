package identity

import (
	"encoding/json"
	"testing"
)

func TestPatch_UnmarshalJSON_DistinguishesOmittedFromNull(t *testing.T) {
	t.Parallel()

	var p Patch
	if err := json.Unmarshal([]byte(`{"name":"Ada","secondary_contact":null,"tax_id":"X"}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if v, ok := p.Name.Get(); !ok || v != "Ada" {
		t.Fatalf("name: got %q set=%v", v, ok)
	}
	if v, ok := p.SecondaryContact.Get(); !ok || v != nil {
		t.Fatalf("secondary_contact: expected explicit clear, got %v set=%v", v, ok)
	}
	if !p.TaxID.IsSet() {
		t.Fatalf("tax_id should be marked set so it can be rejected")
	}
	if p.Email.IsSet() || p.BirthDate.IsSet() || p.NationalID.IsSet() {
		t.Fatalf("omitted fields must stay unset")
	}
	if p.Empty() {
		t.Fatalf("patch should not be empty")
	}
}

func TestPatch_Empty(t *testing.T) {
	t.Parallel()

	var p Patch
	if err := json.Unmarshal([]byte(`{}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !p.Empty() {
		t.Fatalf("expected empty patch")
	}
	if (Patch{NationalID: Some("")}).Empty() {
		t.Fatalf("a supplied identifier is not an empty patch")
	}
}

func TestOptional_UnmarshalJSON_TypeMismatch(t *testing.T) {
	t.Parallel()

	var p Patch
	if err := json.Unmarshal([]byte(`{"name":42}`), &p); err == nil {
		t.Fatalf("expected error for non-string name")
	}
}
