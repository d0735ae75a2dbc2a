package identity

import "testing"

func TestSlug(t *testing.T) {
	tests := []struct {
		title, ref, want string
	}{
		{"Signature Villa on the Frond", "RS-1001", "signature-villa-on-the-frond-rs-1001"},
		{"Résidence Côte d'Azur", "DXB-7", "residence-cote-d-azur-dxb-7"},
		{"   ", "RS-9", "rs-9"},
		{"!!!Penthouse!!!", "", "penthouse"},
	}
	for _, tt := range tests {
		if got := Slug(tt.title, tt.ref); got != tt.want {
			t.Errorf("Slug(%q, %q) = %q, want %q", tt.title, tt.ref, got, tt.want)
		}
	}
}

func TestSlug_LongTitle(t *testing.T) {
	title := "an extraordinarily long listing title that keeps going well past any sensible length for a url"
	got := Slug(title, "R1")
	if len(got) > maxSlugLen+len("-r1") {
		t.Fatalf("slug too long: %q", got)
	}
	if got[len(got)-3:] != "-r1" {
		t.Fatalf("expected reference suffix, got %q", got)
	}
}

func TestPrefixedReference(t *testing.T) {
	if got := PrefixedReference("DXB-", "1001"); got != "DXB-1001" {
		t.Fatalf("expected DXB-1001, got %q", got)
	}
	if got := PrefixedReference("DXB-", "DXB-1001"); got != "DXB-1001" {
		t.Fatalf("prefix must not be applied twice, got %q", got)
	}
	if got := PrefixedReference("", " 1001 "); got != "1001" {
		t.Fatalf("expected trimmed reference, got %q", got)
	}
}

func TestPublicPath(t *testing.T) {
	if got := PublicPath("villa-rs-1"); got != "/properties/villa-rs-1" {
		t.Fatalf("unexpected path %q", got)
	}
}
