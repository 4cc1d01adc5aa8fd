package airports

import "testing"

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"KPAO", "KPAO"},
		{"kpao", "KPAO"},
		{"KPAO - Palo Alto Airport", "KPAO"},
		{"JFK", "JFK"},
		{"  EGLL  ", "EGLL"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeCode(tt.in); got != tt.want {
			t.Errorf("NormalizeCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveICAO(t *testing.T) {
	d := NewDirectory()
	a, ok := d.Resolve("KJFK")
	if !ok {
		t.Fatal("expected KJFK to resolve")
	}
	if a.IATA != "JFK" || a.Country != "United States" {
		t.Errorf("unexpected airport: %+v", a)
	}
}

func TestResolveIATA(t *testing.T) {
	d := NewDirectory()
	a, ok := d.Resolve("AMS")
	if !ok {
		t.Fatal("expected AMS to resolve")
	}
	if a.ICAO != "EHAM" {
		t.Errorf("expected EHAM, got %s", a.ICAO)
	}
}

func TestResolveKPrefixCandidate(t *testing.T) {
	// US local identifier resolved via pseudo-ICAO K prefix
	d := NewDirectory()
	a, ok := d.Resolve("7S5")
	if !ok {
		t.Fatal("expected 7S5 to resolve via K7S5")
	}
	if a.ICAO != "K7S5" {
		t.Errorf("expected K7S5, got %s", a.ICAO)
	}
}

func TestResolveDecorated(t *testing.T) {
	d := NewDirectory()
	a, ok := d.Resolve("KPAO - Palo Alto Airport")
	if !ok {
		t.Fatal("expected decorated code to resolve")
	}
	if a.ICAO != "KPAO" {
		t.Errorf("expected KPAO, got %s", a.ICAO)
	}
}

func TestResolveUnknown(t *testing.T) {
	d := NewDirectory()
	if _, ok := d.Resolve("ZZZZ"); ok {
		t.Error("expected ZZZZ to be unresolved")
	}
	if _, ok := d.Resolve(""); ok {
		t.Error("expected empty code to be unresolved")
	}
}
