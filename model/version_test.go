package model

import "testing"

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{"1.2.0", Version{Major: 1, Minor: 2, Patch: 0, HasPatch: true}, false},
		{"1.2", Version{Major: 1, Minor: 2}, false},
		{"0.1.7", Version{Major: 0, Minor: 1, Patch: 7, HasPatch: true}, false},
		{"10.20.30", Version{Major: 10, Minor: 20, Patch: 30, HasPatch: true}, false},
		{" 1.2.3 ", Version{Major: 1, Minor: 2, Patch: 3, HasPatch: true}, false},
		{"1", Version{}, true},
		{"1.2.3.4", Version{}, true},
		{"1.x.0", Version{}, true},
		{"1.-2.0", Version{}, true},
		{"01.2.0", Version{}, true},
		{"", Version{}, true},
	}
	for _, tt := range tests {
		got, err := ParseVersion(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseVersion(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseVersion(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseVersion(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestVersionString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.2.0", "1.2.0"},
		{"1.2", "1.2"},
		{"0.0.0", "0.0.0"},
	}
	for _, tt := range tests {
		v, err := ParseVersion(tt.in)
		if err != nil {
			t.Fatalf("ParseVersion(%q): %v", tt.in, err)
		}
		if got := v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestVersionBump(t *testing.T) {
	tests := []struct {
		in   string
		term VersionTerm
		want string
	}{
		{"1.2.0", TermMinor, "1.3.0"},
		{"1.2.9", TermMinor, "1.3.0"},
		{"1.2.0", TermMajor, "2.0.0"},
		{"1.2.3", TermPatch, "1.2.4"},
		{"1.2", TermMinor, "1.3"},
		{"1.2", TermMajor, "2.0"},
		{"1.2", TermPatch, "1.2.1"},
	}
	for _, tt := range tests {
		v, err := ParseVersion(tt.in)
		if err != nil {
			t.Fatalf("ParseVersion(%q): %v", tt.in, err)
		}
		if got := v.Bump(tt.term).String(); got != tt.want {
			t.Errorf("%s bump %s = %s, want %s", tt.in, tt.term, got, tt.want)
		}
	}
}

func TestVersionLess(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"1.2.0", "1.3.0", true},
		{"1.3.0", "1.2.0", false},
		{"1.2.0", "1.2.0", false},
		{"1.2.0", "2.0.0", true},
		{"1.2.3", "1.2.4", true},
		{"2.0.0", "1.9.9", false},
	}
	for _, tt := range tests {
		a, _ := ParseVersion(tt.a)
		b, _ := ParseVersion(tt.b)
		if got := a.Less(b); got != tt.want {
			t.Errorf("%s < %s = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
