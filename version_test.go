package porg

import "testing"

func TestCompareVersions(t *testing.T) {
	for _, tt := range []struct {
		a, b string
		want int
	}{
		{a: "1.0", b: "1.0", want: 0},
		{a: "1.0", b: "1.1", want: -1},
		{a: "1.1", b: "1.0", want: 1},
		{a: "1.2.3", b: "1.2.10", want: -1},
		{a: "2.0", b: "1.9.9", want: 1},
		{a: "1.0-rc1", b: "1.0", want: -1},
		{a: "1.0", b: "1.0-rc1", want: 1},
		{a: "1.0.0", b: "1.0", want: 0},
		{a: "1.0-2", b: "1.0-10", want: -1},
	} {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			got := CompareVersions(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("CompareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestVersionLess(t *testing.T) {
	if !VersionLess("1.0", "1.1") {
		t.Error("expected 1.0 < 1.1")
	}
	if VersionLess("1.1", "1.0") {
		t.Error("expected 1.1 not < 1.0")
	}
	if VersionLess("1.0", "1.0") {
		t.Error("expected 1.0 not < 1.0")
	}
}

func TestIsCriticalPrefix(t *testing.T) {
	for _, tt := range []struct {
		prefix string
		want   bool
	}{
		{"/", true},
		{"/usr", true},
		{"/usr/", true},
		{"/opt/hello", false},
		{"", true},
	} {
		if got := IsCriticalPrefix(tt.prefix); got != tt.want {
			t.Errorf("IsCriticalPrefix(%q) = %v, want %v", tt.prefix, got, tt.want)
		}
	}
}
