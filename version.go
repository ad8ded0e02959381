package porg

import (
	"strconv"
	"strings"
)

// splitVersion breaks a version string into dot- and hyphen-separated
// components, e.g. "1.0-rc1" -> ["1", "0", "rc1"].
func splitVersion(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool {
		return r == '.' || r == '-'
	})
}

// CompareVersions orders two version strings the way the dependency
// resolver does everywhere: split on "." and "-", then compare
// component-wise. Components that both parse as integers compare
// numerically; otherwise the comparison is lexicographic. The first
// differing component decides. A missing trailing component compares as
// numeric zero against a numeric one; against a non-numeric one, the side
// carrying the extra non-numeric suffix sorts strictly lower (e.g.
// "1.0-rc1" < "1.0", since "rc1" loses to the missing third component).
func CompareVersions(a, b string) int {
	as := splitVersion(a)
	bs := splitVersion(b)
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		var ca, cb string
		aPresent := i < len(as)
		bPresent := i < len(bs)
		if aPresent {
			ca = as[i]
		}
		if bPresent {
			cb = bs[i]
		}
		if ca == cb {
			continue
		}
		ia, aIsNum := parseComponent(ca)
		ib, bIsNum := parseComponent(cb)
		if aIsNum && bIsNum {
			switch {
			case ia < ib:
				return -1
			case ia > ib:
				return 1
			default:
				continue
			}
		}
		// One side has a non-numeric component the other lacks entirely
		// (e.g. "rc1" against a version that simply ends here): the side
		// carrying the extra non-numeric suffix is the pre-release, and
		// sorts strictly lower than the bare version it qualifies.
		if !bPresent && !aIsNum {
			return -1 // a has the dangling non-numeric suffix
		}
		if !aPresent && !bIsNum {
			return 1 // b has the dangling non-numeric suffix
		}
		if ca < cb {
			return -1
		}
		return 1
	}
	return 0
}

// parseComponent treats a missing component as the numeric zero value so
// that trailing components compare consistently whether the shorter
// version is missing them entirely or the longer version's corresponding
// component happens to be "0".
func parseComponent(s string) (int64, bool) {
	if s == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// VersionLess reports whether a orders strictly before b under
// CompareVersions.
func VersionLess(a, b string) bool {
	return CompareVersions(a, b) < 0
}
