package permission

// Match reports whether s matches pattern in full.
//
// '*' matches zero or more characters and '?' matches exactly one. There is
// no escaping and no special treatment of path separators, so "git *" covers
// "git push origin main" as well as "git log --format=a/b".
func Match(pattern, s string) bool {
	p := []rune(pattern)
	r := []rune(s)

	pi, si := 0, 0
	star, mark := -1, 0
	for si < len(r) {
		switch {
		case pi < len(p) && p[pi] == '*':
			star = pi
			mark = si
			pi++
		case pi < len(p) && (p[pi] == '?' || p[pi] == r[si]):
			pi++
			si++
		case star >= 0:
			// Let the last star absorb one more character and retry.
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}

	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}

// MatchAny returns the first pattern that matches s.
func MatchAny(patterns []string, s string) (string, bool) {
	for _, pattern := range patterns {
		if Match(pattern, s) {
			return pattern, true
		}
	}
	return "", false
}
