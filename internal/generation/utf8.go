package generation

import "unicode/utf8"

// completePrefix returns the length of the longest prefix of b that does not
// end inside an incomplete UTF-8 sequence. Invalid bytes count as complete so
// they are passed through instead of being held forever.
func completePrefix(b []byte) int {
	n := len(b)
	for i := n - 1; i >= 0 && i >= n-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return n
		}
		return i
	}
	return n
}

// runeFloor moves i back to the start of the rune containing s[i].
func runeFloor(s string, i int) int {
	if i <= 0 {
		return 0
	}
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
