// Package taxid validates national tax identifiers (14 digits, two trailing
// weighted-modulus-11 check digits).
package taxid

import (
	"strings"
	"unicode"
)

// Length is the number of digits in a tax identifier once formatting is removed.
const Length = 14

var (
	firstWeights  = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	secondWeights = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// Valid reports whether s is a well-formed identifier with correct check
// digits. Dots, slashes, dashes and spaces are ignored. Any other non-digit
// rune makes the identifier invalid.
func Valid(s string) bool {
	digits, ok := Strip(s)
	if !ok || len(digits) != Length {
		return false
	}
	if allSame(digits) {
		return false
	}

	if checkDigit(digits[:12], firstWeights) != digits[12] {
		return false
	}
	return checkDigit(digits[:13], secondWeights) == digits[13]
}

// Strip removes formatting characters and returns the digits of s. The second
// result is false when s contains anything other than digits and formatting.
func Strip(s string) ([]int, bool) {
	digits := make([]int, 0, Length)
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, int(r-'0'))
		case r == '.' || r == '/' || r == '-' || unicode.IsSpace(r):
		default:
			return nil, false
		}
	}
	return digits, true
}

func checkDigit(digits, weights []int) int {
	sum := 0
	for i, d := range digits {
		sum += d * weights[i]
	}
	remainder := sum % 11
	if remainder < 2 {
		return 0
	}
	return 11 - remainder
}

func allSame(digits []int) bool {
	for _, d := range digits[1:] {
		if d != digits[0] {
			return false
		}
	}
	return true
}
