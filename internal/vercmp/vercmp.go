// Package vercmp orders version strings the way Firefox and its add-on
// ecosystem do.
//
// A version is a dot-separated list of parts. Each part is read as up to four
// pieces: <number><string><number><string>. Parts compare piece by piece,
// numbers numerically and strings lexically, with two quirks inherited from
// the toolkit format: an empty string piece sorts after any non-empty one
// (so "1.0" is newer than "1.0pre"), and a part of "+" bumps the preceding
// number and reads as "pre" (so "1.0+" equals "1.1pre"). The literal "*" is
// the maximal part. Pieces that fail to parse as numbers count as zero.
package vercmp

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var partPattern = regexp.MustCompile(`^([-\d]+)?([^-\d]+)?([-\d]+)?(.+)?$`)

// part is one dotted segment split into its four pieces. hasA and hasC record
// whether the numeric pieces actually parsed; unparsed numbers compare as 0.
type part struct {
	numA int64
	strB string
	numC int64
	strD string
	hasA bool
	hasC bool
}

// Compare returns -1, 0 or 1 as a orders before, equal to or after b.
// Both arguments are compared part by part; a missing part reads as "".
func Compare(a, b string) int {
	if a == b {
		return 0
	}
	partsA := strings.Split(a, ".")
	partsB := strings.Split(b, ".")
	n := len(partsA)
	if len(partsB) > n {
		n = len(partsB)
	}
	for i := 0; i < n; i++ {
		var rawA, rawB string
		if i < len(partsA) {
			rawA = partsA[i]
		}
		if i < len(partsB) {
			rawB = partsB[i]
		}
		if r := comparePart(parsePart(rawA), parsePart(rawB)); r != 0 {
			return r
		}
	}
	return 0
}

func parsePart(s string) part {
	if s == "*" {
		return part{numA: math.MaxInt64, hasA: true}
	}
	m := partPattern.FindStringSubmatch(s)
	p := part{strB: m[2], strD: m[4]}
	p.numA, p.hasA = parseNum(m[1])
	p.numC, p.hasC = parseNum(m[3])
	if p.strB == "+" {
		if p.hasA {
			p.numA++
		}
		p.strB = "pre"
	}
	return p
}

// parseNum reads a leading optional sign plus digits and ignores the rest,
// matching the permissive integer parsing of the reference format. Values
// that overflow int64 saturate.
func parseNum(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	end := 0
	if s[0] == '-' || s[0] == '+' {
		end = 1
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	digits := s[:end]
	if digits == "" || digits == "-" || digits == "+" {
		return 0, false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		if digits[0] == '-' {
			return math.MinInt64, true
		}
		return math.MaxInt64, true
	}
	return n, true
}

func comparePart(a, b part) int {
	if r := compareNum(a.numA, a.hasA, b.numA, b.hasA); r != 0 {
		return r
	}
	if r := compareStr(a.strB, b.strB); r != 0 {
		return r
	}
	if r := compareNum(a.numC, a.hasC, b.numC, b.hasC); r != 0 {
		return r
	}
	return compareStr(a.strD, b.strD)
}

func compareNum(a int64, hasA bool, b int64, hasB bool) int {
	if !hasA {
		a = 0
	}
	if !hasB {
		b = 0
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compareStr orders string pieces with the empty string last, which is what
// makes a bare release newer than its pre-releases.
func compareStr(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	case a < b:
		return -1
	}
	return 1
}
