package transcript

import "unicode/utf16"

// Offsets are counted in UTF-16 code units.

// Length returns the UTF-16 length of s.
func Length(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

func encode(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

func decode(u []uint16) string {
	return string(utf16.Decode(u))
}

// onBoundary reports whether i does not fall between the two halves of a surrogate pair.
func onBoundary(u []uint16, i int) bool {
	if i <= 0 || i >= len(u) {
		return true
	}
	return !(u[i] >= 0xDC00 && u[i] <= 0xDFFF && u[i-1] >= 0xD800 && u[i-1] <= 0xDBFF)
}

// splice replaces [start, end) of text with insert and returns the new
// text together with the replaced substring.
func splice(text string, start, end int, insert string) (string, string, error) {
	u := encode(text)
	if start < 0 || end < start || end > len(u) || !onBoundary(u, start) || !onBoundary(u, end) {
		return "", "", &RangeError{Subject: "replace text", Start: start, End: end, Length: len(u)}
	}
	removed := decode(u[start:end])
	out := make([]uint16, 0, len(u)-(end-start)+len(insert))
	out = append(out, u[:start]...)
	out = append(out, encode(insert)...)
	out = append(out, u[end:]...)
	return decode(out), removed, nil
}
