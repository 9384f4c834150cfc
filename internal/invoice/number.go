package invoice

import "strings"

// NextNumber increments the trailing digit run of an invoice number while
// preserving any non-numeric prefix and zero padding. The width only grows
// when the digits overflow: "INV-0007" -> "INV-0008", "INV-099" -> "INV-100",
// "INV-999" -> "INV-1000". An empty number starts the default sequence; a
// number without digits gets a counter appended.
func NextNumber(current string) string {
	if current == "" {
		return "INV-0001"
	}
	i := len(current)
	for i > 0 && current[i-1] >= '0' && current[i-1] <= '9' {
		i--
	}
	if i == len(current) {
		return current + "-2"
	}
	return current[:i] + incrementDigits(current[i:])
}

// incrementDigits adds one to a decimal string, keeping its width unless the
// carry spills past the leftmost digit.
func incrementDigits(digits string) string {
	out := []byte(digits)
	for pos := len(out) - 1; pos >= 0; pos-- {
		if out[pos] < '9' {
			out[pos]++
			return string(out)
		}
		out[pos] = '0'
	}
	var b strings.Builder
	b.WriteByte('1')
	b.Write(out)
	return b.String()
}
