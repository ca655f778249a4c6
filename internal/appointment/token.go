package appointment

import (
	"fmt"
	"regexp"
	"strconv"
)

var tokenPattern = regexp.MustCompile(`^[AW](\d+)$`)

// Token is a patient-facing queue label and its shared ordinal.
type Token struct {
	Number  string
	Numeric int
}

// NextToken allocates the next token for a doctor-day. Both channels draw
// from one sequence: the next value is one past the highest of every stored
// numeric token and every parseable token number suffix.
func NextToken(l Ledger, ch Channel) Token {
	highest := 0
	for _, a := range l {
		if a.NumericToken > highest {
			highest = a.NumericToken
		}
		if m := tokenPattern.FindStringSubmatch(a.TokenNumber); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
				highest = n
			}
		}
	}
	next := highest + 1
	return Token{Number: FormatToken(ch, next), Numeric: next}
}

func FormatToken(ch Channel, n int) string {
	return fmt.Sprintf("%s%03d", ch.Prefix(), n)
}
