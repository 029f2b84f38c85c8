package service

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormatEUR renders d the de-DE way, e.g. "1.234,56 €".
func FormatEUR(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	b.WriteByte(',')
	b.WriteString(frac)
	b.WriteString(" €")
	return b.String()
}

func FormatDate(t time.Time) string {
	return t.Format("02.01.2006")
}
