package normalizer

import (
	"fmt"
	"strings"

	"leadsync/internal/models"
)

// DigitsOnly strips everything but digits from a phone value.
func DigitsOnly(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteByte(byte(r))
		}
	}
	return b.String()
}

// PhoneTail returns the trailing digits used for matching. Comparing tails
// tolerates country/area-code formatting drift between the CRM and cells the
// team typed by hand.
func PhoneTail(raw string) string {
	digits := DigitsOnly(raw)
	if len(digits) <= models.PhoneTailLen {
		return digits
	}
	return digits[len(digits)-models.PhoneTailLen:]
}

// SamePhone reports whether two phone values refer to the same number.
// Both tails must be non-empty; 8-digit landlines compare against the last 8.
func SamePhone(a, b string) bool {
	ta, tb := PhoneTail(a), PhoneTail(b)
	if ta == "" || tb == "" {
		return false
	}
	if ta == tb {
		return true
	}
	// One side may predate the ninth mobile digit.
	short := models.PhoneTailLen - 1
	if len(ta) >= short && len(tb) >= short {
		return ta[len(ta)-short:] == tb[len(tb)-short:]
	}
	return false
}

// FormatPhone renders a digits-only Brazilian number as (DD)NNNNN-NNNN for
// display, used when a lead arrives without a name.
func FormatPhone(raw string) string {
	digits := DigitsOnly(raw)
	// Drop the country code when present.
	if len(digits) >= 12 && strings.HasPrefix(digits, "55") {
		digits = digits[2:]
	}
	if len(digits) < 10 {
		return digits
	}
	ddd := digits[:2]
	local := digits[2:]
	split := len(local) - 4
	return fmt.Sprintf("(%s)%s-%s", ddd, local[:split], local[split:])
}
