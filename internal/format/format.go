// Package format turns metric values into the display strings shown on tiles.
// All functions expect finite input.
package format

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// FormatSigned renders a flow in millions: "+$12.34M", "-$45.20M".
func FormatSigned(v float64) string {
	if v >= 0 {
		return fmt.Sprintf("+$%.2fM", v)
	}
	return fmt.Sprintf("-$%.2fM", -v)
}

// FormatLarge renders an amount in millions, switching to billions once the
// rounded amount reaches 1000.
func FormatLarge(v float64) string {
	sign, a := splitSign(v)
	if roundTo(a, 2) >= 1000 {
		return fmt.Sprintf("%s$%.2fB", sign, a/1000)
	}
	return fmt.Sprintf("%s$%.2fM", sign, a)
}

// scaledUnits are the FormatScaled buckets, smallest first.
var scaledUnits = []struct {
	suffix   string
	div      float64
	decimals int
}{
	{"", 1, 2},
	{"K", 1e3, 0},
	{"M", 1e6, 0},
	{"B", 1e9, 2},
	{"T", 1e12, 2},
}

// FormatScaled renders a USD amount with a K/M/B/T suffix. A value that
// rounds up to 1000 in one bucket is shown in the next: "$1M", not "$1000K".
func FormatScaled(v float64) string {
	sign, a := splitSign(v)
	u := scaledUnits[0]
	for _, next := range scaledUnits[1:] {
		if roundTo(a/u.div, u.decimals) < 1000 {
			break
		}
		u = next
	}
	return fmt.Sprintf("%s$%.*f%s", sign, u.decimals, a/u.div, u.suffix)
}

// FormatPercent renders v with the given number of decimals and a % sign.
func FormatPercent(v float64, decimals int) string {
	return fmt.Sprintf("%.*f%%", decimals, v)
}

// FormatChange renders a signed percentage: "+1.25%", "-0.40%".
func FormatChange(v float64) string {
	if v >= 0 {
		return fmt.Sprintf("+%.2f%%", v)
	}
	return fmt.Sprintf("%.2f%%", v)
}

// FormatThousands renders a count in thousands with one decimal: "1050.3K".
func FormatThousands(v float64) string {
	return fmt.Sprintf("%.1fK", v/1000)
}

// FormatMillions renders a count in millions with two decimals and a unit: "34.56M ETH".
func FormatMillions(v float64, unit string) string {
	s := fmt.Sprintf("%.2fM", v/1_000_000)
	if unit != "" {
		s += " " + unit
	}
	return s
}

// FormatPrice renders a USD price with thousands separators.
func FormatPrice(v float64) string {
	sign, a := splitSign(v)
	if roundTo(a, 2) >= 1_000 {
		return sign + "$" + addCommas(fmt.Sprintf("%.2f", roundTo(a, 2)))
	}
	if roundTo(a, 4) >= 1 {
		return fmt.Sprintf("%s$%.2f", sign, a)
	}
	return fmt.Sprintf("%s$%.4f", sign, a)
}

// FormatCount renders an integer count with thousands separators.
func FormatCount(v float64) string {
	return addCommas(fmt.Sprintf("%.0f", v))
}

// FormatDay renders a short day label: "Jan 22".
func FormatDay(t time.Time) string {
	return t.Format("Jan 2")
}

// FormatDate renders a full date: "Jan 22, 2026".
func FormatDate(t time.Time) string {
	return t.Format("Jan 2, 2006")
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

func splitSign(v float64) (string, float64) {
	if v < 0 {
		return "-", -v
	}
	return "", v
}

func addCommas(s string) string {
	parts := strings.SplitN(s, ".", 2)
	intPart := parts[0]
	n := len(intPart)
	if n <= 3 {
		if len(parts) == 2 {
			return intPart + "." + parts[1]
		}
		return intPart
	}
	var result []byte
	for i, c := range intPart {
		if i > 0 && (n-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	if len(parts) == 2 {
		return string(result) + "." + parts[1]
	}
	return string(result)
}
