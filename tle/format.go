package tle

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Format encodes el into a pair of element lines with valid checksums.
// Angles are normalised into [0,360); the eccentricity must be in [0,1).
func Format(el Elements) (string, string, error) {
	if el.Eccentricity < 0 || el.Eccentricity >= 1 {
		return "", "", fmt.Errorf("%w: eccentricity %g cannot be encoded", ErrPatternMismatch, el.Eccentricity)
	}
	if el.MeanMotion <= 0 || el.MeanMotion >= 100 {
		return "", "", fmt.Errorf("%w: mean motion %g rev/day cannot be encoded", ErrPatternMismatch, el.MeanMotion)
	}
	if el.CatalogNumber < 0 || el.CatalogNumber > 99999 {
		return "", "", fmt.Errorf("%w: catalog number %d cannot be encoded", ErrPatternMismatch, el.CatalogNumber)
	}

	class := el.Classification
	if class == 0 {
		class = 'U'
	}
	designator := el.IntlDesignator
	if designator == "" {
		designator = "00001A"
	}
	if len(designator) > 8 {
		designator = designator[:8]
	}

	epoch := el.Epoch.UTC()
	yy := epoch.Year() % 100
	startOfYear := time.Date(epoch.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	day := 1 + epoch.Sub(startOfYear).Hours()/24

	var b strings.Builder
	fmt.Fprintf(&b, "1 %05d%c %-8s %02d%012.8f %s %s %s 0 %4d",
		el.CatalogNumber,
		class,
		designator,
		yy,
		day,
		formatDot(el.MeanMotionDot),
		formatExp(el.MeanMotionDDot),
		formatExp(el.BStar),
		el.ElementSetNumber%10000,
	)
	line1 := b.String()
	line1 += fmt.Sprintf("%d", Checksum(line1))

	b.Reset()
	fmt.Fprintf(&b, "2 %05d %8.4f %8.4f %07d %8.4f %8.4f %11.8f%5d",
		el.CatalogNumber,
		wrapDegrees(el.Inclination),
		wrapDegrees(el.RAAN),
		min(int(math.Round(el.Eccentricity*1e7)), 9999999),
		wrapDegrees(el.ArgPerigee),
		wrapDegrees(el.MeanAnomaly),
		el.MeanMotion,
		el.RevolutionNumber%100000,
	)
	line2 := b.String()
	line2 += fmt.Sprintf("%d", Checksum(line2))

	if err := Validate(line1, line2); err != nil {
		return "", "", err
	}
	return line1, line2, nil
}

// formatDot renders the first derivative of mean motion as " .00003432".
func formatDot(v float64) string {
	s := fmt.Sprintf("%.8f", math.Abs(v))
	s = strings.TrimPrefix(s, "0")
	if len(s) != 9 {
		return " .00000000"
	}
	if v < 0 {
		return "-" + s
	}
	return " " + s
}

// formatExp renders v in the implied-decimal exponent notation, e.g.
// 0.70541e-4 -> " 70541-4".
func formatExp(v float64) string {
	if v == 0 {
		return " 00000+0"
	}
	sign := " "
	if v < 0 {
		sign = "-"
		v = -v
	}
	exp := int(math.Floor(math.Log10(v))) + 1
	mant := int(math.Round(v / math.Pow10(exp) * 1e5))
	if mant >= 100000 {
		mant /= 10
		exp++
	}
	if exp < -9 {
		return " 00000+0"
	}
	if exp > 9 {
		exp, mant = 9, 99999
	}
	expSign := "+"
	if exp < 0 {
		expSign = "-"
	}
	return fmt.Sprintf("%s%05d%s%d", sign, mant, expSign, absInt(exp))
}

func wrapDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	// %8.4f would round 359.99996 up to 360.0000, which is out of range.
	if deg >= 359.99995 {
		deg = 0
	}
	return deg
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
