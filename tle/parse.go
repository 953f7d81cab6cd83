package tle

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Elements holds the numeric content of a two-line element set.
// Angles are in degrees, mean motion in revolutions per day.
type Elements struct {
	CatalogNumber    int
	Classification   byte
	IntlDesignator   string
	Epoch            time.Time
	MeanMotionDot    float64 // first derivative / 2, rev/day^2
	MeanMotionDDot   float64 // second derivative / 6, rev/day^3
	BStar            float64
	ElementSetNumber int

	Inclination      float64
	RAAN             float64
	Eccentricity     float64
	ArgPerigee       float64
	MeanAnomaly      float64
	MeanMotion       float64
	RevolutionNumber int
}

// Parse validates the lines and extracts their elements.
func Parse(line1, line2 string) (Elements, error) {
	if err := Validate(line1, line2); err != nil {
		return Elements{}, err
	}

	var (
		el  Elements
		err error
	)
	p := fieldParser{}

	el.CatalogNumber = p.int(line1, 2, 7)
	el.Classification = line1[7]
	el.IntlDesignator = strings.TrimSpace(line1[9:17])
	year := p.int(line1, 18, 20)
	day := p.float(line1, 20, 32)
	el.MeanMotionDot = p.float(line1, 33, 43)
	el.MeanMotionDDot = p.exp(line1, 44, 52)
	el.BStar = p.exp(line1, 53, 61)
	el.ElementSetNumber = p.int(line1, 64, 68)

	el.Inclination = p.float(line2, 8, 16)
	el.RAAN = p.float(line2, 17, 25)
	el.Eccentricity = p.float("."+strings.ReplaceAll(line2[26:33], " ", "0"), 0, -1)
	el.ArgPerigee = p.float(line2, 34, 42)
	el.MeanAnomaly = p.float(line2, 43, 51)
	el.MeanMotion = p.float(line2, 52, 63)
	el.RevolutionNumber = p.int(line2, 63, 68)

	if p.err != nil {
		return Elements{}, fmt.Errorf("%w: %v", ErrPatternMismatch, p.err)
	}
	if n2 := p.int(line2, 2, 7); n2 != el.CatalogNumber {
		return Elements{}, &ValidationError{
			Line:   2,
			Reason: ErrPatternMismatch,
			Detail: fmt.Sprintf("catalog number %d differs from line 1 (%d)", n2, el.CatalogNumber),
		}
	}

	el.Epoch, err = epochTime(year, day)
	if err != nil {
		return Elements{}, err
	}
	return el, nil
}

// epochTime converts a two-digit year and fractional day-of-year to UTC.
// Years 57-99 map to the 1900s, 00-56 to the 2000s.
func epochTime(yy int, day float64) (time.Time, error) {
	if day < 1 || day >= 367 {
		return time.Time{}, fmt.Errorf("%w: epoch day %.8f out of range", ErrPatternMismatch, day)
	}
	year := 2000 + yy
	if yy >= 57 {
		year = 1900 + yy
	}
	whole, frac := math.Modf(day - 1)
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	// Microsecond rounding keeps the 1e-8 day resolution of the field.
	offset := time.Duration(math.Round(frac*86400e6)) * time.Microsecond
	return start.AddDate(0, 0, int(whole)).Add(offset), nil
}

type fieldParser struct {
	err error
}

func (p *fieldParser) field(s string, from, to int) string {
	if to < 0 {
		to = len(s)
	}
	return strings.TrimSpace(s[from:to])
}

func (p *fieldParser) int(s string, from, to int) int {
	f := p.field(s, from, to)
	if f == "" {
		return 0
	}
	v, err := strconv.Atoi(f)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("columns %d-%d: %w", from+1, to, err)
	}
	return v
}

func (p *fieldParser) float(s string, from, to int) float64 {
	f := p.field(s, from, to)
	if f == "" || f == "." {
		return 0
	}
	v, err := strconv.ParseFloat(f, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("columns %d-%d: %w", from+1, to, err)
	}
	return v
}

// exp parses the implied-decimal exponent notation used for B* and the
// second derivative of mean motion, e.g. " 70541-4" = 0.70541e-4.
func (p *fieldParser) exp(s string, from, to int) float64 {
	f := s[from:to]
	sign := 1.0
	if f[0] == '-' {
		sign = -1
	}
	mantissa := strings.TrimSpace(f[1:6])
	if mantissa == "" {
		return 0
	}
	m, err := strconv.ParseFloat("0."+mantissa, 64)
	if err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("columns %d-%d: %w", from+1, to, err)
		}
		return 0
	}
	e, err := strconv.Atoi(strings.TrimSpace(f[6:8]))
	if err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("columns %d-%d: %w", from+1, to, err)
		}
		return 0
	}
	return sign * m * math.Pow10(e)
}
