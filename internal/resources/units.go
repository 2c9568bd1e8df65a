package resources

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Unit is one step of a UnitTable.
type Unit struct {
	Name   string
	Factor float64 // bytes per unit
}

// UnitTable converts between byte counts and "<number> <unit>" strings.
// Units are kept in ascending factor order.
type UnitTable struct {
	units []Unit
}

// NewUnitTable creates a table from units in ascending factor order.
func NewUnitTable(units []Unit) UnitTable {
	cp := make([]Unit, len(units))
	copy(cp, units)
	return UnitTable{units: cp}
}

// DefaultUnitTable is B, KB, MB, GB, TB with a factor of 1024 per step.
func DefaultUnitTable() UnitTable {
	return NewUnitTable([]Unit{
		{"B", 1},
		{"KB", 1 << 10},
		{"MB", 1 << 20},
		{"GB", 1 << 30},
		{"TB", 1 << 40},
	})
}

var unitString = regexp.MustCompile(`^\s*([0-9]*\.?[0-9]+)\s*([A-Za-z]+)\s*$`)

// Factor returns the byte factor of a unit name, case-insensitively.
func (t UnitTable) Factor(name string) (float64, bool) {
	for _, u := range t.units {
		if strings.EqualFold(u.Name, name) {
			return u.Factor, true
		}
	}
	return 0, false
}

// Format renders bytes in the largest unit whose value is at least 1,
// rounded to two decimals: 8000000000 becomes "7.45 GB".
func (t UnitTable) Format(bytes float64) string {
	if len(t.units) == 0 {
		return formatNumber(bytes) + " B"
	}
	for i := len(t.units) - 1; i >= 0; i-- {
		u := t.units[i]
		if bytes >= u.Factor {
			return formatNumber(bytes/u.Factor) + " " + u.Name
		}
	}
	return formatNumber(bytes) + " " + t.units[0].Name
}

// Normalize parses a memory string. Strings whose unit is in the table are
// re-rendered in that unit ("16gb" becomes "16 GB"); anything else
// go-humanize understands ("16GiB", "4G", bare byte counts) is converted
// through Format. ok is false when neither parser accepts the value.
func (t UnitTable) Normalize(s string) (canonical string, bytes float64, ok bool) {
	if m := unitString.FindStringSubmatch(s); m != nil {
		if factor, known := t.Factor(m[2]); known {
			v, err := strconv.ParseFloat(m[1], 64)
			if err == nil {
				return formatNumber(v) + " " + t.canonicalName(m[2]), v * factor, true
			}
		}
	}
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return "", 0, false
	}
	return t.Format(float64(n)), float64(n), true
}

// GB converts a canonical memory string into gigabytes.
func (t UnitTable) GB(s string) (float64, bool) {
	_, bytes, ok := t.Normalize(s)
	if !ok {
		return 0, false
	}
	gb, known := t.Factor("GB")
	if !known {
		gb = 1 << 30
	}
	return bytes / gb, true
}

func (t UnitTable) canonicalName(name string) string {
	for _, u := range t.units {
		if strings.EqualFold(u.Name, name) {
			return u.Name
		}
	}
	return name
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
