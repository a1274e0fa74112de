package catalog

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/schaermu/cadsync/internal/office"
)

// ErrInvalidOffice is returned when an office lacks a region or directory name
var ErrInvalidOffice = errors.New("office must have a region and a directory name")

// Category is a kind of standards content
type Category int

const (
	Fonts Category = iota
	Pats
	Packages
	Settings
	PlotStyles
	Plotters
	PMP
)

// canonical is the order mappings are emitted in
var canonical = []Category{Fonts, Pats, Packages, Settings, PlotStyles, Plotters, PMP}

var names = map[Category]string{
	Fonts:      "Fonts",
	Pats:       "Pats",
	Packages:   "Packages",
	Settings:   "Settings",
	PlotStyles: "PlotStyles",
	Plotters:   "Plotters",
	PMP:        "PMP",
}

// All returns every category in canonical order
func All() []Category {
	out := make([]Category, len(canonical))
	copy(out, canonical)
	return out
}

// Standards returns the categories synced as office standards
func Standards() []Category {
	return []Category{Fonts, Pats, Packages, PlotStyles, Plotters, PMP}
}

// String returns the directory name of the category
func (c Category) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("unknown_category(%d)", int(c))
}

// ParseCategory parses a category name, ignoring case
func ParseCategory(s string) (Category, error) {
	for _, c := range canonical {
		if strings.EqualFold(names[c], strings.TrimSpace(s)) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown category: %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (c Category) MarshalText() ([]byte, error) {
	if _, ok := names[c]; !ok {
		return nil, fmt.Errorf("unknown category: %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Mapping pairs a path under the standards root with the path it lands at
// under the application folders. Both are relative.
type Mapping struct {
	Source   string
	Target   string
	Category Category
}

// Subpaths expands categories into source/target mappings for the office.
// Output follows canonical category order and overlay order within a
// category: later mappings override earlier ones on the same target file.
func Subpaths(categories []Category, o office.Office) ([]Mapping, error) {
	region := strings.TrimSpace(o.Region.DirectoryName)
	officeDir := strings.TrimSpace(o.DirectoryName)
	if region == "" || officeDir == "" {
		return nil, ErrInvalidOffice
	}

	want := make(map[Category]bool, len(categories))
	for _, c := range categories {
		if _, ok := names[c]; !ok {
			return nil, fmt.Errorf("unknown category: %d", int(c))
		}
		want[c] = true
	}

	var out []Mapping
	for _, c := range canonical {
		if !want[c] {
			continue
		}
		name := c.String()
		switch c {
		case PlotStyles, Plotters:
			out = append(out,
				Mapping{Source: filepath.Join(name, "_Common"), Target: name, Category: c},
				Mapping{Source: filepath.Join(name, region, "_Common"), Target: name, Category: c},
				Mapping{Source: filepath.Join(name, region, officeDir), Target: name, Category: c},
			)
		case PMP:
			// plot model parameters stay a subfolder of Plotters
			out = append(out, Mapping{
				Source:   filepath.Join(Plotters.String(), region, officeDir, "PMP"),
				Target:   filepath.Join(Plotters.String(), "PMP"),
				Category: c,
			})
		default:
			out = append(out, Mapping{Source: name, Target: name, Category: c})
		}
	}
	return out, nil
}
