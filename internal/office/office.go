package office

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

var (
	// ErrMissingRegion is returned when office data has no region directory
	ErrMissingRegion = errors.New("office data is missing a region directory")
	// ErrMissingOfficeDir is returned when office data has no office directory
	ErrMissingOfficeDir = errors.New("office data is missing an office directory")
)

// FallbackID identifies the office used when nothing else is selected
const FallbackID = "ACA-Toronto55"

// regionNames maps region directory codes to display names
var regionNames = map[string]string{
	"AAE": "AAE",
	"ACA": "Canada",
	"AGB": "Great Britain",
	"AHK": "AHK",
	"AIE": "AIE",
	"AIN": "India",
	"AMX": "Mexico",
	"AUS": "USA",
}

// Region groups offices that share a standards subtree
type Region struct {
	DirectoryName string
	DisplayName   string
}

// NewRegion resolves the display name for a region code. Unknown codes
// display as themselves.
func NewRegion(code string) Region {
	name, ok := regionNames[code]
	if !ok {
		name = code
	}
	return Region{DirectoryName: code, DisplayName: name}
}

// Data is the wire form of one office entry
type Data struct {
	RegionDir   string `json:"regionDir"`
	OfficeDir   string `json:"officeDir"`
	DisplayName string `json:"displayName,omitempty"`
}

// Office is a physical office whose standards live under
// {category}/{region}/{office}
type Office struct {
	ID            string
	DirectoryName string
	DisplayName   string
	Region        Region
}

// New validates data and builds an Office
func New(d Data) (Office, error) {
	officeDir := strings.TrimSpace(d.OfficeDir)
	regionDir := strings.TrimSpace(d.RegionDir)
	if officeDir == "" {
		return Office{}, ErrMissingOfficeDir
	}
	if regionDir == "" {
		return Office{}, ErrMissingRegion
	}

	display := strings.TrimSpace(d.DisplayName)
	if display == "" {
		display = officeDir
	}

	return Office{
		ID:            regionDir + "-" + officeDir,
		DirectoryName: officeDir,
		DisplayName:   display,
		Region:        NewRegion(regionDir),
	}, nil
}

// Fallback returns the default office
func Fallback() Office {
	o, _ := New(Data{RegionDir: "ACA", OfficeDir: "Toronto55", DisplayName: "Toronto"})
	return o
}

// String formats the office the way selection lists show it
func (o Office) String() string {
	return fmt.Sprintf("%s - %s", strings.ToUpper(o.Region.DisplayName), o.DisplayName)
}

// Data returns the wire form of the office
func (o Office) Data() Data {
	return Data{RegionDir: o.Region.DirectoryName, OfficeDir: o.DirectoryName, DisplayName: o.DisplayName}
}

// Parse decodes a JSON array of office entries. Key matching is case
// insensitive. Entries missing a region or office directory are skipped with
// a warning.
func Parse(data []byte, logger *slog.Logger) (List, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, errors.New("office data is empty")
	}

	var entries []Data
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode office data: %w", err)
	}

	list := make(List, 0, len(entries))
	for _, e := range entries {
		o, err := New(e)
		if err != nil {
			logger.Warn("skipping office entry", "office_dir", e.OfficeDir, "region_dir", e.RegionDir, "error", err)
			continue
		}
		list = append(list, o)
	}
	return list, nil
}

// List is an ordered set of offices
type List []Office

// Sort orders by region display name, then office display name
func (l List) Sort() {
	sort.SliceStable(l, func(i, j int) bool {
		if l[i].Region.DisplayName != l[j].Region.DisplayName {
			return l[i].Region.DisplayName < l[j].Region.DisplayName
		}
		return l[i].DisplayName < l[j].DisplayName
	})
}

// ByID finds an office by its REGION-Office identifier
func (l List) ByID(id string) (Office, bool) {
	for _, o := range l {
		if o.ID == id {
			return o, true
		}
	}
	return Office{}, false
}

// ByIDOrFallback finds an office by id, returning Fallback when absent
func (l List) ByIDOrFallback(id string) Office {
	if o, ok := l.ByID(id); ok {
		return o
	}
	return l.Fallback()
}

// ByName finds an office by directory name and region code, ignoring case
func (l List) ByName(dir, region string) (Office, bool) {
	for _, o := range l {
		if strings.EqualFold(o.DirectoryName, dir) && strings.EqualFold(o.Region.DirectoryName, region) {
			return o, true
		}
	}
	return Office{}, false
}

// ByRegion returns the offices whose region display name matches, ordered
// by their list label
func (l List) ByRegion(region string) List {
	var out List
	for _, o := range l {
		if strings.EqualFold(o.Region.DisplayName, region) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// Fallback returns the list's entry for FallbackID, or the built-in default
func (l List) Fallback() Office {
	if o, ok := l.ByID(FallbackID); ok {
		return o
	}
	return Fallback()
}
