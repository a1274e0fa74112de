package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/schaermu/cadsync/internal/office"
)

func toronto(t *testing.T) office.Office {
	t.Helper()
	o, err := office.New(office.Data{RegionDir: "ACA", OfficeDir: "Toronto55", DisplayName: "Toronto"})
	require.NoError(t, err)
	return o
}

func TestSubpaths_PlotStylesOrder(t *testing.T) {
	got, err := Subpaths([]Category{PlotStyles}, toronto(t))
	require.NoError(t, err)

	want := []Mapping{
		{Source: filepath.Join("PlotStyles", "_Common"), Target: "PlotStyles", Category: PlotStyles},
		{Source: filepath.Join("PlotStyles", "ACA", "_Common"), Target: "PlotStyles", Category: PlotStyles},
		{Source: filepath.Join("PlotStyles", "ACA", "Toronto55"), Target: "PlotStyles", Category: PlotStyles},
	}
	assert.Equal(t, want, got)
}

func TestSubpaths_PMP(t *testing.T) {
	got, err := Subpaths([]Category{PMP}, toronto(t))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, filepath.Join("Plotters", "ACA", "Toronto55", "PMP"), got[0].Source)
	assert.Equal(t, filepath.Join("Plotters", "PMP"), got[0].Target)
}

func TestSubpaths_CanonicalOrderAndDedup(t *testing.T) {
	got, err := Subpaths([]Category{PMP, Fonts, Plotters, Fonts, Settings}, toronto(t))
	require.NoError(t, err)

	var cats []Category
	for _, m := range got {
		cats = append(cats, m.Category)
	}
	assert.Equal(t, []Category{Fonts, Settings, Plotters, Plotters, Plotters, PMP}, cats)
	assert.Equal(t, Mapping{Source: "Fonts", Target: "Fonts", Category: Fonts}, got[0])
}

func TestSubpaths_Standards(t *testing.T) {
	got, err := Subpaths(Standards(), toronto(t))
	require.NoError(t, err)
	// Fonts, Pats, Packages, 3x PlotStyles, 3x Plotters, PMP
	assert.Len(t, got, 10)
	for _, m := range got {
		assert.NotEqual(t, Settings, m.Category)
	}
}

func TestSubpaths_Errors(t *testing.T) {
	_, err := Subpaths([]Category{Fonts}, office.Office{DirectoryName: "Toronto55"})
	assert.ErrorIs(t, err, ErrInvalidOffice)

	_, err = Subpaths([]Category{Category(42)}, toronto(t))
	assert.Error(t, err)

	got, err := Subpaths(nil, toronto(t))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseCategory(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{in: "Fonts", want: Fonts},
		{in: "plotstyles", want: PlotStyles},
		{in: " PMP ", want: PMP},
		{in: "Cache", wantErr: true},
	} {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseCategory(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCategory_YAML(t *testing.T) {
	var doc struct {
		Categories []Category `yaml:"categories"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("categories: [fonts, Plotters]\n"), &doc))
	assert.Equal(t, []Category{Fonts, Plotters}, doc.Categories)

	require.Error(t, yaml.Unmarshal([]byte("categories: [bogus]\n"), &doc))
}
