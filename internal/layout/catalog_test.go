package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	dims, ok := c.Dimensions(PageA5Landscape)
	require.True(t, ok)
	assert.Equal(t, Dimensions{Width: 794, Height: 559}, dims)

	names := make([]PageSize, 0)
	for _, p := range c.PageSizes() {
		names = append(names, p.Name)
		assert.NotEmpty(t, p.Label)
	}
	assert.Equal(t, []PageSize{PageA4Portrait, PageA4Landscape, PageA5Portrait, PageA5Landscape, PageThermal80mm}, names)

	assert.True(t, c.HasField("sender_name"))
	assert.False(t, c.HasField("barcode"))
	assert.Equal(t, "barcode", c.Label("barcode"))
	assert.Len(t, c.Fields(), 16)

	sample := c.SampleData()
	assert.Equal(t, c.Label("amount"), sample["amount"])
}

func TestLoadCatalogOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
page_sizes:
  - name: receipt_58mm
    label: "58mm"
    width: 220
    height: 400
fields:
  - key: amount
    label: "المبلغ"
`), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	dims, ok := c.Dimensions("receipt_58mm")
	require.True(t, ok)
	assert.Equal(t, 220.0, dims.Width)
	assert.Equal(t, "amount", c.DefaultFieldKey())

	s := NewEditorSession(Template{PageSize: "receipt_58mm"}, WithCatalog(c))
	assert.Equal(t, dims, s.PageBounds())
	assert.Error(t, s.SetPageSize(PageA4Portrait))

	def, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Same(t, DefaultCatalog(), def)
}

func TestParseCatalogRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"no pages":       "fields: []",
		"zero width":     "page_sizes: [{name: a, width: 0, height: 10}]",
		"duplicate page": "page_sizes: [{name: a, width: 1, height: 1}, {name: a, width: 2, height: 2}]",
		"empty field":    "page_sizes: [{name: a, width: 1, height: 1}]\nfields: [{key: ' '}]",
		"duplicate key":  "page_sizes: [{name: a, width: 1, height: 1}]\nfields: [{key: x}, {key: x}]",
		"not yaml":       "page_sizes: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(doc))
			assert.Error(t, err)
		})
	}
}
