package discovery

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetgov/internal/model"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const salesYAML = `
assets:
  - key: sales.raw_orders
    name: raw orders
    type: source
    group: sales
    owners: [data-eng]
    tags:
      tier: bronze
  - key: sales.orders
    type: transform
    pipeline: nightly
    owners: [data-eng, analytics]
    dependencies: [sales.raw_orders]
    metadata:
      health_config:
        volume_threshold: 0.3
`

const blastCUE = `
asset: "blast.raw": {
	type:   "source"
	owners: ["mining"]
	tags: tier: "bronze"
}

asset: blast_summary: {
	key:          "blast.summary"
	type:         "sink"
	dependencies: ["blast.raw"]
}
`

func TestLoadDir_YAMLAndCUE(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a_blast.cue", blastCUE)
	writeFile(t, dir, "b_sales.yaml", salesYAML)

	cat, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, cat.Problems)
	assert.Equal(t, 2, cat.Files)

	keys := make([]string, 0, len(cat.Definitions))
	for _, d := range cat.Definitions {
		keys = append(keys, d.Key)
	}
	assert.Equal(t, []string{"blast.raw", "blast.summary", "sales.raw_orders", "sales.orders"}, keys)

	raw := cat.Definitions[0]
	assert.Equal(t, "source", raw.Type)
	assert.Equal(t, []string{"mining"}, raw.Owners)
	assert.Equal(t, map[string]string{"tier": "bronze"}, raw.Tags)
	assert.Equal(t, filepath.Join(dir, "a_blast.cue"), raw.Source.File)
	assert.Positive(t, raw.Source.Line)

	orders := cat.Definitions[3]
	assert.Equal(t, []string{"sales.raw_orders"}, orders.Dependencies)
	assert.Equal(t, "nightly", orders.Pipeline)
	assert.Contains(t, orders.Metadata, "health_config")
	assert.Equal(t, 10, orders.Source.Line)
}

func TestLoadDir_NoFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "README.md", "# nothing here")

	_, err := LoadDir(dir)
	assert.True(t, errors.Is(err, ErrNoDefinitions))
}

func TestLoadDir_MissingDirectory(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoDefinitions))
}

func TestLoadDir_InvalidDefinitionsReportedAndSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "assets.yaml", `
assets:
  - key: good.one
  - name: missing key
  - key: bad..key
  - key: typed.wrong
    type: lake
  - key: deps.bad
    dependencies: [""]
`)

	cat, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, cat.Definitions, 1)
	assert.Equal(t, "good.one", cat.Definitions[0].Key)
	require.Len(t, cat.Problems, 4)

	var le *LoadError
	require.True(t, errors.As(cat.Problems[0], &le))
	assert.Equal(t, "key", le.Field)
	assert.Equal(t, "is required", le.Message)
	assert.Equal(t, 4, le.Line)

	assert.Contains(t, cat.Problems[1].Error(), `"bad..key" is not a valid asset key`)
	assert.Contains(t, cat.Problems[2].Error(), `"lake" is not one of`)
	assert.Contains(t, cat.Problems[3].Error(), "dependencies[0]")
}

func TestLoadDir_DuplicateKeyFirstWins(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "assets:\n  - key: sales.orders\n    group: first\n")
	writeFile(t, dir, "b.yml", "assets:\n  - key: \" sales.orders \"\n    group: second\n")

	cat, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, cat.Definitions, 1)
	assert.Equal(t, "first", cat.Definitions[0].Group)
	require.Len(t, cat.Problems, 1)
	assert.Contains(t, cat.Problems[0].Error(), "duplicate asset key")
}

func TestLoadDir_BrokenFilesDoNotHideOthers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "assets: [unterminated\n")
	writeFile(t, dir, "broken.cue", "asset: x: {\n")
	writeFile(t, dir, "nested/ok.yaml", "assets:\n  - key: ok.asset\n")
	writeFile(t, dir, ".hidden/skip.yaml", "assets:\n  - key: hidden.asset\n")

	cat, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, cat.Files)
	require.Len(t, cat.Definitions, 1)
	assert.Equal(t, "ok.asset", cat.Definitions[0].Key)
	assert.Len(t, cat.Problems, 2)
}

func TestLoadCUE_NonConcreteFieldIsAnError(t *testing.T) {
	_, errs := loadCUE("defs.cue", []byte(`asset: "a.b": { type: string }`))
	require.Len(t, errs, 1)
	var le *LoadError
	require.True(t, errors.As(errs[0], &le))
	assert.Equal(t, "cue", le.Field)
}

func TestDefinition_ToSpec(t *testing.T) {
	d := Definition{
		Key:          "sales.orders",
		Type:         "TRANSFORM",
		Owners:       []string{"a"},
		Dependencies: []string{"sales.raw"},
	}
	spec := d.ToSpec()
	assert.Equal(t, "sales.orders", spec.AssetKey)
	assert.Equal(t, model.AssetTypeTransform, spec.Type)
	assert.Equal(t, []string{"sales.raw"}, spec.Dependencies)
}

func TestLoadError_Format(t *testing.T) {
	assert.Equal(t, "a.yaml:3:5: key: is required",
		(&LoadError{File: "a.yaml", Line: 3, Column: 5, Field: "key", Message: "is required"}).Error())
	assert.Equal(t, "a.yaml: file: denied",
		(&LoadError{File: "a.yaml", Field: "file", Message: "denied"}).Error())
	assert.Equal(t, "key: is required",
		(&LoadError{Field: "key", Message: "is required"}).Error())
}

func TestIsDefinitionFile(t *testing.T) {
	assert.True(t, IsDefinitionFile("x/assets.yaml"))
	assert.True(t, IsDefinitionFile("x/assets.YML"))
	assert.True(t, IsDefinitionFile("assets.cue"))
	assert.False(t, IsDefinitionFile("assets.json"))
	assert.False(t, IsDefinitionFile(".assets.yaml.swp"))
	assert.False(t, IsDefinitionFile(".assets.yaml"))
}
