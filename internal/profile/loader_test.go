package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_PreservesOrder(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "profiles.json", `{
    "rocket": {
      "temp": {"main": {"displayName": "Temperature", "unit": "C"}},
      "alt":  {"main": {"displayName": "Altitude"}, "flight": {"unit": "m"}}
    },
    "ground": {
      "pressure": {"main": {"unit": "hPa"}}
    }
  }`)

	entries, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, Entry{Origin: "rocket", Field: "temp", Profile: "main",
		Info: map[string]any{"displayName": "Temperature", "unit": "C"}}, entries[0])
	assert.Equal(t, "rocket.alt", entries[1].Key())
	assert.Equal(t, "main", entries[1].Profile)
	assert.Equal(t, "flight", entries[2].Profile)
	assert.Equal(t, "ground.pressure", entries[3].Key())
}

func TestLoadConfig_ImportsMergedFirst(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "shared/common.yaml", `
ground:
  pressure:
    main: {unit: hPa}
`)
	path := writeFile(t, dir, "profiles.yaml", `
imports: [shared/common.yaml]
rocket:
  temp:
    main: {unit: C}
`)

	entries, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "ground.pressure", entries[0].Key())
	assert.Equal(t, "rocket.temp", entries[1].Key())
}

func TestLoadConfig_DiamondImportLoadedOnce(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "d.json", `{"o": {"f": {"p": {}}}}`)
	writeFile(t, dir, "b.json", `{"imports": ["d.json"]}`)
	writeFile(t, dir, "c.json", `{"imports": ["d.json"]}`)
	path := writeFile(t, dir, "a.json", `{"imports": ["b.json", "c.json"]}`)

	entries, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	self := writeFile(t, dir, "self.json", `{"imports": ["self.json"]}`)
	writeFile(t, dir, "x.json", `{"imports": ["y.json"]}`)
	writeFile(t, dir, "y.json", `{"imports": ["x.json"]}`)
	missing := writeFile(t, dir, "missing.json", `{"imports": ["nope.json"]}`)
	badOrigin := writeFile(t, dir, "bad_origin.json", `{"rocket": 5}`)
	badInfo := writeFile(t, dir, "bad_info.json", `{"rocket": {"temp": {"main": "x"}}}`)
	badImports := writeFile(t, dir, "bad_imports.json", `{"imports": "x.json"}`)
	notMap := writeFile(t, dir, "list.json", `[1, 2]`)
	malformed := writeFile(t, dir, "malformed.json", `{"rocket": `)

	cases := map[string]string{
		"self import":    self,
		"cycle":          filepath.Join(dir, "x.json"),
		"missing import": missing,
		"missing file":   filepath.Join(dir, "absent.json"),
		"bad origin":     badOrigin,
		"bad info":       badInfo,
		"bad imports":    badImports,
		"not a mapping":  notMap,
		"malformed":      malformed,
	}
	for name, path := range cases {
		t.Run(name, func(t *testing.T) {
			entries, err := LoadConfig(path)
			require.ErrorIs(t, err, ErrConfig)
			assert.Nil(t, entries)
		})
	}
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.yaml", "")

	entries, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
