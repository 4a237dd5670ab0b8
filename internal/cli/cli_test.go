package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func sqliteConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	body := fmt.Sprintf(`
database:
  driver: sqlite
  path: %s
  name: index
index:
  app_version: "2.0.0"
`, dir)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "qindexctl", cmd.Use)

	for _, name := range []string{"compile", "sync", "seed", "export"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "compile", "Person", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestCompileText(t *testing.T) {
	out, err := execute(t, "compile", "Person", "yearOfBirth > 1973", "--order", "name")
	require.NoError(t, err)
	assert.Contains(t, out, `INNER JOIN "qname_1"`)
	assert.Contains(t, out, "ORDER BY")
	assert.Contains(t, out, "Parameters:")
	assert.Contains(t, out, "INTEGER")
	assert.Contains(t, out, "1973")
}

func TestCompileJSONSQLite(t *testing.T) {
	out, err := execute(t, "compile", "Person", `name == "Ann Doe"`, "--dialect", "sqlite", "--format", "json")
	require.NoError(t, err)

	var compiled struct {
		SQL        string   `json:"sql"`
		Params     []any    `json:"params"`
		ParamTypes []string `json:"param_types"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &compiled), out)
	assert.Contains(t, compiled.SQL, "?")
	assert.NotContains(t, compiled.SQL, "$1")
	assert.Equal(t, []any{"Ann Doe"}, compiled.Params)
	assert.Equal(t, []string{"VARCHAR"}, compiled.ParamTypes)
}

func TestCompileErrors(t *testing.T) {
	_, err := execute(t, "compile", "Person", "--dialect", "oracle")
	assert.ErrorContains(t, err, "invalid dialect")

	_, err = execute(t, "compile", "Dog")
	assert.Error(t, err)

	_, err = execute(t, "compile", "Person", "name ===")
	assert.Error(t, err)

	_, err = execute(t, "compile", "Person", "--schema", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSyncSeedExport(t *testing.T) {
	cfg := sqliteConfig(t)

	out, err := execute(t, "sync", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "synchronized sqlite index: 18 qualified names")

	out, err = execute(t, "seed", "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, 10, strings.Count(out, "indexed "))
	assert.Contains(t, out, "indexed Cat felix")

	out, err = execute(t, "export", "--config", cfg, "--rows", "--limit", "2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# Index schema (sqlite)"), out)
	assert.Contains(t, out, "2.0.0")
	assert.Contains(t, out, "## entities")

	out, err = execute(t, "sync", "--config", cfg, "--format", "json")
	require.NoError(t, err)
	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &summary), out)
	assert.EqualValues(t, 18, summary["qnames"])
	assert.Equal(t, []any{"2.0.0"}, summary["app_versions"])
}

func TestSeedFromFile(t *testing.T) {
	cfg := sqliteConfig(t)
	file := filepath.Join(t.TempDir(), "cats.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
entities:
  - identity: tom
    type: Cat
    properties:
      name: Tom
`), 0o644))

	out, err := execute(t, "seed", "--config", cfg, "--file", file)
	require.NoError(t, err)
	assert.Equal(t, "indexed Cat tom\n", out)

	dump := filepath.Join(t.TempDir(), "dump.json")
	_, err = execute(t, "export", "--config", cfg, "--format", "json", "--output", dump)
	require.NoError(t, err)
	raw, err := os.ReadFile(dump)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"dialect": "sqlite"`)
}
