package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameCmd(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"name", "Res/Prefabs", "UI/Main Menu"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "res.prefabs.ab\nui.main_menu.ab\n", out.String())
}

func TestNameCmd_File(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"name", "--file", "Res/Prefabs/hero.prefab"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "res.prefabs.ab\n", out.String())
}

const testManifest = `
bundles:
  ui.ab:
    version: "2"
    dependencies: [shared.ab]
  shared.ab:
    version: "1"
`

// writeBundleDir lays out a dir source and returns the path of a config
// file pointing at it.
func writeBundleDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"manifest.yaml": testManifest,
		"ui.ab":         "ui-bytes",
		"shared.ab":     "shared",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}
	cfgFile := filepath.Join(t.TempDir(), "abload.yaml")
	cfg := "source:\n  kind: dir\n  root: " + root + "\n  target: manifest.yaml\nlog_level: error\n"
	require.NoError(t, os.WriteFile(cfgFile, []byte(cfg), 0o644))
	return cfgFile
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLoadCmd(t *testing.T) {
	cfgFile := writeBundleDir(t)

	out, err := execute(t, "load", "--config", cfgFile, "ui.ab")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"shared.ab", "loaded", "6", "bytes"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"ui.ab", "loaded", "8", "bytes"}, strings.Fields(lines[1]))
}

func TestLoadCmd_MissingBundle(t *testing.T) {
	cfgFile := writeBundleDir(t)

	_, err := execute(t, "load", "--config", cfgFile, "missing.ab")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preload missing.ab")
}

func TestGraphCmd(t *testing.T) {
	cfgFile := writeBundleDir(t)

	out, err := execute(t, "graph", "--config", cfgFile, "--format", "order", "ui.ab")
	require.NoError(t, err)
	assert.Equal(t, "shared.ab\nui.ab\n", out)

	out, err = execute(t, "graph", "--config", cfgFile, "ui.ab")
	require.NoError(t, err)
	assert.Contains(t, out, "digraph abload {")
	assert.Contains(t, out, "n1 -> n0;")

	out, err = execute(t, "graph", "--config", cfgFile, "-f", "mermaid", "ui.ab")
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")

	_, err = execute(t, "graph", "--config", cfgFile, "-f", "svg", "ui.ab")
	assert.ErrorContains(t, err, `unknown format "svg"`)
}
