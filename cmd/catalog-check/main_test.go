package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_EmbeddedCatalog(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), &out, &options{quantity: 1000}))

	got := out.String()
	assert.Contains(t, got, "embedded catalog: 4 providers OK")
	assert.Contains(t, got, "text (1000 units)")
	assert.Contains(t, got, "image (1000 units)")

	// cheapest first: the free local model leads the text table
	text := got[strings.Index(got, "text (1000 units)"):]
	lines := strings.Split(text, "\n")
	require.Greater(t, len(lines), 2)
	assert.True(t, strings.HasPrefix(lines[2], "local"), lines[2])
}

func TestRun_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("providers: [{id: openai, base_weight: -1}]\n"), 0o600))

	err := run(context.Background(), &bytes.Buffer{}, &options{file: path, quantity: 10})
	assert.ErrorContains(t, err, "is invalid")
}

func TestRun_NegativeQuantity(t *testing.T) {
	err := run(context.Background(), &bytes.Buffer{}, &options{quantity: -1})
	assert.Error(t, err)
}

func TestRootCmd_Flags(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--quantity", "10"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "text (10 units)")
}
