package integrations

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `
integrations:
  - id: slack
    name: Slack
    description: Agent notifications and approvals
    category: Messaging
    status: connected
  - id: github
    name: GitHub
    description: Repository events for workflow triggers
    category: Development
    status: pending
  - id: airtable
    name: Airtable
    category: Storage
`

func TestParseCatalog(t *testing.T) {
	cat, err := ParseCatalog([]byte(sampleCatalog))
	require.NoError(t, err)
	require.Len(t, cat.Integrations, 3)

	// Sorted by display name.
	assert.Equal(t, "airtable", cat.Integrations[0].ID)
	assert.Equal(t, "github", cat.Integrations[1].ID)
	assert.Equal(t, "slack", cat.Integrations[2].ID)

	// Missing status defaults to disconnected.
	assert.Equal(t, StatusDisconnected, cat.Integrations[0].Status)
}

func TestParseCatalogRejectsDuplicateID(t *testing.T) {
	_, err := ParseCatalog([]byte(`
integrations:
  - id: slack
    name: Slack
  - id: slack
    name: Slack again
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id")
}

func TestParseCatalogRejectsMissingFields(t *testing.T) {
	_, err := ParseCatalog([]byte("integrations:\n  - name: No ID\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing id")

	_, err = ParseCatalog([]byte("integrations:\n  - id: nameless\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing name")
}

func TestParseCatalogRejectsUnknownStatus(t *testing.T) {
	_, err := ParseCatalog([]byte(`
integrations:
  - id: slack
    name: Slack
    status: maybe
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")
}

func TestParseCatalogRejectsMalformedYAML(t *testing.T) {
	_, err := ParseCatalog([]byte("integrations: [unclosed"))
	assert.Error(t, err)
}

func TestLoadCatalogMissingFileYieldsEmptyCatalog(t *testing.T) {
	cat, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cat.Integrations)
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "integrations.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o644))

	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Len(t, cat.Integrations, 3)
}

func TestByCategory(t *testing.T) {
	cat, err := ParseCatalog([]byte(sampleCatalog + `
  - id: uncategorized-tool
    name: Mystery
`))
	require.NoError(t, err)

	groups := cat.ByCategory()
	assert.Len(t, groups["messaging"], 1)
	assert.Len(t, groups["development"], 1)
	assert.Len(t, groups["storage"], 1)
	assert.Len(t, groups["other"], 1, "entries without a category land in other")
}

func TestConnected(t *testing.T) {
	cat, err := ParseCatalog([]byte(sampleCatalog))
	require.NoError(t, err)

	connected := cat.Connected()
	require.Len(t, connected, 1)
	assert.Equal(t, "slack", connected[0].ID)
}
