package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hireline/internal/config"
	"hireline/internal/notify"
	"hireline/internal/ocr"
)

func TestOpenWithDefaults(t *testing.T) {
	ws := t.TempDir()
	rt, err := Open(context.Background(), Options{Workspace: ws, TenantID: "acme"})
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, "acme", rt.Config.Tenant.ID)
	assert.NotNil(t, rt.Engine.Storage)
	assert.NotNil(t, rt.Engine.Metrics)
	assert.Nil(t, rt.Engine.OCR.Extractor)
	assert.IsType(t, notify.Nop{}, rt.Engine.Notifier)
	assert.DirExists(t, filepath.Join(ws, ".hireline", "documents"))
}

func TestOpenWiresCollaboratorsFromConfig(t *testing.T) {
	ws := t.TempDir()
	yml := config.GenerateDefault("acme")
	yml = strings.Replace(yml, "ocr:\n  url: \"\"", "ocr:\n  url: http://ocr.local/extract", 1)
	yml = strings.Replace(yml, "contract:\n    url: \"\"", "contract:\n    url: http://contracts.local/drafts", 1)
	yml = strings.Replace(yml, "notifications: []", "notifications:\n    - url: http://hooks.local", 1)
	require.NoError(t, os.WriteFile(config.Path(ws), []byte(yml), 0o644))

	rt, err := Open(context.Background(), Options{Workspace: ws})
	require.NoError(t, err)
	defer rt.Close()

	assert.IsType(t, ocr.HTTPExtractor{}, rt.Engine.OCR.Extractor)
	assert.IsType(t, &notify.Webhooks{}, rt.Engine.Notifier)
	assert.IsType(t, &notify.HTTPContracts{}, rt.Engine.Contracts)
}

func TestOpenRequiresTenant(t *testing.T) {
	_, err := Open(context.Background(), Options{Workspace: t.TempDir()})
	require.Error(t, err)
}
