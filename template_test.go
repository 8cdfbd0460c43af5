package notifykit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notifykit"
)

func TestTemplateRender(t *testing.T) {
	t.Parallel()

	registry := notifykit.NewTemplateRegistry()
	registry.Register(notifykit.Template{
		ID:      "backup-complete",
		Type:    notifykit.TypeBackup,
		Subject: "Backup {{name}} finished",
		Body:    "Backup {{name}} completed in {{ duration }}.",
	})

	rendered, err := registry.Render("backup-complete", map[string]string{
		"name":     "nightly",
		"duration": "4m12s",
	})
	require.NoError(t, err)

	assert.Equal(t, "Backup nightly finished", rendered.Subject)
	assert.Equal(t, "Backup nightly completed in 4m12s.", rendered.Body)
}

func TestTemplateRenderMissingVariable(t *testing.T) {
	t.Parallel()

	registry := notifykit.NewTemplateRegistry()
	registry.Register(notifykit.Template{
		ID:      "greeting",
		Subject: "Hello {{name}}",
		Body:    "Your plan is {{plan}}.",
	})

	rendered, err := registry.Render("greeting", map[string]string{"name": "Ada"})
	require.NoError(t, err)

	// Unmatched placeholders stay literal rather than erroring
	assert.Equal(t, "Hello Ada", rendered.Subject)
	assert.Equal(t, "Your plan is {{plan}}.", rendered.Body)
}

func TestTemplateRenderUnknown(t *testing.T) {
	t.Parallel()

	registry := notifykit.NewTemplateRegistry()
	_, err := registry.Render("missing", nil)
	assert.ErrorIs(t, err, notifykit.ErrTemplateNotFound)
}

func TestTemplateRegisterReplaces(t *testing.T) {
	t.Parallel()

	registry := notifykit.NewTemplateRegistry()
	registry.Register(notifykit.Template{ID: "x", Subject: "one"})
	registry.Register(notifykit.Template{ID: "x", Subject: "two"})

	tmpl, ok := registry.Get("x")
	require.True(t, ok)
	assert.Equal(t, "two", tmpl.Subject)
}
