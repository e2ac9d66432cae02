package corememory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileTemplateVariableSubstitution(t *testing.T) {
	out, err := CompileTemplate("You are {{persona}}.", map[string]string{"persona": "a helpful assistant"})
	require.NoError(t, err)
	assert.Equal(t, "You are a helpful assistant.", out)
}

func TestCompileTemplateSection(t *testing.T) {
	tmpl := "Base.{{#human}} About the user: {{human}}{{/human}}"
	out, err := CompileTemplate(tmpl, map[string]string{"human": "likes Go"})
	require.NoError(t, err)
	assert.Equal(t, "Base. About the user: likes Go", out)

	out, err = CompileTemplate(tmpl, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, "Base.", out)
}

func TestCompileTemplateInvertedSection(t *testing.T) {
	tmpl := "Base.{{^human}} No user info yet.{{/human}}"
	out, err := CompileTemplate(tmpl, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, "Base. No user info yet.", out)

	out, err = CompileTemplate(tmpl, map[string]string{"human": "x"})
	require.NoError(t, err)
	assert.Equal(t, "Base.", out)
}

func TestCompileTemplateInclude(t *testing.T) {
	out, err := CompileTemplate("{{>system}}\n{{>persona}}", map[string]string{
		"system":  "Follow the rules.",
		"persona": "Be concise.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Follow the rules.\nBe concise.", out)
}

func TestCompileTemplateUnmatchedCloseErrors(t *testing.T) {
	_, err := CompileTemplate("{{/foo}}", nil)
	assert.Error(t, err)
}

func TestCompileTemplateUnclosedSectionErrors(t *testing.T) {
	_, err := CompileTemplate("{{#foo}}bar", nil)
	assert.Error(t, err)
}
