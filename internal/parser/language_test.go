package parser

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLanguage_AliasesAndCanonical(t *testing.T) {
	canon, ok := NormalizeLanguage("golang")
	require.True(t, ok)
	assert.Equal(t, "go", canon)

	canon, ok = NormalizeLanguage("GoLang")
	require.True(t, ok)
	assert.Equal(t, "go", canon)

	canon, ok = NormalizeLanguage("python")
	require.True(t, ok)
	assert.Equal(t, "python", canon)

	_, ok = NormalizeLanguage("cobol")
	assert.False(t, ok)
}

func TestDetectFromPath(t *testing.T) {
	name, ok := DetectFromPath("/src/main.go")
	require.True(t, ok)
	assert.Equal(t, "go", name)

	name, ok = DetectFromPath("/infra/prod.tf")
	require.True(t, ok)
	assert.Equal(t, "terraform", name)

	_, ok = DetectFromPath("/docs/readme.md")
	assert.False(t, ok)
}

func TestResolve_ExplicitWinsOverPath(t *testing.T) {
	lang, err := Resolve("python", "/src/main.go")
	require.NoError(t, err)
	assert.Equal(t, "python", lang)
}

func TestResolve_FallsBackToPathDetection(t *testing.T) {
	lang, err := Resolve("", "/src/main.go")
	require.NoError(t, err)
	assert.Equal(t, "go", lang)
}

func TestResolve_UnknownLanguageIsError(t *testing.T) {
	_, err := Resolve("cobol", "/src/main.cob")
	assert.Error(t, err)
}

func TestParse_SimpleAssignment(t *testing.T) {
	root, err := Parse(context.Background(), "python", []byte("x = 1"))
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.Equal(t, "module", root.Type)
	assert.Equal(t, uint32(0), root.StartByte)
	assert.Equal(t, uint32(5), root.EndByte)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "expression_statement", root.Children[0].Type)
}

func TestParse_EmptySourceIsTotal(t *testing.T) {
	root, err := Parse(context.Background(), "python", nil)
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.Equal(t, uint32(0), root.StartByte)
	assert.Equal(t, uint32(0), root.EndByte)
}

func TestWriteTempSource_UsesConventionalExtension(t *testing.T) {
	path, err := WriteTempSource("go", []byte("package main\n"))
	require.NoError(t, err)
	defer func() { _ = os.Remove(path) }()
	assert.Contains(t, path, ".go")
}
