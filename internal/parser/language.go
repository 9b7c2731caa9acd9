// Package parser wraps the tree-sitter frontends behind a single
// parse(language, bytes) entry point; everything else in this package —
// alias normalization, extension detection, temp-file materialization
// for inline code — is boundary glue around that call.
package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/hcl"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/sql"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
	"github.com/smacker/go-tree-sitter/yaml"
)

// aliases maps informal spellings onto the canonical language name used
// throughout this package and the graph's `language` property.
var aliases = map[string]string{
	"golang":     "go",
	"py":         "python",
	"python3":    "python",
	"tf":         "terraform",
	"hcl":        "terraform",
	"js":         "javascript",
	"node":       "javascript",
	"ts":         "typescript",
	"tsx":        "typescript",
	"rs":         "rust",
	"postgresql": "sql",
	"psql":       "sql",
	"yml":        "yaml",
}

// extensions maps a file extension (including the leading dot) onto a
// canonical language name.
var extensions = map[string]string{
	".go":   "go",
	".py":   "python",
	".tf":   "terraform",
	".hcl":  "terraform",
	".js":   "javascript",
	".mjs":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".rs":   "rust",
	".sql":  "sql",
	".yaml": "yaml",
	".yml":  "yaml",
}

// defaultExtension is used when materializing a temp file for inline code.
var defaultExtension = map[string]string{
	"go":         ".go",
	"python":     ".py",
	"terraform":  ".tf",
	"javascript": ".js",
	"typescript": ".ts",
	"rust":       ".rs",
	"sql":        ".sql",
	"yaml":       ".yaml",
}

// languages maps a canonical name to its compiled tree-sitter grammar.
var languages = map[string]*sitter.Language{
	"go":         golang.GetLanguage(),
	"python":     python.GetLanguage(),
	"terraform":  hcl.GetLanguage(),
	"javascript": javascript.GetLanguage(),
	"typescript": typescript.GetLanguage(),
	"rust":       rust.GetLanguage(),
	"sql":        sql.GetLanguage(),
	"yaml":       yaml.GetLanguage(),
}

// NormalizeLanguage resolves an informal spelling to the canonical name.
// An already-canonical name passes through unchanged. Returns ok=false for
// anything unsupported.
func NormalizeLanguage(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", false
	}
	if canon, isAlias := aliases[name]; isAlias {
		name = canon
	}
	if _, supported := languages[name]; !supported {
		return "", false
	}
	return name, true
}

// DetectFromPath infers a canonical language name from a file's extension.
func DetectFromPath(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	name, ok := extensions[ext]
	return name, ok
}

// DefaultExtension returns the conventional file extension for a canonical
// language name, used to materialize inline code as a temp file so the
// underlying git/extension-based tooling still has something to look at.
func DefaultExtension(name string) string {
	return defaultExtension[name]
}

// Resolve picks the canonical language for an ingest: an explicit
// language argument (normalized through aliases) wins; otherwise the
// language is detected from the path's extension. The caller decides how
// to surface an unresolved language.
func Resolve(explicitLanguage, path string) (string, error) {
	if explicitLanguage != "" {
		canon, ok := NormalizeLanguage(explicitLanguage)
		if !ok {
			return "", fmt.Errorf("unsupported language %q", explicitLanguage)
		}
		return canon, nil
	}
	canon, ok := DetectFromPath(path)
	if !ok {
		return "", fmt.Errorf("cannot detect language for %q", path)
	}
	return canon, nil
}

// grammar returns the compiled tree-sitter grammar for a canonical
// language name, produced by Resolve — never called with a name Resolve
// would have rejected.
func grammar(canonicalName string) (*sitter.Language, error) {
	lang, ok := languages[canonicalName]
	if !ok {
		return nil, fmt.Errorf("unsupported language %q", canonicalName)
	}
	return lang, nil
}
