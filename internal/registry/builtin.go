package registry

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/era-ai/era/pkg/types"
)

//go:embed builtin/*.js builtin/*.yaml
var builtinFS embed.FS

// builtinNames is the fixed load order of the shipped utilities.
var builtinNames = []string{
	"fetchJSON",
	"callLLM",
	"webSearch",
	"extractText",
	"saveResult",
}

// BuiltinLoader produces one builtin utility. A failing loader only removes
// its own entry from the snapshot.
type BuiltinLoader struct {
	Name string
	Load func() (*types.UtilityEntry, error)
}

// DefaultLoaders returns loaders for the embedded utilities in load order.
func DefaultLoaders() []BuiltinLoader {
	return FSLoaders(builtinFS, "builtin", builtinNames)
}

// FSLoaders returns one loader per name, each reading <dir>/<name>.yaml and
// <dir>/<name>.js from fsys.
func FSLoaders(fsys fs.FS, dir string, names []string) []BuiltinLoader {
	loaders := make([]BuiltinLoader, 0, len(names))
	for _, name := range names {
		name := name
		loaders = append(loaders, BuiltinLoader{
			Name: name,
			Load: func() (*types.UtilityEntry, error) {
				return loadBuiltin(fsys, dir, name)
			},
		})
	}
	return loaders
}

func loadBuiltin(fsys fs.FS, dir, name string) (*types.UtilityEntry, error) {
	manifestPath := path.Join(dir, name+".yaml")
	manifest, err := fs.ReadFile(fsys, manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var entry types.UtilityEntry
	if err := yaml.Unmarshal(manifest, &entry); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", manifestPath, err)
	}
	if entry.Name != name {
		return nil, fmt.Errorf("manifest %s declares name %q", manifestPath, entry.Name)
	}

	sourcePath := path.Join(dir, name+".js")
	source, err := fs.ReadFile(fsys, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}
	if strings.TrimSpace(string(source)) == "" {
		return nil, fmt.Errorf("source %s is empty", sourcePath)
	}

	for _, dep := range entry.Dependencies {
		if !validPackageName(dep) {
			return nil, fmt.Errorf("invalid dependency %q", dep)
		}
	}

	entry.Kind = types.UtilityBuiltin
	entry.SourceCode = string(source)
	entry.Origin = types.Origin{Path: sourcePath}
	return &entry, nil
}
