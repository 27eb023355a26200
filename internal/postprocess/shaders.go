package postprocess

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed shaders/*.wgsl
var shaderFS embed.FS

// Shader returns the WGSL source of the named shader file, e.g. "kawase.wgsl".
func Shader(name string) (string, error) {
	b, err := shaderFS.ReadFile("shaders/" + name)
	if err != nil {
		return "", fmt.Errorf("shader %q: %w", name, err)
	}
	return string(b), nil
}

// Shaders lists the embedded shader file names in sorted order.
func Shaders() []string {
	entries, _ := fs.ReadDir(shaderFS, "shaders")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}
