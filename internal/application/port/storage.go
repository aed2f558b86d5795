package port

import "context"

// FileStorage persists generated exports
type FileStorage interface {
	// Save writes content at a path relative to the export directory and
	// returns the full path written
	Save(ctx context.Context, path string, content []byte) (string, error)
}

// DocumentPaths resolves configured document path templates into
// relative file paths under the export directory.
type DocumentPaths interface {
	Resolve(document string, vars map[string]string) (string, error)
	SanitizeName(name string) string
}
