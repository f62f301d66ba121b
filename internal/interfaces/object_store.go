package interfaces

import "context"

// ObjectStore uploads local artifacts for distribution
type ObjectStore interface {
	// UploadFile stores localPath under key and returns the full object key
	UploadFile(ctx context.Context, localPath, key string) (string, error)
}
