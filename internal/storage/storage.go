// Package storage manages the on-disk layout of a run: the output directory,
// the temporary workspaces that hold frames before assembly, and optional
// publishing of finished outputs to S3.
package storage

import "context"

// Storage defines the interface for workspace management and output delivery.
type Storage interface {
	// Root returns the directory outputs are written to.
	Root() string

	// CreateWorkspace creates a new uniquely named directory under Root.
	// The name parameter is used as a prefix for the directory name.
	CreateWorkspace(ctx context.Context, name string) (path string, err error)

	// EnsureDir creates path and any missing parents.
	EnsureDir(ctx context.Context, path string) error

	// RemoveWorkspace removes a workspace and everything in it.
	// Removing a workspace that no longer exists is not an error.
	RemoveWorkspace(ctx context.Context, path string) error

	// Publish uploads the file at path under key and returns its public URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	Publish(ctx context.Context, key, path string) (url string, err error)
}
