package store

import (
	"context"
	"time"
)

// record is the stored form of one memory file. Summary is opaque text
// owned by the external summarizer.
type record struct {
	Content    string
	ModifiedAt time.Time
	AccessedAt time.Time
	Summary    string
}

func (r *record) clone() *record {
	c := *r
	return &c
}

// physical is the narrow substrate interface each adapter implements.
// Directory-model and text-editing semantics live in the shared engine;
// only these get/put/enumerate calls vary per physical medium.
//
// All paths are normalized virtual paths under /memories. getFile returns
// (nil, nil) for a missing path. putDir and deleteDir are idempotent.
type physical interface {
	getFile(ctx context.Context, path string) (*record, error)
	putFile(ctx context.Context, path string, rec *record) error
	deleteFile(ctx context.Context, path string) error
	filePaths(ctx context.Context) ([]string, error)

	dirPaths(ctx context.Context) ([]string, error)
	putDir(ctx context.Context, path string) error
	deleteDir(ctx context.Context, path string) error

	// touchAccess updates only the access time of an existing file.
	touchAccess(ctx context.Context, path string, t time.Time) error

	// putSummary stores the summary of an existing file; "" clears it.
	putSummary(ctx context.Context, path, summary string) error
}
