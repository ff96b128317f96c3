package tour

import (
	"context"
	"io"
	"time"
)

// Renderer materializes a dynamic page including its disclosure widgets.
type Renderer interface {
	Render(ctx context.Context, url string) (RawPage, error)
}

// Fetcher retrieves a page without executing scripts.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (RawPage, error)
}

// PromotionDetector decides whether a statically fetched page needs the
// renderer.
type PromotionDetector interface {
	ShouldPromote(page RawPage) bool
}

// TableStore persists the tabular image of one scope.
type TableStore interface {
	Load(ctx context.Context) (Table, error)
	Save(ctx context.Context, t Table) error
}

// BlobStore archives raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher notifies downstream collaborators.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
