package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/foodmine/literature-mining-service/internal/domain"
)

// UpsertOutcome classifies what a tag-carrying upsert did to the collection.
type UpsertOutcome int

const (
	// OutcomeUpserted means the article did not exist and a new document
	// was created with full metadata and the initial tag.
	OutcomeUpserted UpsertOutcome = iota

	// OutcomeTagAdded means the article existed without this tag; only the
	// tag set changed, all stored metadata was left untouched.
	OutcomeTagAdded

	// OutcomeAlreadyTagged means the article existed and already carried
	// this tag; the statement changed nothing.
	OutcomeAlreadyTagged
)

// String returns the outcome name for logging and metrics labels.
func (o UpsertOutcome) String() string {
	switch o {
	case OutcomeUpserted:
		return "upserted"
	case OutcomeTagAdded:
		return "tag_added"
	case OutcomeAlreadyTagged:
		return "already_tagged"
	default:
		return "unknown"
	}
}

// BulkResult summarizes the per-operation outcomes of one bulk submission.
type BulkResult struct {
	// Upserted counts newly created documents.
	Upserted int
	// TagAdded counts existing documents whose tag set grew.
	TagAdded int
	// AlreadyTagged counts documents the submission left untouched.
	AlreadyTagged int
	// Failed counts operations rejected by the database.
	Failed int
}

// Total returns the number of operations the result accounts for.
func (r *BulkResult) Total() int {
	return r.Upserted + r.TagAdded + r.AlreadyTagged + r.Failed
}

// TagCount pairs a tag with the number of stored articles carrying it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int64  `json:"count"`
}

// ArticleRepository handles persistence of scraped articles.
//
// The collection treats articles as identity-keyed accumulating documents:
// the first write for an identity creates the document with full metadata
// and an initial tag; every later write for the same identity can only add
// tags, never change metadata (first write wins).
type ArticleRepository interface {
	// UpsertWithTag inserts the article if its authoritative identity is
	// absent from the collection, otherwise unions tag into the existing
	// document's tag set. Metadata of existing documents is never modified.
	// Returns the outcome classification.
	// Returns domain.ErrNoIdentifier if the article carries no identity.
	UpsertWithTag(ctx context.Context, article *domain.Article, tag string) (UpsertOutcome, error)

	// BulkUpsertWithTag submits one UpsertWithTag operation per article as
	// an unordered bulk write. A failing operation does not prevent the
	// remaining operations from executing; failures are counted in the
	// result. Articles without identity are counted as failed without being
	// submitted.
	BulkUpsertWithTag(ctx context.Context, articles []*domain.Article, tag string) (*BulkResult, error)

	// GetByIdentity retrieves an article by one of its identity columns.
	// Returns domain.ErrNotFound if no matching article exists.
	GetByIdentity(ctx context.Context, field domain.IdentityField, value string) (*domain.Article, error)

	// GetByID retrieves an article by its internal UUID.
	// Returns domain.ErrNotFound if no matching article exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Article, error)

	// CountByTag returns the number of stored articles per tag, sorted by tag.
	CountByTag(ctx context.Context) ([]TagCount, error)

	// CountWithTag returns the number of stored articles carrying tag.
	CountWithTag(ctx context.Context, tag string) (int64, error)

	// StreamProcessedAbstracts calls fn once per stored article carrying
	// tag, in insertion order, with the article's ID and processed abstract.
	// Iteration stops at the first fn error, which is returned.
	StreamProcessedAbstracts(ctx context.Context, tag string, fn func(id uuid.UUID, processedAbstract string) error) error

	// RetagArticles replaces fromTag with toTag across the collection:
	// every article carrying fromTag loses it and gains toTag (set union,
	// no duplicates). Returns the number of articles modified.
	RetagArticles(ctx context.Context, fromTag, toTag string) (int64, error)
}
