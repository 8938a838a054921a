//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodmine/literature-mining-service/internal/domain"
	"github.com/foodmine/literature-mining-service/internal/repository"
)

func newRepo() *repository.PgArticleRepository {
	return repository.NewPgArticleRepository(testPool)
}

func sampleArticle(doi string) *domain.Article {
	date := time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC)
	return &domain.Article{
		Identity:          domain.Identity{DOI: doi},
		Title:             "Antioxidant activity of Allium sativum",
		Abstract:          "Garlic extracts were assayed for antioxidant activity.",
		URL:               "https://example.org/article",
		Creators:          []string{"Doe, Jane", "Smith, John"},
		PublicationName:   "Journal of Food Science",
		ISSN:              "0022-1147",
		EISSN:             "1750-3841",
		PublicationDate:   &date,
		Year:              2020,
		Database:          domain.SourceTypeSpringer,
		ProcessedAbstract: "garlic extracts were assayed for antioxidant activity .",
	}
}

func TestUpsertWithTag_Lifecycle(t *testing.T) {
	cleanArticles(t)
	ctx := context.Background()
	repo := newRepo()

	article := sampleArticle("10.1234/lifecycle")

	outcome, err := repo.UpsertWithTag(ctx, article, "garlic")
	require.NoError(t, err)
	assert.Equal(t, repository.OutcomeUpserted, outcome)

	// Same identity, new tag: only the tag set grows.
	outcome, err = repo.UpsertWithTag(ctx, sampleArticle("10.1234/lifecycle"), "allium")
	require.NoError(t, err)
	assert.Equal(t, repository.OutcomeTagAdded, outcome)

	// Same identity, same tag: statement changes nothing.
	outcome, err = repo.UpsertWithTag(ctx, sampleArticle("10.1234/lifecycle"), "garlic")
	require.NoError(t, err)
	assert.Equal(t, repository.OutcomeAlreadyTagged, outcome)

	stored, err := repo.GetByIdentity(ctx, domain.IdentityFieldDOI, "10.1234/lifecycle")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"garlic", "allium"}, stored.Tags)
}

func TestUpsertWithTag_MetadataFirstWriteWins(t *testing.T) {
	cleanArticles(t)
	ctx := context.Background()
	repo := newRepo()

	first := sampleArticle("10.1234/firstwins")
	_, err := repo.UpsertWithTag(ctx, first, "garlic")
	require.NoError(t, err)

	second := sampleArticle("10.1234/firstwins")
	second.Title = "A completely different title"
	second.Year = 1999
	_, err = repo.UpsertWithTag(ctx, second, "allium")
	require.NoError(t, err)

	stored, err := repo.GetByIdentity(ctx, domain.IdentityFieldDOI, "10.1234/firstwins")
	require.NoError(t, err)
	assert.Equal(t, first.Title, stored.Title)
	assert.Equal(t, 2020, stored.Year)
}

func TestUpsertWithTag_IdentityStripping(t *testing.T) {
	cleanArticles(t)
	ctx := context.Background()
	repo := newRepo()

	article := sampleArticle("10.1234/stripped")
	article.Identity.UID = "99887766"
	article.Identity.PMC = "PMC123"

	_, err := repo.UpsertWithTag(ctx, article, "garlic")
	require.NoError(t, err)

	// Only the authoritative DOI key is stored; the secondary identifiers
	// must not make the row addressable.
	stored, err := repo.GetByIdentity(ctx, domain.IdentityFieldDOI, "10.1234/stripped")
	require.NoError(t, err)
	assert.Empty(t, stored.Identity.UID)
	assert.Empty(t, stored.Identity.PMC)

	_, err = repo.GetByIdentity(ctx, domain.IdentityFieldUID, "99887766")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpsertWithTag_DOINormalizedToLowercase(t *testing.T) {
	cleanArticles(t)
	ctx := context.Background()
	repo := newRepo()

	article := sampleArticle("10.1234/MiXeD.CaSe")
	_, err := repo.UpsertWithTag(ctx, article, "garlic")
	require.NoError(t, err)

	// A later fetch of the same paper with different DOI casing is the
	// same row, not a duplicate.
	outcome, err := repo.UpsertWithTag(ctx, sampleArticle("10.1234/mixed.case"), "garlic")
	require.NoError(t, err)
	assert.Equal(t, repository.OutcomeAlreadyTagged, outcome)
}

func TestBulkUpsertWithTag(t *testing.T) {
	cleanArticles(t)
	ctx := context.Background()
	repo := newRepo()

	seeded := sampleArticle("10.1234/bulk.existing")
	_, err := repo.UpsertWithTag(ctx, seeded, "garlic")
	require.NoError(t, err)

	batch := []*domain.Article{
		sampleArticle("10.1234/bulk.new.a"),
		sampleArticle("10.1234/bulk.new.b"),
		sampleArticle("10.1234/bulk.existing"),
		{ProcessedAbstract: "orphan with no identity"},
	}

	result, err := repo.BulkUpsertWithTag(ctx, batch, "garlic")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Upserted)
	assert.Equal(t, 1, result.AlreadyTagged)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 4, result.Total())

	count, err := repo.CountWithTag(ctx, "garlic")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestBulkUpsertWithTag_Idempotent(t *testing.T) {
	cleanArticles(t)
	ctx := context.Background()
	repo := newRepo()

	batch := []*domain.Article{
		sampleArticle("10.1234/idem.a"),
		sampleArticle("10.1234/idem.b"),
	}

	first, err := repo.BulkUpsertWithTag(ctx, batch, "garlic")
	require.NoError(t, err)
	assert.Equal(t, 2, first.Upserted)

	second, err := repo.BulkUpsertWithTag(ctx, batch, "garlic")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Upserted)
	assert.Equal(t, 2, second.AlreadyTagged)

	count, err := repo.CountWithTag(ctx, "garlic")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestCountByTag(t *testing.T) {
	cleanArticles(t)
	ctx := context.Background()
	repo := newRepo()

	for _, doi := range []string{"10.1/a", "10.1/b"} {
		_, err := repo.UpsertWithTag(ctx, sampleArticle(doi), "garlic")
		require.NoError(t, err)
	}
	_, err := repo.UpsertWithTag(ctx, sampleArticle("10.1/a"), "all")
	require.NoError(t, err)

	counts, err := repo.CountByTag(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, repository.TagCount{Tag: "all", Count: 1}, counts[0])
	assert.Equal(t, repository.TagCount{Tag: "garlic", Count: 2}, counts[1])
}

func TestStreamProcessedAbstracts(t *testing.T) {
	cleanArticles(t)
	ctx := context.Background()
	repo := newRepo()

	dois := []string{"10.1/s1", "10.1/s2", "10.1/s3"}
	for _, doi := range dois {
		a := sampleArticle(doi)
		a.ProcessedAbstract = "abstract for " + doi
		_, err := repo.UpsertWithTag(ctx, a, "garlic")
		require.NoError(t, err)
	}
	_, err := repo.UpsertWithTag(ctx, sampleArticle("10.1/other"), "cocoa")
	require.NoError(t, err)

	var seen []string
	err = repo.StreamProcessedAbstracts(ctx, "garlic", func(id uuid.UUID, processed string) error {
		seen = append(seen, processed)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"abstract for 10.1/s1",
		"abstract for 10.1/s2",
		"abstract for 10.1/s3",
	}, seen)
}

func TestRetagArticles(t *testing.T) {
	cleanArticles(t)
	ctx := context.Background()
	repo := newRepo()

	// One article carries only the old tag, one carries both.
	_, err := repo.UpsertWithTag(ctx, sampleArticle("10.1/old.only"), "garlic")
	require.NoError(t, err)
	_, err = repo.UpsertWithTag(ctx, sampleArticle("10.1/both"), "garlic")
	require.NoError(t, err)
	_, err = repo.UpsertWithTag(ctx, sampleArticle("10.1/both"), "allium")
	require.NoError(t, err)

	modified, err := repo.RetagArticles(ctx, "garlic", "allium")
	require.NoError(t, err)
	assert.Equal(t, int64(2), modified)

	oldCount, err := repo.CountWithTag(ctx, "garlic")
	require.NoError(t, err)
	assert.Equal(t, int64(0), oldCount)

	newCount, err := repo.CountWithTag(ctx, "allium")
	require.NoError(t, err)
	assert.Equal(t, int64(2), newCount)

	// No duplicate tag on the article that carried both.
	both, err := repo.GetByIdentity(ctx, domain.IdentityFieldDOI, "10.1/both")
	require.NoError(t, err)
	assert.Equal(t, []string{"allium"}, both.Tags)
}
