package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/foodmine/literature-mining-service/internal/domain"
)

// Compile-time interface verification.
var _ ArticleRepository = (*PgArticleRepository)(nil)

// PgArticleRepository is a PostgreSQL implementation of ArticleRepository.
type PgArticleRepository struct {
	db DBTX
}

// NewPgArticleRepository creates a new PostgreSQL article repository.
func NewPgArticleRepository(db DBTX) *PgArticleRepository {
	return &PgArticleRepository{db: db}
}

// upsertQueryTemplate is the single-statement conditional upsert. The three
// possible outcomes are distinguished without a second round trip:
//
//   - one row, inserted = true:  new document created (xmax is 0 only for
//     rows the statement itself inserted)
//   - one row, inserted = false: existing document, tag appended
//   - no rows: existing document already carried the tag (the DO UPDATE
//     WHERE clause suppressed the update)
//
// The conflict target is the partial unique index on one identity column;
// the article's other identity columns are stored as NULL, so an article is
// only ever addressable by its authoritative identity.
const upsertQueryTemplate = `
	INSERT INTO articles (
		id, doi, uid, pmc, paperid,
		title, abstract, url, creators,
		publication_name, issn, eissn, publication_date, year, source,
		processed_abstract, tags, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, ARRAY[$17], NOW(), NOW()
	)
	ON CONFLICT (%s) WHERE %s IS NOT NULL DO UPDATE SET
		tags = array_append(articles.tags, $17),
		updated_at = NOW()
	WHERE NOT ($17 = ANY(articles.tags))
	RETURNING (xmax = 0) AS inserted`

// upsertQueries holds the upsert statement per identity column.
var upsertQueries = map[domain.IdentityField]string{
	domain.IdentityFieldDOI:     fmt.Sprintf(upsertQueryTemplate, "doi", "doi"),
	domain.IdentityFieldUID:     fmt.Sprintf(upsertQueryTemplate, "uid", "uid"),
	domain.IdentityFieldPMC:     fmt.Sprintf(upsertQueryTemplate, "pmc", "pmc"),
	domain.IdentityFieldPaperID: fmt.Sprintf(upsertQueryTemplate, "paperid", "paperid"),
}

// identityColumns whitelists identity fields as column names for lookups.
var identityColumns = map[domain.IdentityField]string{
	domain.IdentityFieldDOI:     "doi",
	domain.IdentityFieldUID:     "uid",
	domain.IdentityFieldPMC:     "pmc",
	domain.IdentityFieldPaperID: "paperid",
}

// articleColumns is the column list shared by all article SELECTs.
const articleColumns = `id, doi, uid, pmc, paperid,
		title, abstract, url, creators,
		publication_name, issn, eissn, publication_date, year, source,
		processed_abstract, tags, created_at, updated_at`

// upsertStatement builds the query and arguments for one article. The
// identity is stripped to its authoritative field before binding.
func upsertStatement(article *domain.Article, tag string) (string, []interface{}, error) {
	field, _, err := article.Identity.Authoritative()
	if err != nil {
		return "", nil, err
	}

	id := article.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	stripped := article.Identity.Strip()

	args := []interface{}{
		id,
		textOrNil(stripped.DOI),
		textOrNil(stripped.UID),
		textOrNil(stripped.PMC),
		textOrNil(stripped.PaperID),
		article.Title,
		article.Abstract,
		article.URL,
		article.Creators,
		article.PublicationName,
		article.ISSN,
		article.EISSN,
		article.PublicationDate,
		intOrNil(article.Year),
		string(article.Database),
		article.ProcessedAbstract,
		tag,
	}
	return upsertQueries[field], args, nil
}

// UpsertWithTag inserts the article or unions tag into its existing document.
func (r *PgArticleRepository) UpsertWithTag(ctx context.Context, article *domain.Article, tag string) (UpsertOutcome, error) {
	if article == nil {
		return 0, domain.NewValidationError("article", "article cannot be nil")
	}
	if tag == "" {
		return 0, domain.NewValidationError("tag", "tag is required")
	}

	query, args, err := upsertStatement(article, tag)
	if err != nil {
		return 0, err
	}

	var inserted bool
	err = r.db.QueryRow(ctx, query, args...).Scan(&inserted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OutcomeAlreadyTagged, nil
		}
		return 0, fmt.Errorf("failed to upsert article: %w", err)
	}

	if inserted {
		return OutcomeUpserted, nil
	}
	return OutcomeTagAdded, nil
}

// BulkUpsertWithTag submits one upsert per article through pgx.Batch. The
// whole batch runs in one implicit transaction, so a failing operation voids
// every verdict read before it; in that case the surviving operations are
// re-run one statement at a time, where each upsert commits on its own and
// one bad record cannot sink the rest of the submission.
func (r *PgArticleRepository) BulkUpsertWithTag(ctx context.Context, articles []*domain.Article, tag string) (*BulkResult, error) {
	if tag == "" {
		return nil, domain.NewValidationError("tag", "tag is required")
	}

	result := &BulkResult{}

	pending := make([]*domain.Article, 0, len(articles))
	for _, a := range articles {
		if a == nil {
			result.Failed++
			continue
		}
		if _, _, err := a.Identity.Authoritative(); err != nil {
			result.Failed++
			continue
		}
		pending = append(pending, a)
	}
	if len(pending) == 0 {
		return result, nil
	}

	batch := &pgx.Batch{}
	for _, a := range pending {
		query, args, err := upsertStatement(a, tag)
		if err != nil {
			// Identity was checked above; this cannot happen.
			return result, err
		}
		batch.Queue(query, args...)
	}

	br := r.db.SendBatch(ctx, batch)

	// Verdicts are provisional until the batch's implicit transaction
	// commits; keep them separate so a mid-batch failure can discard them.
	attempt := BulkResult{}
	failedAt := -1
	for i := range pending {
		var inserted bool
		err := br.QueryRow().Scan(&inserted)
		switch {
		case err == nil:
			if inserted {
				attempt.Upserted++
			} else {
				attempt.TagAdded++
			}
		case errors.Is(err, pgx.ErrNoRows):
			attempt.AlreadyTagged++
		default:
			failedAt = i
		}
		if failedAt >= 0 {
			break
		}
	}

	closeErr := br.Close()

	if failedAt < 0 {
		if closeErr != nil {
			return result, fmt.Errorf("failed to close batch results: %w", closeErr)
		}
		result.Upserted += attempt.Upserted
		result.TagAdded += attempt.TagAdded
		result.AlreadyTagged += attempt.AlreadyTagged
		return result, nil
	}

	// The failure rolled back everything the batch appeared to do. Re-run
	// every operation except the failed one individually.
	result.Failed++
	for i, a := range pending {
		if i == failedAt {
			continue
		}
		outcome, err := r.UpsertWithTag(ctx, a, tag)
		if err != nil {
			if ctx.Err() != nil {
				return result, fmt.Errorf("re-running upserts after batch failure: %w", err)
			}
			result.Failed++
			continue
		}
		switch outcome {
		case OutcomeUpserted:
			result.Upserted++
		case OutcomeTagAdded:
			result.TagAdded++
		case OutcomeAlreadyTagged:
			result.AlreadyTagged++
		}
	}

	return result, nil
}

// GetByIdentity retrieves an article by one of its identity columns.
func (r *PgArticleRepository) GetByIdentity(ctx context.Context, field domain.IdentityField, value string) (*domain.Article, error) {
	column, ok := identityColumns[field]
	if !ok {
		return nil, domain.NewValidationError("field", fmt.Sprintf("unknown identity field %q", field))
	}
	if value == "" {
		return nil, domain.NewValidationError("value", "identity value is required")
	}

	query := fmt.Sprintf(`SELECT %s FROM articles WHERE %s = $1`, articleColumns, column)

	article, err := scanArticle(r.db.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("article", value)
		}
		return nil, fmt.Errorf("failed to get article by %s: %w", column, err)
	}
	return article, nil
}

// GetByID retrieves an article by its internal UUID.
func (r *PgArticleRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Article, error) {
	query := fmt.Sprintf(`SELECT %s FROM articles WHERE id = $1`, articleColumns)

	article, err := scanArticle(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("article", id.String())
		}
		return nil, fmt.Errorf("failed to get article by ID: %w", err)
	}
	return article, nil
}

// CountByTag returns per-tag article counts sorted by tag.
func (r *PgArticleRepository) CountByTag(ctx context.Context) ([]TagCount, error) {
	query := `
		SELECT t.tag, COUNT(*)
		FROM articles
		CROSS JOIN LATERAL unnest(tags) AS t(tag)
		GROUP BY t.tag
		ORDER BY t.tag`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count articles by tag: %w", err)
	}
	defer rows.Close()

	var counts []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan tag count: %w", err)
		}
		counts = append(counts, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tag counts: %w", err)
	}

	return counts, nil
}

// CountWithTag returns the number of stored articles carrying tag.
func (r *PgArticleRepository) CountWithTag(ctx context.Context, tag string) (int64, error) {
	if tag == "" {
		return 0, domain.NewValidationError("tag", "tag is required")
	}

	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM articles WHERE $1 = ANY(tags)`, tag).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count articles with tag: %w", err)
	}
	return count, nil
}

// StreamProcessedAbstracts iterates the processed abstracts of one tag in
// insertion order.
func (r *PgArticleRepository) StreamProcessedAbstracts(ctx context.Context, tag string, fn func(id uuid.UUID, processedAbstract string) error) error {
	if tag == "" {
		return domain.NewValidationError("tag", "tag is required")
	}

	query := `
		SELECT id, processed_abstract
		FROM articles
		WHERE $1 = ANY(tags) AND processed_abstract <> ''
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, tag)
	if err != nil {
		return fmt.Errorf("failed to stream processed abstracts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var processed string
		if err := rows.Scan(&id, &processed); err != nil {
			return fmt.Errorf("failed to scan processed abstract: %w", err)
		}
		if err := fn(id, processed); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate processed abstracts: %w", err)
	}

	return nil
}

// RetagArticles replaces fromTag with toTag across the collection.
// Two statements cover the two shapes an affected document can have:
// those not yet carrying toTag get it appended while fromTag is removed,
// and those already carrying toTag just lose fromTag.
func (r *PgArticleRepository) RetagArticles(ctx context.Context, fromTag, toTag string) (int64, error) {
	if fromTag == "" || toTag == "" {
		return 0, domain.NewValidationError("tag", "both fromTag and toTag are required")
	}
	if fromTag == toTag {
		return 0, domain.NewValidationError("tag", "fromTag and toTag must differ")
	}

	swapped, err := r.db.Exec(ctx, `
		UPDATE articles
		SET tags = array_append(array_remove(tags, $1), $2), updated_at = NOW()
		WHERE $1 = ANY(tags) AND NOT ($2 = ANY(tags))`, fromTag, toTag)
	if err != nil {
		return 0, fmt.Errorf("failed to retag articles: %w", err)
	}

	removed, err := r.db.Exec(ctx, `
		UPDATE articles
		SET tags = array_remove(tags, $1), updated_at = NOW()
		WHERE $1 = ANY(tags) AND $2 = ANY(tags)`, fromTag, toTag)
	if err != nil {
		return swapped.RowsAffected(), fmt.Errorf("failed to drop replaced tag: %w", err)
	}

	return swapped.RowsAffected() + removed.RowsAffected(), nil
}

// scanArticle maps one article row onto the domain model.
func scanArticle(row pgx.Row) (*domain.Article, error) {
	var a domain.Article
	var doi, uid, pmc, paperid, source *string
	var year *int

	err := row.Scan(
		&a.ID,
		&doi,
		&uid,
		&pmc,
		&paperid,
		&a.Title,
		&a.Abstract,
		&a.URL,
		&a.Creators,
		&a.PublicationName,
		&a.ISSN,
		&a.EISSN,
		&a.PublicationDate,
		&year,
		&source,
		&a.ProcessedAbstract,
		&a.Tags,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Identity = domain.Identity{
		DOI:     derefString(doi),
		UID:     derefString(uid),
		PMC:     derefString(pmc),
		PaperID: derefString(paperid),
	}
	if year != nil {
		a.Year = *year
	}
	if source != nil {
		a.Database = domain.SourceType(*source)
	}

	return &a, nil
}

// textOrNil maps empty strings onto SQL NULL.
func textOrNil(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// intOrNil maps zero years onto SQL NULL.
func intOrNil(n int) interface{} {
	if n == 0 {
		return nil
	}
	return n
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
