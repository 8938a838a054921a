package httpserver

import (
	"time"

	"github.com/google/uuid"

	"github.com/foodmine/literature-mining-service/internal/domain"
	"github.com/foodmine/literature-mining-service/internal/repository"
)

type tagCountsResponse struct {
	Tags []repository.TagCount `json:"tags"`
}

type tagCountResponse struct {
	Tag   string `json:"tag"`
	Count int64  `json:"count"`
}

// processedAbstractRecord is one line of the NDJSON abstract export.
type processedAbstractRecord struct {
	ID                uuid.UUID `json:"id"`
	ProcessedAbstract string    `json:"processed_abstract"`
}

type retagResponse struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Modified int64  `json:"modified"`
}

type articleResponse struct {
	ID                string     `json:"id"`
	DOI               string     `json:"doi,omitempty"`
	UID               string     `json:"uid,omitempty"`
	PMC               string     `json:"pmc,omitempty"`
	PaperID           string     `json:"paperid,omitempty"`
	Title             string     `json:"title"`
	Abstract          string     `json:"abstract,omitempty"`
	URL               string     `json:"url,omitempty"`
	Creators          []string   `json:"creators,omitempty"`
	PublicationName   string     `json:"publication_name,omitempty"`
	ISSN              string     `json:"issn,omitempty"`
	EISSN             string     `json:"eissn,omitempty"`
	PublicationDate   *time.Time `json:"publication_date,omitempty"`
	Year              int        `json:"year,omitempty"`
	Source            string     `json:"source"`
	ProcessedAbstract string     `json:"processed_abstract,omitempty"`
	Tags              []string   `json:"tags"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func articleToResponse(a *domain.Article) articleResponse {
	return articleResponse{
		ID:                a.ID.String(),
		DOI:               a.Identity.DOI,
		UID:               a.Identity.UID,
		PMC:               a.Identity.PMC,
		PaperID:           a.Identity.PaperID,
		Title:             a.Title,
		Abstract:          a.Abstract,
		URL:               a.URL,
		Creators:          a.Creators,
		PublicationName:   a.PublicationName,
		ISSN:              a.ISSN,
		EISSN:             a.EISSN,
		PublicationDate:   a.PublicationDate,
		Year:              a.Year,
		Source:            string(a.Database),
		ProcessedAbstract: a.ProcessedAbstract,
		Tags:              a.Tags,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}
