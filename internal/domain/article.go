// Package domain provides domain models and business logic for the Literature Mining Service.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SourceType identifies the bibliographic database an article was fetched from.
// These values must match the database enum source_type.
type SourceType string

const (
	SourceTypeSpringer SourceType = "springer"
	SourceTypeElsevier SourceType = "elsevier"
	SourceTypePubMed   SourceType = "pubmed"
	SourceTypeS2ORC    SourceType = "s2orc"
)

// IdentityField names one of the paper identity columns.
// These values match the identity columns of the articles table.
type IdentityField string

const (
	IdentityFieldDOI     IdentityField = "doi"
	IdentityFieldUID     IdentityField = "uid"
	IdentityFieldPMC     IdentityField = "pmc"
	IdentityFieldPaperID IdentityField = "paperid"
)

// identityPreference is the fixed order in which identity fields are consulted.
// A record reachable by several identifiers is always addressed by the first
// one present; the rest are stripped before storage so a single article is
// never addressable by two different keys.
var identityPreference = []IdentityField{
	IdentityFieldDOI,
	IdentityFieldUID,
	IdentityFieldPMC,
	IdentityFieldPaperID,
}

// Identity holds the possible identifiers of a physical paper.
// At most one is authoritative for storage; see Authoritative.
type Identity struct {
	// DOI is the Digital Object Identifier, normalized to lowercase.
	DOI string
	// UID is the PubMed identifier (PMID).
	UID string
	// PMC is the PubMed Central identifier.
	PMC string
	// PaperID is the bulk-corpus paper identifier.
	PaperID string
}

// value returns the raw value for a given identity field.
func (id Identity) value(f IdentityField) string {
	switch f {
	case IdentityFieldDOI:
		return strings.TrimSpace(id.DOI)
	case IdentityFieldUID:
		return strings.TrimSpace(id.UID)
	case IdentityFieldPMC:
		return strings.TrimSpace(id.PMC)
	case IdentityFieldPaperID:
		return strings.TrimSpace(id.PaperID)
	}
	return ""
}

// Authoritative returns the first non-empty identity field in preference
// order (doi > uid > pmc > paperid) together with its value.
// Returns ErrNoIdentifier when every field is empty.
func (id Identity) Authoritative() (IdentityField, string, error) {
	for _, f := range identityPreference {
		if v := id.value(f); v != "" {
			if f == IdentityFieldDOI {
				v = strings.ToLower(v)
			}
			return f, v, nil
		}
	}
	return "", "", ErrNoIdentifier
}

// Strip returns a copy of the identity with every field other than the
// authoritative one cleared. Stripping keeps an article from being
// simultaneously addressable by two different identity keys.
func (id Identity) Strip() Identity {
	f, v, err := id.Authoritative()
	if err != nil {
		return Identity{}
	}

	var stripped Identity
	switch f {
	case IdentityFieldDOI:
		stripped.DOI = v
	case IdentityFieldUID:
		stripped.UID = v
	case IdentityFieldPMC:
		stripped.PMC = v
	case IdentityFieldPaperID:
		stripped.PaperID = v
	}
	return stripped
}

// Article is the normalized metadata record produced by every source adapter.
// Articles are ephemeral: constructed per fetch, handed to the store
// coordinator, then discarded. Only the coordinator decides whether an
// article becomes a persistent document.
type Article struct {
	ID       uuid.UUID
	Identity Identity

	Title           string
	Abstract        string
	URL             string
	Creators        []string
	PublicationName string
	ISSN            string
	EISSN           string
	PublicationDate *time.Time
	Year            int
	Database        SourceType

	// ProcessedAbstract is the normalized abstract produced by the text
	// processor: sentences joined by newlines, tokens within a sentence
	// joined by spaces. Every stored article has a non-empty value.
	ProcessedAbstract string

	// Tags is the set of topic labels accreted onto the stored document.
	// Populated on reads; ignored on upsert input (the coordinator supplies
	// the tag being applied).
	Tags []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Storable reports whether the article can reach the persistent collection:
// it must carry at least one identity field and a non-empty processed abstract.
func (a *Article) Storable() bool {
	if a.ProcessedAbstract == "" {
		return false
	}
	_, _, err := a.Identity.Authoritative()
	return err == nil
}

// HasTag reports whether the article's tag set contains the given tag.
func (a *Article) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
