// Package elsevier provides a scrape.Source adapter for the Elsevier
// ScienceDirect APIs.
//
// Scraping is two-phase: the search API yields DOIs page by page, then
// the article retrieval API is queried per DOI for full metadata.
// Documentation is available at: https://dev.elsevier.com/
package elsevier

// SearchResponse wraps one page of the ScienceDirect search API.
type SearchResponse struct {
	Results SearchResults `json:"search-results"`
}

// SearchResults is the body of a search page.
type SearchResults struct {
	TotalResults string        `json:"opensearch:totalResults"`
	Links        []Link        `json:"link"`
	Entries      []SearchEntry `json:"entry"`
}

// Link is a paging link. The next page carries ref "next".
type Link struct {
	Ref  string `json:"@ref"`
	Href string `json:"@href"`
}

// SearchEntry is one search hit. Only the DOI is consumed.
type SearchEntry struct {
	DOI string `json:"prism:doi"`
}

// RetrievalResponse wraps the article retrieval API response.
type RetrievalResponse struct {
	FullTextRetrievalResponse FullTextRetrievalResponse `json:"full-text-retrieval-response"`
}

// FullTextRetrievalResponse carries the article body of a retrieval.
type FullTextRetrievalResponse struct {
	CoreData CoreData `json:"coredata"`
}

// CoreData is the bibliographic core of a retrieved article.
type CoreData struct {
	DOI             string    `json:"prism:doi"`
	Title           string    `json:"dc:title"`
	Description     string    `json:"dc:description"`
	URL             string    `json:"prism:url"`
	Creators        []Creator `json:"dc:creator"`
	PublicationName string    `json:"prism:publicationName"`
	ISSN            string    `json:"prism:issn"`
	CoverDate       string    `json:"prism:coverDate"`
}

// Creator wraps a single creator name.
type Creator struct {
	Name string `json:"$"`
}
