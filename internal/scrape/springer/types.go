// Package springer provides a scrape.Source adapter for the Springer
// Nature Meta API.
//
// The API returns journal article metadata as JSON pages addressed by a
// start index. Documentation is available at:
// https://dev.springernature.com/
package springer

// Response is one page of the Meta API v2 JSON endpoint.
type Response struct {
	Result  []Result `json:"result"`
	Records []Record `json:"records"`
}

// Result carries the query bookkeeping for a page. The API reports
// numeric values as strings.
type Result struct {
	Total      string `json:"total"`
	Start      string `json:"start"`
	PageLength string `json:"pageLength"`
}

// Record is one article in a page.
type Record struct {
	DOI             string    `json:"doi"`
	Title           string    `json:"title"`
	Abstract        string    `json:"abstract"`
	PublicationName string    `json:"publicationName"`
	ISSN            string    `json:"issn"`
	EISSN           string    `json:"eIssn"`
	PublicationDate string    `json:"publicationDate"`
	URLs            []URL     `json:"url"`
	Creators        []Creator `json:"creators"`
}

// URL is one entry of a record's url list. The generic link has an
// empty format.
type URL struct {
	Format   string `json:"format"`
	Platform string `json:"platform"`
	Value    string `json:"value"`
}

// Creator wraps a single creator name.
type Creator struct {
	Creator string `json:"creator"`
}
