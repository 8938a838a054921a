// Package s2orc provides a scrape.Source adapter for S2ORC corpus dumps.
//
// S2ORC ships as line-delimited JSON metadata files. The adapter streams
// one file (or every .jsonl file in a directory) from local disk; no
// network access is involved.
package s2orc

// Record is one metadata line of an S2ORC dump.
type Record struct {
	PaperID  string   `json:"paper_id"`
	DOI      string   `json:"doi"`
	PubmedID string   `json:"pubmed_id"`
	Title    string   `json:"title"`
	Abstract string   `json:"abstract"`
	S2URL    string   `json:"s2_url"`
	Journal  string   `json:"journal"`
	Year     int      `json:"year"`
	Authors  []Author `json:"authors"`
}

// Author is one entry of a record's author list.
type Author struct {
	First  string   `json:"first"`
	Middle []string `json:"middle"`
	Last   string   `json:"last"`
	Suffix string   `json:"suffix"`
}
