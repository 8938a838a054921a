package pubmed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodmine/literature-mining-service/internal/domain"
	"github.com/foodmine/literature-mining-service/internal/scrape"
)

func newTestHTTPClient() *scrape.HTTPClient {
	return scrape.NewHTTPClient(scrape.HTTPClientConfig{
		Timeout:    5 * time.Second,
		RateLimit:  1000,
		BurstSize:  1000,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	})
}

func esearchXML(count int, ids ...string) string {
	idXML := ""
	for _, id := range ids {
		idXML += "<Id>" + id + "</Id>"
	}
	return fmt.Sprintf(`<?xml version="1.0"?>
<eSearchResult>
	<Count>%d</Count>
	<RetMax>%d</RetMax>
	<RetStart>0</RetStart>
	<QueryKey>1</QueryKey>
	<WebEnv>MCID_TEST</WebEnv>
	<IdList>%s</IdList>
</eSearchResult>`, count, len(ids), idXML)
}

const efetchXML = `<?xml version="1.0"?>
<PubmedArticleSet>
	<PubmedArticle>
		<MedlineCitation>
			<PMID Version="1">33555111</PMID>
			<Article>
				<Journal>
					<ISSN IssnType="Print">0023-6438</ISSN>
					<ISSN IssnType="Electronic">1096-1127</ISSN>
					<JournalIssue>
						<Volume>138</Volume>
						<PubDate><Year>2021</Year><Month>Mar</Month></PubDate>
					</JournalIssue>
					<Title>LWT - Food Science and Technology</Title>
				</Journal>
				<ArticleTitle>Antioxidant capacity of &lt;i&gt;Allium sativum&lt;/i&gt; extracts</ArticleTitle>
				<ELocationID EIdType="doi" ValidYN="Y">10.1016/j.lwt.2020.110611</ELocationID>
				<Abstract>
					<AbstractText Label="BACKGROUND">Garlic is widely consumed.</AbstractText>
					<AbstractText Label="RESULTS">Extracts showed high activity.</AbstractText>
				</Abstract>
				<AuthorList>
					<Author ValidYN="Y"><LastName>Doe</LastName><ForeName>John</ForeName></Author>
					<Author ValidYN="Y"><LastName>Smith</LastName><ForeName>Jane</ForeName></Author>
				</AuthorList>
				<ArticleDate DateType="Electronic"><Year>2020</Year><Month>12</Month><Day>5</Day></ArticleDate>
			</Article>
		</MedlineCitation>
		<PubmedData>
			<ArticleIdList>
				<ArticleId IdType="pubmed">33555111</ArticleId>
				<ArticleId IdType="pmc">PMC7891234</ArticleId>
			</ArticleIdList>
		</PubmedData>
	</PubmedArticle>
</PubmedArticleSet>`

func TestClient_Scrape(t *testing.T) {
	ctx := context.Background()

	t.Run("pairs esearch with efetch and maps articles", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/esearch.fcgi":
				assert.Equal(t, "garlic", r.URL.Query().Get("term"))
				assert.Equal(t, "y", r.URL.Query().Get("usehistory"))
				fmt.Fprint(w, esearchXML(1, "33555111"))
			case "/efetch.fcgi":
				assert.Equal(t, "MCID_TEST", r.URL.Query().Get("WebEnv"))
				assert.Equal(t, "1", r.URL.Query().Get("query_key"))
				fmt.Fprint(w, efetchXML)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer server.Close()

		client := NewWithHTTPClient(Config{BaseURL: server.URL, Enabled: true}, newTestHTTPClient())

		var emitted []*domain.Article
		stats, err := client.Scrape(ctx, scrape.ScrapeParams{Keyword: "garlic"}, func(ctx context.Context, article *domain.Article) error {
			emitted = append(emitted, article)
			return nil
		})
		require.NoError(t, err)

		assert.Equal(t, 1, stats.Total)
		assert.Equal(t, 1, stats.Scanned)
		require.Len(t, emitted, 1)

		a := emitted[0]
		assert.Equal(t, "10.1016/j.lwt.2020.110611", a.Identity.DOI)
		assert.Equal(t, "33555111", a.Identity.UID)
		assert.Equal(t, "PMC7891234", a.Identity.PMC)
		assert.Equal(t, "Antioxidant capacity of Allium sativum extracts", a.Title)
		assert.Equal(t, "BACKGROUND: Garlic is widely consumed. RESULTS: Extracts showed high activity.", a.Abstract)
		assert.Equal(t, []string{"Doe, John", "Smith, Jane"}, a.Creators)
		assert.Equal(t, "LWT - Food Science and Technology", a.PublicationName)
		assert.Equal(t, "0023-6438", a.ISSN)
		assert.Equal(t, "1096-1127", a.EISSN)
		require.NotNil(t, a.PublicationDate)
		assert.Equal(t, 2020, a.Year)
		assert.Equal(t, domain.SourceTypePubMed, a.Database)
	})

	t.Run("pages by record offset", func(t *testing.T) {
		var offsets []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/esearch.fcgi":
				offsets = append(offsets, r.URL.Query().Get("retstart"))
				fmt.Fprint(w, esearchXML(4, "1", "2"))
			case "/efetch.fcgi":
				fmt.Fprint(w, efetchXML)
			}
		}))
		defer server.Close()

		client := NewWithHTTPClient(Config{BaseURL: server.URL, PageSize: 2, Enabled: true}, newTestHTTPClient())

		stats, err := client.Scrape(ctx, scrape.ScrapeParams{Keyword: "garlic"}, func(ctx context.Context, article *domain.Article) error {
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"0", "2"}, offsets)
		assert.Equal(t, 4, stats.Total)
		assert.Equal(t, 2, stats.Scanned)
	})

	t.Run("stops after zero matches", func(t *testing.T) {
		efetches := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/esearch.fcgi":
				fmt.Fprint(w, esearchXML(0))
			case "/efetch.fcgi":
				efetches++
			}
		}))
		defer server.Close()

		client := NewWithHTTPClient(Config{BaseURL: server.URL, Enabled: true}, newTestHTTPClient())

		stats, err := client.Scrape(ctx, scrape.ScrapeParams{Keyword: "garlic"}, func(ctx context.Context, article *domain.Article) error {
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Total)
		assert.Equal(t, 0, efetches)
	})

	t.Run("forfeits page when esearch fails", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewWithHTTPClient(Config{BaseURL: server.URL, PageSize: 10, Enabled: true}, newTestHTTPClient())

		stats, err := client.Scrape(ctx, scrape.ScrapeParams{Keyword: "garlic"}, func(ctx context.Context, article *domain.Article) error {
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, stats.PagesFailed)
		assert.Equal(t, 0, stats.Scanned)
	})

	t.Run("forfeits page when efetch fails", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/esearch.fcgi":
				fmt.Fprint(w, esearchXML(1, "1"))
			case "/efetch.fcgi":
				w.WriteHeader(http.StatusServiceUnavailable)
			}
		}))
		defer server.Close()

		client := NewWithHTTPClient(Config{BaseURL: server.URL, Enabled: true}, newTestHTTPClient())

		stats, err := client.Scrape(ctx, scrape.ScrapeParams{Keyword: "garlic"}, func(ctx context.Context, article *domain.Article) error {
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, stats.PagesFailed)
		assert.Equal(t, 0, stats.Scanned)
	})

	t.Run("returns error when disabled", func(t *testing.T) {
		client := New(Config{Enabled: false})

		_, err := client.Scrape(ctx, scrape.ScrapeParams{Keyword: "garlic"}, func(ctx context.Context, article *domain.Article) error {
			return nil
		})
		assert.ErrorIs(t, err, domain.ErrSourceDisabled)
	})
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text", "Garlic extracts", "Garlic extracts"},
		{"inline markup", "Study of <i>Allium sativum</i> bulbs", "Study of Allium sativum bulbs"},
		{"superscripts", "Ca<sup>2+</sup> binding", "Ca2+ binding"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripHTML(tt.input))
		})
	}
}

func TestExtractDate(t *testing.T) {
	t.Run("prefers article date", func(t *testing.T) {
		article := Article{
			ArticleDate: []ArticleDate{{DateType: "Electronic", Year: "2020", Month: "12", Day: "5"}},
			Journal: Journal{
				JournalIssue: JournalIssue{PubDate: PubDate{Year: "2021", Month: "Mar"}},
			},
		}
		d, year := extractDate(article)
		require.NotNil(t, d)
		assert.Equal(t, 2020, year)
		assert.Equal(t, time.December, d.Month())
	})

	t.Run("falls back to medline date year", func(t *testing.T) {
		article := Article{
			Journal: Journal{
				JournalIssue: JournalIssue{PubDate: PubDate{MedlineDate: "2019 Jan-Feb"}},
			},
		}
		d, year := extractDate(article)
		require.NotNil(t, d)
		assert.Equal(t, 2019, year)
	})

	t.Run("nil without any date", func(t *testing.T) {
		d, year := extractDate(Article{})
		assert.Nil(t, d)
		assert.Equal(t, 0, year)
	})
}
