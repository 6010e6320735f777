package literature

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Article is one PubMed summary
type Article struct {
	PMID    string
	Title   string
	Journal string
	PubDate string
	Authors []string
}

// PubMedClient queries NCBI E-utilities
type PubMedClient struct {
	baseURL string
	client  *http.Client
}

// NewPubMedClient creates a client for baseURL
func NewPubMedClient(baseURL string, timeout time.Duration) *PubMedClient {
	return &PubMedClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Search runs esearch then esummary and returns up to max articles along
// with the total hit count
func (c *PubMedClient) Search(ctx context.Context, term string, max int) ([]Article, int, error) {
	var search struct {
		Result struct {
			Count  string   `json:"count"`
			IDList []string `json:"idlist"`
		} `json:"esearchresult"`
	}
	q := url.Values{
		"db":      {"pubmed"},
		"term":    {term},
		"retmode": {"json"},
		"retmax":  {strconv.Itoa(max)},
	}
	if err := c.get(ctx, "esearch.fcgi", q, &search); err != nil {
		return nil, 0, err
	}
	total, _ := strconv.Atoi(search.Result.Count)
	if len(search.Result.IDList) == 0 {
		return nil, total, nil
	}

	var summary struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	q = url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(search.Result.IDList, ",")},
		"retmode": {"json"},
	}
	if err := c.get(ctx, "esummary.fcgi", q, &summary); err != nil {
		return nil, total, err
	}

	articles := make([]Article, 0, len(search.Result.IDList))
	for _, id := range search.Result.IDList {
		raw, ok := summary.Result[id]
		if !ok {
			continue
		}
		var doc struct {
			Title   string `json:"title"`
			Source  string `json:"source"`
			PubDate string `json:"pubdate"`
			Authors []struct {
				Name string `json:"name"`
			} `json:"authors"`
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		a := Article{PMID: id, Title: doc.Title, Journal: doc.Source, PubDate: doc.PubDate}
		for _, au := range doc.Authors {
			a.Authors = append(a.Authors, au.Name)
		}
		articles = append(articles, a)
	}
	return articles, total, nil
}

func (c *PubMedClient) get(ctx context.Context, endpoint string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("pubmed %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("pubmed %s returned %d %s: %s", endpoint, resp.StatusCode, http.StatusText(resp.StatusCode), body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode pubmed %s: %w", endpoint, err)
	}
	return nil
}
