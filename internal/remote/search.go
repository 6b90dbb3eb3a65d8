package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Doc is one search hit.
type Doc struct {
	Identifier string     `json:"identifier"`
	Title      flexString `json:"title"`
}

// SearchResult is the decoded advanced-search response.
type SearchResult struct {
	NumFound int   `json:"numFound"`
	Docs     []Doc `json:"docs"`
}

type searchResponse struct {
	Response SearchResult `json:"response"`
}

// flexString accepts a JSON string or an array of strings; the archive
// returns either for multi-valued metadata.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*f = flexString(strings.Join(list, " "))
	return nil
}

func (f flexString) String() string { return string(f) }

// Search runs an advanced-search query and returns up to rows hits.
func (c *Client) Search(ctx context.Context, query string, rows int) (*SearchResult, error) {
	if rows <= 0 {
		rows = c.rows
	}
	params := url.Values{}
	params.Set("q", query)
	params.Add("fl[]", "identifier")
	params.Add("fl[]", "title")
	params.Set("rows", strconv.Itoa(rows))
	params.Set("output", "json")
	params.Set("sort[]", "downloads desc")

	status, body, err := c.do(ctx, "search", http.MethodGet, c.searchURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: %w", ErrInconclusive, &Error{StatusCode: status, Message: http.StatusText(status), Op: "search"})
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInconclusive, &Error{StatusCode: status, Message: "decode response: " + err.Error(), Op: "search"})
	}
	return &resp.Response, nil
}

// Probe reports whether an item with identifier exists. A 2xx or 3xx
// answer means it exists and 404 means it does not; anything else is
// inconclusive.
func (c *Client) Probe(ctx context.Context, identifier string) (bool, error) {
	status, _, err := c.do(ctx, "probe", http.MethodHead, c.detailsURL+"/"+url.PathEscape(identifier))
	if err != nil {
		return false, err
	}
	switch {
	case status >= 200 && status < 400:
		return true, nil
	case status == http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %w", ErrInconclusive, &Error{StatusCode: status, Message: http.StatusText(status), Op: "probe"})
	}
}
