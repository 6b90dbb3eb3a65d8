package remote

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rcliao/archive-sweep/internal/metrics"
	"github.com/rcliao/archive-sweep/internal/model"
	"github.com/rcliao/archive-sweep/internal/title"
)

// Exists reports whether a work with the given normalized title is already
// on the archive. It tries a title search, direct identifier probes and an
// identifier prefix search; any positive answer is enough. It fails closed:
// when no strategy reaches a positive verdict the result is not found,
// with Inconclusive set if some strategy gave up.
func (c *Client) Exists(ctx context.Context, query string) model.MatchResult {
	metrics.ChecksTotal.Add(1)
	query = strings.TrimSpace(query)
	if query == "" {
		return model.MatchResult{Method: model.MethodNone}
	}

	logger := c.logger.With("title", query)
	strategies := []struct {
		method model.Method
		run    func(context.Context, string) (model.MatchResult, error)
	}{
		{model.MethodTitleSearch, c.searchTitle},
		{model.MethodIdentifierProbe, c.probeIdentifiers},
		{model.MethodIdentifierPrefix, c.searchIdentifierPrefix},
	}

	inconclusive := false
	for _, s := range strategies {
		res, err := s.run(ctx, query)
		if res.Found {
			metrics.ChecksFound.Add(1)
			logger.Info("Found on archive", "method", res.Method, "identifier", res.MatchedIdentifier, "matched_title", res.MatchedTitle)
			return res
		}
		if err != nil {
			inconclusive = true
			logger.Warn("Existence strategy inconclusive", "method", s.method, "error", err)
			if ctx.Err() != nil {
				break
			}
		}
	}

	if inconclusive {
		metrics.ChecksInconclusive.Add(1)
	}
	return model.MatchResult{Method: model.MethodNone, Inconclusive: inconclusive}
}

func (c *Client) searchTitle(ctx context.Context, query string) (model.MatchResult, error) {
	q := `title:("` + strings.ReplaceAll(query, `"`, "") + `")`
	res, err := c.Search(ctx, q, c.rows)
	if err != nil {
		return model.MatchResult{}, err
	}
	for _, doc := range res.Docs {
		if title.Similar(query, title.Normalize(doc.Title.String())) {
			return model.MatchResult{
				Found:             true,
				MatchedIdentifier: doc.Identifier,
				MatchedTitle:      doc.Title.String(),
				Method:            model.MethodTitleSearch,
			}, nil
		}
	}
	return model.MatchResult{}, nil
}

// probeIdentifiers tests the derived identifier and its resubmission
// variants directly. Errors on individual probes do not stop the others.
func (c *Client) probeIdentifiers(ctx context.Context, query string) (model.MatchResult, error) {
	var errs []error
	for _, base := range title.IdentifierVariants(query) {
		candidates := append([]string{base}, c.withSuffixes(base)...)
		for _, id := range candidates {
			ok, err := c.Probe(ctx, id)
			if err != nil {
				errs = append(errs, err)
				if ctx.Err() != nil {
					return model.MatchResult{}, errors.Join(errs...)
				}
				continue
			}
			if ok {
				return model.MatchResult{Found: true, MatchedIdentifier: id, Method: model.MethodIdentifierProbe}, nil
			}
		}
	}
	return model.MatchResult{}, errors.Join(errs...)
}

// searchIdentifierPrefix lists identifiers starting with the derived
// identifier and accepts only exact resubmission variants of it.
func (c *Client) searchIdentifierPrefix(ctx context.Context, query string) (model.MatchResult, error) {
	var errs []error
	for _, base := range title.IdentifierVariants(query) {
		res, err := c.Search(ctx, "identifier:("+base+"*)", prefixRows)
		if err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		for _, doc := range res.Docs {
			if strings.EqualFold(doc.Identifier, base) || title.IsDuplicateOf(doc.Identifier, base) {
				return model.MatchResult{
					Found:             true,
					MatchedIdentifier: doc.Identifier,
					MatchedTitle:      doc.Title.String(),
					Method:            model.MethodIdentifierPrefix,
				}, nil
			}
		}
	}
	return model.MatchResult{}, errors.Join(errs...)
}

// withSuffixes appends the resubmission markers the archive adds to
// identifiers: the current and previous month as _YYYYMM, today and
// yesterday as _YYYYMMDD, plus any configured extras.
func (c *Client) withSuffixes(base string) []string {
	now := c.now()
	prevMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0)
	suffixes := []string{
		"_" + now.Format("200601"),
		"_" + now.Format("20060102"),
		"_" + prevMonth.Format("200601"),
		"_" + now.AddDate(0, 0, -1).Format("20060102"),
	}
	suffixes = append(suffixes, c.suffixes...)

	seen := make(map[string]bool, len(suffixes))
	out := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, base+s)
	}
	return out
}
