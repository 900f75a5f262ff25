// Package reststore implements relation.DataStore over an HTTP JSON
// API, translating a planned relation.QueryParams into a single
// request (or, for backends that can't express "in", a small fan-out
// of "eq" requests merged and deduplicated) per spec.md §6's wire
// conventions.
package reststore

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

	"github.com/gokando/relquery/pkg/relation"
)

// Pagination configures the limit/offset (or page) query parameters a
// backend expects.
type Pagination struct {
	LimitParam  string
	OffsetParam string
	MaxPageSize int
}

// Config is RestDataStoreConfig from spec.md §6.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Headers map[string]string

	Pagination Pagination

	// PrimaryKeyInPath is carried for configuration compatibility only:
	// the store does not read it. Every relationIdentifier goes through
	// path-template rendering (":name"/":name?" tokens such as
	// "/users/:id/posts"); an identifier without tokens passes through
	// unchanged.
	PrimaryKeyInPath bool

	// SupportsInOperator, if true, serializes an `in` WhereCondition as
	// a single comma-joined query parameter; if false, the store issues
	// one `eq` request per value and deduplicates rows structurally.
	SupportsInOperator bool

	// SupportsFieldSelection, if true, adds a `fields` query parameter
	// listing SelectColumns.
	SupportsFieldSelection bool

	// URLBuilder, if set, overrides the default path-template + query-
	// string URL construction entirely.
	URLBuilder func(relationIdentifier string, query url.Values, pathParams map[string]string) string

	// QueryParamFormatter, if set, overrides how a single WhereCondition
	// is rendered into query.Values (the default follows spec.md §6:
	// eq -> col=value, range -> col[op]=value).
	QueryParamFormatter func(query url.Values, cond relation.WhereCondition)
}

// Store is a relation.DataStore backed by an HTTP JSON API.
type Store struct {
	config Config
	client *http.Client
}

// New builds a Store. A zero-value http.Client with config.Timeout is
// used unless httpClient is non-nil.
func New(config Config, httpClient *http.Client) (*Store, error) {
	if config.BaseURL == "" {
		return nil, relation.ErrConfigInvalid
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	return &Store{config: config, client: httpClient}, nil
}

// Type identifies this adapter kind.
func (s *Store) Type() string { return "rest" }

// ExecuteQuery implements relation.DataStore.
func (s *Store) ExecuteQuery(ctx context.Context, params relation.QueryParams) ([]relation.DataRow, error) {
	inConds, plain := splitInConditions(params.WhereConditions, s.config.SupportsInOperator)

	if len(inConds) == 0 {
		return s.executeOne(ctx, params, plain)
	}

	// supportsInOperator is false and at least one `in` condition is
	// present: fan out into one `eq` request per (condition, value)
	// combination and merge+dedupe row-wise (spec.md §6).
	expansions := expandInConditions(inConds)
	seen := make(map[string]struct{})
	var merged []relation.DataRow
	for _, extra := range expansions {
		rows, err := s.executeOne(ctx, params, append(append([]relation.WhereCondition{}, plain...), extra...))
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			key := rowKey(row)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, row)
		}
	}
	return merged, nil
}

func splitInConditions(conds []relation.WhereCondition, supportsIn bool) (inConds, plain []relation.WhereCondition) {
	for _, c := range conds {
		if c.Operator == relation.OpIn && !supportsIn {
			inConds = append(inConds, c)
			continue
		}
		plain = append(plain, c)
	}
	return inConds, plain
}

// expandInConditions turns [{col:a, in:[1,2]}, {col:b, in:[x,y]}] into
// the cartesian product of eq-conditions, one combination per request.
func expandInConditions(inConds []relation.WhereCondition) [][]relation.WhereCondition {
	combos := [][]relation.WhereCondition{{}}
	for _, cond := range inConds {
		var next [][]relation.WhereCondition
		for _, combo := range combos {
			for _, v := range cond.Values {
				extended := append(append([]relation.WhereCondition{}, combo...), relation.WhereCondition{
					Column: cond.Column, Operator: relation.OpEq, Value: v,
				})
				next = append(next, extended)
			}
		}
		combos = next
	}
	return combos
}

func rowKey(row relation.DataRow) string {
	b, _ := json.Marshal(row)
	return string(b)
}

// executeOne issues the request for relationIdentifier with the given
// conditions, auto-paginating if the response uses the
// {results, page} shape (spec.md §6).
func (s *Store) executeOne(ctx context.Context, params relation.QueryParams, conds []relation.WhereCondition) ([]relation.DataRow, error) {
	path, pathParams, remaining, err := renderPathTemplate(params.RelationIdentifier, conds)
	if err != nil {
		return nil, relation.PermanentError(err)
	}

	baseLimit := 50
	if params.Limit != nil {
		baseLimit = *params.Limit
	}
	pageSize := baseLimit
	if s.config.Pagination.MaxPageSize > 0 && pageSize > s.config.Pagination.MaxPageSize {
		pageSize = s.config.Pagination.MaxPageSize
	}

	limitParam := s.config.Pagination.LimitParam
	if limitParam == "" {
		limitParam = "limit"
	}
	offsetParam := s.config.Pagination.OffsetParam
	if offsetParam == "" {
		offsetParam = "offset"
	}

	offset := 0
	if params.Offset != nil {
		offset = *params.Offset
	}

	var all []relation.DataRow
	page := 1
	for {
		query := url.Values{}
		for _, c := range remaining {
			s.formatCondition(query, c)
		}
		if s.config.SupportsFieldSelection && len(params.SelectColumns) > 0 {
			query.Set("fields", strings.Join(params.SelectColumns, ","))
		}
		query.Set(limitParam, strconv.Itoa(pageSize))
		query.Set(offsetParam, strconv.Itoa(offset))
		query.Set("page", strconv.Itoa(page))

		requestURL := s.buildURL(path, query, pathParams)
		if params.LogSink != nil {
			params.LogSink(requestURL)
		}

		rows, shape, err := s.doRequest(ctx, requestURL)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)

		if shape != shapePaged || len(rows) < pageSize || len(rows) == 0 {
			break
		}
		if params.Limit != nil && len(all) >= *params.Limit {
			all = all[:*params.Limit]
			break
		}
		page++
		offset += pageSize
	}

	return all, nil
}

func (s *Store) formatCondition(query url.Values, cond relation.WhereCondition) {
	if s.config.QueryParamFormatter != nil {
		s.config.QueryParamFormatter(query, cond)
		return
	}
	switch cond.Operator {
	case relation.OpEq:
		query.Set(cond.Column, fmt.Sprintf("%v", cond.Value))
	case relation.OpIn:
		parts := make([]string, len(cond.Values))
		for i, v := range cond.Values {
			parts[i] = fmt.Sprintf("%v", v)
		}
		query.Set(cond.Column, strings.Join(parts, ","))
	case relation.OpGt, relation.OpLt, relation.OpGte, relation.OpLte, relation.OpLike:
		query.Set(fmt.Sprintf("%s[%s]", cond.Column, cond.Operator), fmt.Sprintf("%v", cond.Value))
	}
}

func (s *Store) buildURL(path string, query url.Values, pathParams map[string]string) string {
	if s.config.URLBuilder != nil {
		return s.config.URLBuilder(path, query, pathParams)
	}
	u := strings.TrimRight(s.config.BaseURL, "/") + path
	if encoded := query.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}

type responseShape int

const (
	shapeArray responseShape = iota
	shapeData
	shapePaged
)

func (s *Store) doRequest(ctx context.Context, requestURL string) ([]relation.DataRow, responseShape, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, 0, relation.PermanentError(err)
	}
	for k, v := range s.config.Headers {
		req.Header.Set(k, v)
	}
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, relation.TransientError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, relation.TransientError(err)
	}

	if resp.StatusCode >= 500 {
		return nil, 0, relation.TransientError(fmt.Errorf("reststore: %s returned %d", requestURL, resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, 0, relation.PermanentError(fmt.Errorf("reststore: %s returned %d", requestURL, resp.StatusCode))
	}

	return parseResponse(body)
}

func parseResponse(body []byte) ([]relation.DataRow, responseShape, error) {
	var arr []relation.DataRow
	if err := json.Unmarshal(body, &arr); err == nil {
		return arr, shapeArray, nil
	}

	var withData struct {
		Data []relation.DataRow `json:"data"`
	}
	if err := json.Unmarshal(body, &withData); err == nil && withData.Data != nil {
		return withData.Data, shapeData, nil
	}

	var paged struct {
		Results []relation.DataRow `json:"results"`
		Page    int                `json:"page"`
	}
	if err := json.Unmarshal(body, &paged); err == nil && paged.Results != nil {
		return paged.Results, shapePaged, nil
	}

	return nil, 0, relation.PermanentError(fmt.Errorf("reststore: unrecognized response shape"))
}

// renderPathTemplate substitutes ":name"/":name?" tokens in template
// with the matching eq condition's value (percent-encoded), collapses
// consecutive slashes, and returns the path, a map of which columns
// were consumed by the path, and the WhereConditions not consumed.
func renderPathTemplate(template string, conds []relation.WhereCondition) (path string, pathParams map[string]string, remaining []relation.WhereCondition, err error) {
	segments := strings.Split(template, "/")
	consumed := make(map[string]struct{})
	pathParams = make(map[string]string)

	for i, seg := range segments {
		if !strings.HasPrefix(seg, ":") {
			continue
		}
		optional := strings.HasSuffix(seg, "?")
		name := strings.TrimSuffix(strings.TrimPrefix(seg, ":"), "?")

		value, found := findEq(conds, name)
		if !found {
			if optional {
				segments[i] = ""
				continue
			}
			return "", nil, nil, fmt.Errorf("reststore: missing required path parameter %q in %q", name, template)
		}
		consumed[name] = struct{}{}
		encoded := url.PathEscape(fmt.Sprintf("%v", value))
		segments[i] = encoded
		pathParams[name] = encoded
	}

	for _, c := range conds {
		if _, ok := consumed[c.Column]; ok {
			continue
		}
		remaining = append(remaining, c)
	}

	path = collapseSlashes(strings.Join(segments, "/"))
	return path, pathParams, remaining, nil
}

func findEq(conds []relation.WhereCondition, column string) (interface{}, bool) {
	for _, c := range conds {
		if c.Column == column && c.Operator == relation.OpEq {
			return c.Value, true
		}
	}
	return nil, false
}

func collapseSlashes(path string) string {
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
