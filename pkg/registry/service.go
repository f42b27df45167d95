// Package registry exposes the typed endpoint surface of the company
// registry: search, company profile and its sub-resources, and the composed
// full-company aggregate.
package registry

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/detecktiv/registry-client/pkg/client"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Registry endpoint paths.
const (
	pathSearch         = "/search/companies"
	pathAdvancedSearch = "/advanced-search/companies"
)

// Service wraps the resilient client with the registry's endpoint layout.
type Service struct {
	client *client.Client
	logger zerolog.Logger
}

// New creates a registry service over an existing client.
func New(c *client.Client) *Service {
	return &Service{
		client: c,
		logger: log.With().Str("component", "registry").Logger(),
	}
}

// ListOptions controls paginated sub-resource fetches.
type ListOptions struct {
	PageSize   int
	StartIndex int
	// MaxItems caps the accumulated result; 0 means no cap.
	MaxItems int
}

// SearchOptions controls a single-page company search.
type SearchOptions struct {
	ItemsPerPage int
	StartIndex   int
	// Extra query parameters are passed through unless they collide with
	// the typed ones (q, items_per_page, start_index).
	Extra url.Values
}

// normalizeCompanyNumber trims and upper-cases a company number the way the
// registry expects it.
func normalizeCompanyNumber(number string) (string, error) {
	n := strings.ToUpper(strings.TrimSpace(number))
	if n == "" {
		return "", fmt.Errorf("company number must not be empty")
	}
	return n, nil
}

// searchParams builds the query for a search call.
func searchParams(query string, opts SearchOptions) url.Values {
	params := url.Values{}
	for key, values := range opts.Extra {
		switch key {
		case "q", "items_per_page", "start_index":
			continue
		}
		for _, v := range values {
			params.Add(key, v)
		}
	}
	params.Set("q", query)
	if opts.ItemsPerPage > 0 {
		params.Set("items_per_page", strconv.Itoa(opts.ItemsPerPage))
	}
	if opts.StartIndex > 0 {
		params.Set("start_index", strconv.Itoa(opts.StartIndex))
	}
	return params
}

// SearchCompanies performs a basic company search, returning one result page
// as the registry shaped it.
func (s *Service) SearchCompanies(ctx context.Context, query string, opts SearchOptions) (map[string]any, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, fmt.Errorf("search query must not be empty")
	}
	return s.client.Get(ctx, pathSearch, searchParams(q, opts))
}

// SearchCompaniesAdvanced performs an advanced company search.
func (s *Service) SearchCompaniesAdvanced(ctx context.Context, query string, opts SearchOptions) (map[string]any, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, fmt.Errorf("search query must not be empty")
	}
	return s.client.Get(ctx, pathAdvancedSearch, searchParams(q, opts))
}

// Search tries the advanced search endpoint first and falls back to the basic
// one when it errors. The advanced endpoint supports richer filters but is
// flakier upstream.
func (s *Service) Search(ctx context.Context, query string, opts SearchOptions) (map[string]any, error) {
	out, err := s.SearchCompaniesAdvanced(ctx, query, opts)
	if err == nil {
		return out, nil
	}
	s.logger.Debug().Err(err).Msg("Advanced search failed, falling back to basic search")
	return s.SearchCompanies(ctx, query, opts)
}

// Profile fetches a company's profile record.
func (s *Service) Profile(ctx context.Context, companyNumber string) (map[string]any, error) {
	num, err := normalizeCompanyNumber(companyNumber)
	if err != nil {
		return nil, err
	}
	return s.client.Get(ctx, "/company/"+num, nil)
}

// list runs the pager over a company sub-resource.
func (s *Service) list(ctx context.Context, path string, opts ListOptions) (*client.PagedResult, error) {
	return s.client.FetchAll(ctx, path, client.PageOptions{
		PageSize:   opts.PageSize,
		StartIndex: opts.StartIndex,
		MaxItems:   opts.MaxItems,
	})
}

// Officers fetches a company's officer list across pages.
func (s *Service) Officers(ctx context.Context, companyNumber string, opts ListOptions) (*client.PagedResult, error) {
	num, err := normalizeCompanyNumber(companyNumber)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, "/company/"+num+"/officers", opts)
}

// FilingHistory fetches a company's filing history across pages.
func (s *Service) FilingHistory(ctx context.Context, companyNumber string, opts ListOptions) (*client.PagedResult, error) {
	num, err := normalizeCompanyNumber(companyNumber)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, "/company/"+num+"/filing-history", opts)
}

// PSCIndividuals fetches individual persons with significant control.
func (s *Service) PSCIndividuals(ctx context.Context, companyNumber string, opts ListOptions) (*client.PagedResult, error) {
	num, err := normalizeCompanyNumber(companyNumber)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, "/company/"+num+"/persons-with-significant-control/individual", opts)
}

// PSCCorporate fetches corporate-entity persons with significant control.
func (s *Service) PSCCorporate(ctx context.Context, companyNumber string, opts ListOptions) (*client.PagedResult, error) {
	num, err := normalizeCompanyNumber(companyNumber)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, "/company/"+num+"/persons-with-significant-control/corporate-entity", opts)
}

// PSCLegalPersons fetches legal-person persons with significant control.
func (s *Service) PSCLegalPersons(ctx context.Context, companyNumber string, opts ListOptions) (*client.PagedResult, error) {
	num, err := normalizeCompanyNumber(companyNumber)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, "/company/"+num+"/persons-with-significant-control/legal-person", opts)
}

// PSCStatements fetches persons-with-significant-control statements.
func (s *Service) PSCStatements(ctx context.Context, companyNumber string, opts ListOptions) (*client.PagedResult, error) {
	num, err := normalizeCompanyNumber(companyNumber)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, "/company/"+num+"/persons-with-significant-control-statements", opts)
}

// Charges fetches a company's registered charges across pages.
func (s *Service) Charges(ctx context.Context, companyNumber string, opts ListOptions) (*client.PagedResult, error) {
	num, err := normalizeCompanyNumber(companyNumber)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, "/company/"+num+"/charges", opts)
}

// UKEstablishments fetches a company's UK establishments across pages.
func (s *Service) UKEstablishments(ctx context.Context, companyNumber string, opts ListOptions) (*client.PagedResult, error) {
	num, err := normalizeCompanyNumber(companyNumber)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, "/company/"+num+"/uk-establishments", opts)
}

// Insolvency fetches a company's insolvency record. Many companies have none;
// the registry answers 404 for those.
func (s *Service) Insolvency(ctx context.Context, companyNumber string) (map[string]any, error) {
	num, err := normalizeCompanyNumber(companyNumber)
	if err != nil {
		return nil, err
	}
	return s.client.Get(ctx, "/company/"+num+"/insolvency", nil)
}

// Exemptions fetches a company's exemptions record.
func (s *Service) Exemptions(ctx context.Context, companyNumber string) (map[string]any, error) {
	num, err := normalizeCompanyNumber(companyNumber)
	if err != nil {
		return nil, err
	}
	return s.client.Get(ctx, "/company/"+num+"/exemptions", nil)
}

// Registers fetches a company's registers record.
func (s *Service) Registers(ctx context.Context, companyNumber string) (map[string]any, error) {
	num, err := normalizeCompanyNumber(companyNumber)
	if err != nil {
		return nil, err
	}
	return s.client.Get(ctx, "/company/"+num+"/registers", nil)
}

// OfficerAppointments fetches an officer's appointments across pages.
func (s *Service) OfficerAppointments(ctx context.Context, officerID string, opts ListOptions) (*client.PagedResult, error) {
	id := strings.TrimSpace(officerID)
	if id == "" {
		return nil, fmt.Errorf("officer id must not be empty")
	}
	return s.list(ctx, "/officers/"+id+"/appointments", opts)
}
