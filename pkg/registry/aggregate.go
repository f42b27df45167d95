package registry

import (
	"context"
	"strings"

	"github.com/detecktiv/registry-client/pkg/client"
)

// Default caps for the full-company aggregate.
const (
	DefaultResourceCap               = 500
	DefaultMaxAppointmentsPerOfficer = 200
	DefaultMaxOfficersForEnrichment  = 50
)

// Collection is a paginated aggregate slot. Available is explicit: a slot is
// either populated or marked unavailable, never ambiguously nil.
type Collection struct {
	Available    bool             `json:"available"`
	Items        []map[string]any `json:"items,omitempty"`
	TotalResults int              `json:"total_results,omitempty"`
}

// Resource is a single-document aggregate slot.
type Resource struct {
	Available bool           `json:"available"`
	Data      map[string]any `json:"data,omitempty"`
}

// CompanyFull is the composed aggregate for one company. Every slot except
// the profile is fetched independently; one sub-resource failing never
// invalidates another.
type CompanyFull struct {
	Profile          map[string]any `json:"profile"`
	Officers         Collection     `json:"officers"`
	FilingHistory    Collection     `json:"filing_history"`
	PSCIndividuals   Collection     `json:"psc_individuals"`
	PSCCorporate     Collection     `json:"psc_corporate"`
	PSCLegalPersons  Collection     `json:"psc_legal_persons"`
	PSCStatements    Collection     `json:"psc_statements"`
	Charges          Collection     `json:"charges"`
	Insolvency       Resource       `json:"insolvency"`
	Exemptions       Resource       `json:"exemptions"`
	Registers        Resource       `json:"registers"`
	UKEstablishments Collection     `json:"uk_establishments"`

	// OfficerAppointments maps officer ID to that officer's appointments.
	// Populated only when enrichment is requested.
	OfficerAppointments map[string]Collection `json:"officer_appointments,omitempty"`
}

// FullOptions bounds the aggregate's sub-resource fetches and the optional
// officer-appointment enrichment. The enrichment caps exist to keep one
// aggregate call from amplifying into an unbounded number of requests.
type FullOptions struct {
	MaxFilings          int
	MaxOfficers         int
	MaxPSC              int
	MaxCharges          int
	MaxUKEstablishments int

	EnrichOfficerAppointments bool
	MaxAppointmentsPerOfficer int
	MaxOfficersForEnrichment  int
}

// withDefaults fills unset caps.
func (o FullOptions) withDefaults() FullOptions {
	if o.MaxFilings <= 0 {
		o.MaxFilings = DefaultResourceCap
	}
	if o.MaxOfficers <= 0 {
		o.MaxOfficers = DefaultResourceCap
	}
	if o.MaxPSC <= 0 {
		o.MaxPSC = DefaultResourceCap
	}
	if o.MaxCharges <= 0 {
		o.MaxCharges = DefaultResourceCap
	}
	if o.MaxUKEstablishments <= 0 {
		o.MaxUKEstablishments = DefaultResourceCap
	}
	if o.MaxAppointmentsPerOfficer <= 0 {
		o.MaxAppointmentsPerOfficer = DefaultMaxAppointmentsPerOfficer
	}
	if o.MaxOfficersForEnrichment <= 0 {
		o.MaxOfficersForEnrichment = DefaultMaxOfficersForEnrichment
	}
	return o
}

// CompanyFull fetches a company's profile and all its sub-resources as one
// aggregate. The profile is fetched first and its failure propagates; every
// other slot tolerates failure and is marked unavailable instead, so a
// missing ancillary record (exemptions, say) never costs the caller an
// otherwise-successful profile.
func (s *Service) CompanyFull(ctx context.Context, companyNumber string, opts FullOptions) (*CompanyFull, error) {
	num, err := normalizeCompanyNumber(companyNumber)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	profile, err := s.Profile(ctx, num)
	if err != nil {
		return nil, err
	}

	full := &CompanyFull{Profile: profile}

	full.Officers = s.collection(ctx, num, "officers", func() (*client.PagedResult, error) {
		return s.Officers(ctx, num, ListOptions{MaxItems: opts.MaxOfficers})
	})
	full.FilingHistory = s.collection(ctx, num, "filing_history", func() (*client.PagedResult, error) {
		return s.FilingHistory(ctx, num, ListOptions{MaxItems: opts.MaxFilings})
	})
	full.PSCIndividuals = s.collection(ctx, num, "psc_individuals", func() (*client.PagedResult, error) {
		return s.PSCIndividuals(ctx, num, ListOptions{MaxItems: opts.MaxPSC})
	})
	full.PSCCorporate = s.collection(ctx, num, "psc_corporate", func() (*client.PagedResult, error) {
		return s.PSCCorporate(ctx, num, ListOptions{MaxItems: opts.MaxPSC})
	})
	full.PSCLegalPersons = s.collection(ctx, num, "psc_legal_persons", func() (*client.PagedResult, error) {
		return s.PSCLegalPersons(ctx, num, ListOptions{MaxItems: opts.MaxPSC})
	})
	full.PSCStatements = s.collection(ctx, num, "psc_statements", func() (*client.PagedResult, error) {
		return s.PSCStatements(ctx, num, ListOptions{MaxItems: opts.MaxPSC})
	})
	full.Charges = s.collection(ctx, num, "charges", func() (*client.PagedResult, error) {
		return s.Charges(ctx, num, ListOptions{MaxItems: opts.MaxCharges})
	})
	full.UKEstablishments = s.collection(ctx, num, "uk_establishments", func() (*client.PagedResult, error) {
		return s.UKEstablishments(ctx, num, ListOptions{MaxItems: opts.MaxUKEstablishments})
	})

	full.Insolvency = s.resource(ctx, num, "insolvency", func() (map[string]any, error) {
		return s.Insolvency(ctx, num)
	})
	full.Exemptions = s.resource(ctx, num, "exemptions", func() (map[string]any, error) {
		return s.Exemptions(ctx, num)
	})
	full.Registers = s.resource(ctx, num, "registers", func() (map[string]any, error) {
		return s.Registers(ctx, num)
	})

	if opts.EnrichOfficerAppointments && full.Officers.Available {
		full.OfficerAppointments = s.enrichOfficers(ctx, full.Officers.Items, opts)
	}

	return full, nil
}

// collection fetches one paginated slot, swallowing failure into an
// unavailable marker.
func (s *Service) collection(ctx context.Context, companyNumber, slot string, fetch func() (*client.PagedResult, error)) Collection {
	result, err := fetch()
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("company_number", companyNumber).
			Str("slot", slot).
			Msg("Aggregate sub-resource unavailable")
		return Collection{}
	}
	return Collection{Available: true, Items: result.Items, TotalResults: result.TotalResults}
}

// resource fetches one single-document slot, swallowing failure into an
// unavailable marker.
func (s *Service) resource(ctx context.Context, companyNumber, slot string, fetch func() (map[string]any, error)) Resource {
	data, err := fetch()
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("company_number", companyNumber).
			Str("slot", slot).
			Msg("Aggregate sub-resource unavailable")
		return Resource{}
	}
	return Resource{Available: true, Data: data}
}

// enrichOfficers performs the bounded second-level fan-out: up to
// MaxOfficersForEnrichment unique officer IDs from the listing, each fetching
// at most MaxAppointmentsPerOfficer appointments. Per-officer failures are
// recorded as unavailable without aborting the batch.
func (s *Service) enrichOfficers(ctx context.Context, officers []map[string]any, opts FullOptions) map[string]Collection {
	ids := make([]string, 0, opts.MaxOfficersForEnrichment)
	seen := make(map[string]bool)
	for _, officer := range officers {
		id, ok := extractOfficerID(officer)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
		if len(ids) >= opts.MaxOfficersForEnrichment {
			break
		}
	}

	appointments := make(map[string]Collection, len(ids))
	for _, id := range ids {
		result, err := s.OfficerAppointments(ctx, id, ListOptions{MaxItems: opts.MaxAppointmentsPerOfficer})
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("officer_id", id).
				Msg("Officer appointments unavailable")
			appointments[id] = Collection{}
			continue
		}
		appointments[id] = Collection{Available: true, Items: result.Items, TotalResults: result.TotalResults}
	}
	return appointments
}

// extractOfficerID pulls an officer's ID out of a listing item. The registry
// varies the shape, so the fallback order is part of the contract: a direct
// officer_id field, then the officer appointments link, then the item's self
// link. The first match wins.
func extractOfficerID(item map[string]any) (string, bool) {
	if id, ok := item["officer_id"].(string); ok && id != "" {
		return id, true
	}

	links, ok := item["links"].(map[string]any)
	if !ok {
		return "", false
	}

	if officer, ok := links["officer"].(map[string]any); ok {
		if appointments, ok := officer["appointments"].(string); ok {
			if id := officerIDFromPath(appointments); id != "" {
				return id, true
			}
		}
	}

	if self, ok := links["self"].(string); ok {
		if id := officerIDFromPath(self); id != "" {
			return id, true
		}
	}

	return "", false
}

// officerIDFromPath extracts the ID segment from an "/officers/{id}/…" link.
func officerIDFromPath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, segment := range segments {
		if segment == "officers" && i+1 < len(segments) {
			return segments[i+1]
		}
	}
	return ""
}
