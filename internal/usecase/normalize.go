// Package usecase hosts pure business logic shared by the worker
// processes: input normalization for the scoring adapter and persona
// bucket mapping.
package usecase

import "github.com/bishnubista/pipeline-whisperer/internal/domain"

// sizeBuckets maps a company-size range string onto an estimated employee
// count, per the scoring adapter's input normalization table.
var sizeBuckets = map[string]int{
	"1-10":    5,
	"11-50":   30,
	"51-200":  125,
	"201-1000": 600,
	"1000+":   2000,
}

// budgetBuckets maps a budget-range string onto an estimated revenue figure.
var budgetBuckets = map[string]float64{
	"<10k":      50_000,
	"10k-50k":   200_000,
	"50k-100k":  500_000,
	"100k-500k": 2_500_000,
	"500k+":     6_000_000,
}

// EmployeeCount returns the normalized employee count for a company-size
// bucket string, 0 for unknown buckets.
func EmployeeCount(sizeBucket string) int {
	if n, ok := sizeBuckets[sizeBucket]; ok {
		return n
	}
	return 0
}

// EstimatedRevenue returns the normalized revenue estimate for a
// budget-range bucket string, 0 for unknown buckets.
func EstimatedRevenue(budgetBucket string) float64 {
	if v, ok := budgetBuckets[budgetBucket]; ok {
		return v
	}
	return 0
}

// NormalizedCompany is the adapter-facing input shape for the scoring call.
type NormalizedCompany struct {
	CompanyName   string
	Industry      string
	EmployeeCount int
	Revenue       float64
	Website       string
}

// Normalize builds the scoring adapter's input from a raw lead event.
func Normalize(ev domain.RawLeadEvent) NormalizedCompany {
	return NormalizedCompany{
		CompanyName:   ev.Company.Name,
		Industry:      ev.Company.Industry,
		EmployeeCount: EmployeeCount(ev.Company.Size),
		Revenue:       EstimatedRevenue(ev.Metadata.BudgetRange),
		Website:       ev.Company.Website,
	}
}

// PersonaForUnmapped is the persona assigned when a scoring backend returns
// a persona string that doesn't match any known LeadPersona value.
const PersonaForUnmapped = domain.PersonaUnknown

// MapPersona validates a raw persona string against the known enum,
// defaulting unmapped or empty values to "unknown" per the scoring
// adapter's contract.
func MapPersona(raw string) domain.LeadPersona {
	switch domain.LeadPersona(raw) {
	case domain.PersonaEnterprise, domain.PersonaSMB, domain.PersonaStartup, domain.PersonaIndividual:
		return domain.LeadPersona(raw)
	default:
		return domain.PersonaUnknown
	}
}
