package classify

import (
	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
)

// RegulationPolicy is the explicit TableContext to Regulation mapping
// table. Matching code never falls back to a literal regulation; every
// assignment routes through this table so the mapping stays inspectable
// and overridable in one place.
type RegulationPolicy struct {
	domains map[models.DomainCategory]domainPolicy
	// portable marks data-anchored regulations that follow their data
	// into any table domain: card data is PCI-DSS wherever it lives.
	// HIPAA is deliberately absent; it is context-bound, so a clinical
	// pattern inside a non-healthcare table does not carry it along.
	portable map[models.Regulation]bool
}

type domainPolicy struct {
	// precedence orders the regulations considered when a pattern's own
	// tags intersect the domain's candidates.
	precedence []models.Regulation
	// fallback applies when no tagged regulation does. For healthcare
	// this is HIPAA: generic identity fields in a clinical table are PHI
	// even though their patterns are tagged GDPR/CCPA.
	fallback models.Regulation
}

// DefaultRegulationPolicy returns the standard mapping.
func DefaultRegulationPolicy() *RegulationPolicy {
	return &RegulationPolicy{
		domains: map[models.DomainCategory]domainPolicy{
			models.DomainHealthcare: {
				precedence: []models.Regulation{models.RegulationHIPAA, models.RegulationPCIDSS},
				fallback:   models.RegulationHIPAA,
			},
			models.DomainFinancial: {
				precedence: []models.Regulation{models.RegulationPCIDSS, models.RegulationGDPR, models.RegulationCCPA},
				fallback:   models.RegulationGDPR,
			},
			models.DomainEducation: {
				precedence: []models.Regulation{models.RegulationGDPR, models.RegulationCCPA},
				fallback:   models.RegulationGDPR,
			},
			models.DomainBusiness: {
				precedence: []models.Regulation{models.RegulationGDPR, models.RegulationCCPA},
				fallback:   models.RegulationGDPR,
			},
			models.DomainGeneral: {
				precedence: []models.Regulation{models.RegulationGDPR, models.RegulationCCPA},
				fallback:   models.RegulationGDPR,
			},
		},
		portable: map[models.Regulation]bool{
			models.RegulationPCIDSS: true,
		},
	}
}

// Resolve derives the regulation set for a sensitive field from its
// table domain and the regulations its pattern is tagged with.
//
// Precedence:
//  1. A tagged regulation the domain also lists wins, in the domain's
//     precedence order (a PCI-DSS card pattern inside a healthcare
//     table resolves PCI-DSS, the regulation-specific override).
//  2. A tagged portable regulation follows its data into any domain
//     (card data in a commerce table is still PCI-DSS).
//  3. Otherwise the domain's fallback applies: HIPAA for healthcare
//     tables, GDPR elsewhere. A clinical pattern stranded in a
//     financial table therefore resolves GDPR, never HIPAA.
//
// One regulation is returned; multiplicity only arises from distinct
// regulation-specific matches, which the engine handles separately.
func (p *RegulationPolicy) Resolve(domain models.DomainCategory, patternRegs []models.Regulation) []models.Regulation {
	policy, ok := p.domains[domain]
	if !ok {
		policy = p.domains[models.DomainGeneral]
	}

	for _, reg := range policy.precedence {
		for _, tagged := range patternRegs {
			if tagged == reg {
				return []models.Regulation{reg}
			}
		}
	}

	for _, tagged := range patternRegs {
		if p.portable[tagged] {
			return []models.Regulation{tagged}
		}
	}

	return []models.Regulation{policy.fallback}
}
