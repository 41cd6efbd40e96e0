package models

import (
	"fmt"
	"strings"
)

// PIIType identifies the category of personal or regulated data a column holds.
type PIIType string

const (
	PIITypePersonName      PIIType = "PERSON_NAME"
	PIITypeEmail           PIIType = "EMAIL"
	PIITypePhone           PIIType = "PHONE"
	PIITypeNationalID      PIIType = "NATIONAL_ID"
	PIITypeDateOfBirth     PIIType = "DATE_OF_BIRTH"
	PIITypeStreetAddress   PIIType = "STREET_ADDRESS"
	PIITypeIPAddress       PIIType = "IP_ADDRESS"
	PIITypeCreditCard      PIIType = "CREDIT_CARD"
	PIITypeBankAccount     PIIType = "BANK_ACCOUNT"
	PIITypeRoutingNumber   PIIType = "ROUTING_NUMBER"
	PIITypeCompensation    PIIType = "COMPENSATION"
	PIITypeMedicalRecord   PIIType = "MEDICAL_RECORD"
	PIITypeHealthCondition PIIType = "HEALTH_CONDITION"
	PIITypeInsuranceID     PIIType = "INSURANCE_ID"
	PIITypeBiometric       PIIType = "BIOMETRIC"
	PIITypeCredential      PIIType = "CREDENTIAL"
	PIITypeEducationRecord PIIType = "EDUCATION_RECORD"
	PIITypeDeviceID        PIIType = "DEVICE_ID"
	PIITypeNonSensitive    PIIType = "NON_SENSITIVE"
)

// ValidPIITypes contains every recognized PII type.
var ValidPIITypes = []PIIType{
	PIITypePersonName,
	PIITypeEmail,
	PIITypePhone,
	PIITypeNationalID,
	PIITypeDateOfBirth,
	PIITypeStreetAddress,
	PIITypeIPAddress,
	PIITypeCreditCard,
	PIITypeBankAccount,
	PIITypeRoutingNumber,
	PIITypeCompensation,
	PIITypeMedicalRecord,
	PIITypeHealthCondition,
	PIITypeInsuranceID,
	PIITypeBiometric,
	PIITypeCredential,
	PIITypeEducationRecord,
	PIITypeDeviceID,
	PIITypeNonSensitive,
}

// IsValidPIIType checks if the given type is recognized.
func IsValidPIIType(t PIIType) bool {
	for _, v := range ValidPIITypes {
		if v == t {
			return true
		}
	}
	return false
}

// ParsePIIType normalizes a string to a PIIType. Accepts any case and
// hyphen/space separators. Returns an error for unknown types.
func ParsePIIType(s string) (PIIType, error) {
	normalized := PIIType(normalizeEnumToken(s))
	if !IsValidPIIType(normalized) {
		return "", fmt.Errorf("unknown pii type %q", s)
	}
	return normalized, nil
}

// Sensitive reports whether this type marks a column as sensitive.
func (t PIIType) Sensitive() bool {
	return t != "" && t != PIITypeNonSensitive
}

// Regulation is a compliance regime governing a data category.
type Regulation string

const (
	RegulationHIPAA  Regulation = "HIPAA"
	RegulationGDPR   Regulation = "GDPR"
	RegulationCCPA   Regulation = "CCPA"
	RegulationPCIDSS Regulation = "PCI-DSS"
)

// ValidRegulations contains every supported regulation.
var ValidRegulations = []Regulation{
	RegulationHIPAA,
	RegulationGDPR,
	RegulationCCPA,
	RegulationPCIDSS,
}

// IsValidRegulation checks if the given regulation is supported.
func IsValidRegulation(r Regulation) bool {
	for _, v := range ValidRegulations {
		if v == r {
			return true
		}
	}
	return false
}

// ParseRegulation normalizes a regulation identifier ("gdpr", "PCI_DSS",
// "pci-dss", ...). Returns an error for unknown identifiers; callers treat
// that as invalid input, not a degradable condition.
func ParseRegulation(s string) (Regulation, error) {
	switch normalizeEnumToken(s) {
	case "HIPAA":
		return RegulationHIPAA, nil
	case "GDPR":
		return RegulationGDPR, nil
	case "CCPA":
		return RegulationCCPA, nil
	case "PCI_DSS", "PCIDSS":
		return RegulationPCIDSS, nil
	}
	return "", fmt.Errorf("unknown regulation %q", s)
}

// ParseRegulations parses a list of regulation identifiers, rejecting the
// whole list on the first unknown entry.
func ParseRegulations(ids []string) ([]Regulation, error) {
	regs := make([]Regulation, 0, len(ids))
	for _, id := range ids {
		reg, err := ParseRegulation(id)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, nil
}

// DomainCategory is the inferred business domain of a table, derived from
// its full column vocabulary.
type DomainCategory string

const (
	DomainHealthcare DomainCategory = "healthcare"
	DomainFinancial  DomainCategory = "financial"
	DomainEducation  DomainCategory = "education"
	DomainBusiness   DomainCategory = "business"
	DomainGeneral    DomainCategory = "general"
)

// ValidDomainCategories contains every domain a table can resolve to.
var ValidDomainCategories = []DomainCategory{
	DomainHealthcare,
	DomainFinancial,
	DomainEducation,
	DomainBusiness,
	DomainGeneral,
}

// IsValidDomainCategory checks if the given domain is supported.
func IsValidDomainCategory(d DomainCategory) bool {
	for _, v := range ValidDomainCategories {
		if v == d {
			return true
		}
	}
	return false
}

// Specificity orders domains for tie-breaking: the narrowest domain wins
// when keyword scores tie. General carries no specificity at all.
func (d DomainCategory) Specificity() int {
	switch d {
	case DomainHealthcare:
		return 4
	case DomainEducation:
		return 3
	case DomainFinancial:
		return 2
	case DomainBusiness:
		return 1
	default:
		return 0
	}
}

// RiskLevel grades the exposure of a sensitive field.
type RiskLevel string

const (
	RiskLevelNone     RiskLevel = "none"
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// riskRank orders risk levels for comparisons.
func (r RiskLevel) riskRank() int {
	switch r {
	case RiskLevelLow:
		return 1
	case RiskLevelMedium:
		return 2
	case RiskLevelHigh:
		return 3
	case RiskLevelCritical:
		return 4
	default:
		return 0
	}
}

// MaxRiskLevel returns the higher of two risk levels.
func MaxRiskLevel(a, b RiskLevel) RiskLevel {
	if a.riskRank() >= b.riskRank() {
		return a
	}
	return b
}

// normalizeEnumToken upper-cases and collapses separators so that
// "pci-dss", "PCI DSS" and "pci_dss" all compare equal.
func normalizeEnumToken(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
