package classify

import (
	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
)

// baseRisk grades each PII type by the blast radius of exposure.
var baseRisk = map[models.PIIType]models.RiskLevel{
	models.PIITypeNationalID:      models.RiskLevelCritical,
	models.PIITypeCreditCard:      models.RiskLevelCritical,
	models.PIITypeBankAccount:     models.RiskLevelCritical,
	models.PIITypeRoutingNumber:   models.RiskLevelCritical,
	models.PIITypeBiometric:       models.RiskLevelCritical,
	models.PIITypeCredential:      models.RiskLevelCritical,
	models.PIITypeMedicalRecord:   models.RiskLevelCritical,
	models.PIITypeHealthCondition: models.RiskLevelCritical,

	models.PIITypeDateOfBirth:   models.RiskLevelHigh,
	models.PIITypeInsuranceID:   models.RiskLevelHigh,
	models.PIITypeCompensation:  models.RiskLevelHigh,
	models.PIITypeStreetAddress: models.RiskLevelHigh,

	models.PIITypePersonName:      models.RiskLevelMedium,
	models.PIITypeEmail:           models.RiskLevelMedium,
	models.PIITypePhone:           models.RiskLevelMedium,
	models.PIITypeEducationRecord: models.RiskLevelMedium,
	models.PIITypeDeviceID:        models.RiskLevelMedium,
	models.PIITypeIPAddress:       models.RiskLevelLow,
}

// RiskFor derives the risk level of a classified field. Fields under
// HIPAA or PCI-DSS are graded at least high; a breach there carries
// statutory consequences beyond the data itself.
func RiskFor(piiType models.PIIType, regulations []models.Regulation) models.RiskLevel {
	if !piiType.Sensitive() {
		return models.RiskLevelNone
	}

	risk, ok := baseRisk[piiType]
	if !ok {
		risk = models.RiskLevelMedium
	}

	for _, reg := range regulations {
		if reg == models.RegulationHIPAA || reg == models.RegulationPCIDSS {
			risk = models.MaxRiskLevel(risk, models.RiskLevelHigh)
			break
		}
	}

	return risk
}
