package patterns

import (
	"strings"

	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
)

// LuhnValid reports whether a candidate card number passes the Luhn
// mod-10 checksum. Non-digit separators (spaces, dashes) are ignored.
func LuhnValid(value string) bool {
	var digits []int
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, int(r-'0'))
		case r == ' ' || r == '-':
			// separator
		default:
			return false
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	sum := 0
	alternate := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if alternate {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alternate = !alternate
	}

	return sum%10 == 0
}

// ABARoutingValid reports whether a candidate US bank routing number
// passes the ABA position-weighted checksum.
func ABARoutingValid(value string) bool {
	if len(value) != 9 {
		return false
	}
	if value == "000000000" {
		return false
	}

	weights := []int{3, 7, 1, 3, 7, 1, 3, 7, 1}
	sum := 0
	for i, r := range value {
		if r < '0' || r > '9' {
			return false
		}
		sum += int(r-'0') * weights[i]
	}

	return sum%10 == 0
}

// checksumFor returns the example-value validator for a PII type, or
// nil when the type carries no verifiable checksum.
func checksumFor(piiType models.PIIType) func(string) bool {
	switch piiType {
	case models.PIITypeCreditCard:
		return LuhnValid
	case models.PIITypeRoutingNumber:
		return ABARoutingValid
	default:
		return nil
	}
}

// typeFamilies groups declared column types into the families the
// agreement table below is written against. Scanned in order; date
// precedes numeric so "interval" resolves by its own fragment, not
// the "int" one.
var typeFamilies = []struct {
	family    string
	fragments []string
}{
	{"bool", []string{"bool", "bit"}},
	{"json", []string{"json", "xml"}},
	{"date", []string{"date", "time", "timestamp", "interval", "year"}},
	{"binary", []string{"blob", "binary", "bytea", "image", "raw"}},
	{"text", []string{"char", "text", "string", "clob", "uuid", "enum", "citext"}},
	{"numeric", []string{"int", "serial", "number", "numeric", "decimal", "float", "double", "real", "money"}},
}

func typeFamily(dataType string) string {
	dt := strings.ToLower(dataType)
	for _, tf := range typeFamilies {
		for _, frag := range tf.fragments {
			if strings.Contains(dt, frag) {
				return tf.family
			}
		}
	}
	return ""
}

// expectedFamilies maps each PII type to the declared-type families a
// column of that kind plausibly uses. Types absent from the table
// accept any declared type.
var expectedFamilies = map[models.PIIType][]string{
	models.PIITypePersonName:      {"text"},
	models.PIITypeEmail:           {"text"},
	models.PIITypePhone:           {"text", "numeric"},
	models.PIITypeStreetAddress:   {"text", "json"},
	models.PIITypeDateOfBirth:     {"date", "text"},
	models.PIITypeNationalID:      {"text", "numeric"},
	models.PIITypeCreditCard:      {"text", "numeric"},
	models.PIITypeBankAccount:     {"text", "numeric"},
	models.PIITypeRoutingNumber:   {"text", "numeric"},
	models.PIITypeCompensation:    {"numeric", "text"},
	models.PIITypeMedicalRecord:   {"text", "numeric"},
	models.PIITypeHealthCondition: {"text", "json"},
	models.PIITypeInsuranceID:     {"text", "numeric"},
	models.PIITypeEducationRecord: {"text", "numeric"},
	models.PIITypeBiometric:       {"binary", "text", "json"},
	models.PIITypeIPAddress:       {"text"},
	models.PIITypeDeviceID:        {"text"},
	models.PIITypeCredential:      {"text", "binary"},
}

// minLengths holds the shortest plausible declared length for PII
// types that live in fixed-width or near-fixed-width columns. A
// varchar(2) "phone" column is a unit code, not a phone number.
var minLengths = map[models.PIIType]int{
	models.PIITypePhone:         7,
	models.PIITypeEmail:         6,
	models.PIITypeCreditCard:    13,
	models.PIITypeRoutingNumber: 9,
	models.PIITypeNationalID:    8,
	models.PIITypeIPAddress:     7,
}

// TypeAgreement reports whether a column's declared type and length are
// consistent with a hypothesized PII type. Classification stages use it
// to grant the data-type confidence bonus; no stored values are read.
// maxLength <= 0 means the schema did not declare a length.
func TypeAgreement(piiType models.PIIType, dataType string, maxLength int) bool {
	families, constrained := expectedFamilies[piiType]
	if !constrained {
		return true
	}

	family := typeFamily(dataType)
	if family == "" {
		// unrecognized declared type, nothing to disagree with
		return true
	}

	matched := false
	for _, f := range families {
		if f == family {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	if minLen, ok := minLengths[piiType]; ok && maxLength > 0 && maxLength < minLen {
		return false
	}

	return true
}
