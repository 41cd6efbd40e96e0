// Package patterns loads and indexes the curated sensitivity pattern
// corpus used by local classification. Patterns come from an embedded
// builtin corpus plus an optional site overlay file, both in the same
// recognizer YAML format.
package patterns

import (
	_ "embed"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
)

//go:embed builtin.yaml
var builtinCorpus []byte

const defaultConfidence = 0.9

// RecognizerFile is the top-level structure of a pattern corpus file.
type RecognizerFile struct {
	Recognizers []Recognizer `yaml:"recognizers"`
}

// Recognizer declares every way one PII type is recognized from column
// names. A recognizer flattens into one SensitivityPattern per listed
// value.
type Recognizer struct {
	Name        string         `yaml:"name"`
	PIIType     string         `yaml:"pii_type"`
	Regulations []string       `yaml:"regulations,omitempty"`
	Enabled     *bool          `yaml:"enabled,omitempty"`
	Confidence  float64        `yaml:"confidence,omitempty"`
	Priority    int            `yaml:"priority,omitempty"`
	Exact       []string       `yaml:"exact,omitempty"`
	Aliases     []string       `yaml:"aliases,omitempty"`
	Fuzzy       []string       `yaml:"fuzzy,omitempty"`
	Patterns    []RegexPattern `yaml:"patterns,omitempty"`
	Context     []ContextRule  `yaml:"context,omitempty"`
	Examples    []string       `yaml:"examples,omitempty"`
}

// RegexPattern is a named regular expression within a recognizer. The
// expression is matched against the space-separated token form of the
// column name, so \b anchors behave as word boundaries between tokens.
type RegexPattern struct {
	Name       string  `yaml:"name"`
	Regex      string  `yaml:"regex"`
	Confidence float64 `yaml:"confidence,omitempty"`
}

// ContextRule is a generic column name that only signals this PII type
// inside the listed table domains.
type ContextRule struct {
	Value      string   `yaml:"value"`
	Domains    []string `yaml:"domains"`
	Confidence float64  `yaml:"confidence,omitempty"`
}

// ParseRecognizerFile parses recognizer YAML content.
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	var file RecognizerFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse recognizer file: %w", err)
	}
	return &file, nil
}

// LoadRecognizerFile reads and parses a recognizer file from disk. A
// missing file is not an error; it returns nil recognizers so callers
// can treat the overlay as optional.
func LoadRecognizerFile(path string) ([]Recognizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read recognizer file %s: %w", path, err)
	}

	file, err := ParseRecognizerFile(data)
	if err != nil {
		return nil, fmt.Errorf("recognizer file %s: %w", path, err)
	}
	return file.Recognizers, nil
}

// BuiltinRecognizers parses the embedded corpus.
func BuiltinRecognizers() ([]Recognizer, error) {
	file, err := ParseRecognizerFile(builtinCorpus)
	if err != nil {
		return nil, fmt.Errorf("builtin corpus: %w", err)
	}
	return file.Recognizers, nil
}

// MergeRecognizers layers recognizer lists. Later layers override
// earlier ones by recognizer name, which lets a site overlay replace a
// builtin recognizer wholesale or add new ones.
func MergeRecognizers(layers ...[]Recognizer) []Recognizer {
	var merged []Recognizer
	index := make(map[string]int)

	for _, layer := range layers {
		for _, rec := range layer {
			if pos, ok := index[rec.Name]; ok {
				merged[pos] = rec
				continue
			}
			index[rec.Name] = len(merged)
			merged = append(merged, rec)
		}
	}

	return merged
}

// Flatten expands recognizers into individual sensitivity patterns.
// Malformed recognizers and records are skipped with a warning; the
// load carries on with whatever is valid.
func Flatten(recognizers []Recognizer, logger *zap.Logger) []models.SensitivityPattern {
	var records []models.SensitivityPattern

	for _, rec := range recognizers {
		if rec.Enabled != nil && !*rec.Enabled {
			continue
		}

		piiType, err := models.ParsePIIType(rec.PIIType)
		if err != nil {
			logger.Warn("Skipping recognizer with unknown PII type",
				zap.String("recognizer", rec.Name),
				zap.String("pii_type", rec.PIIType))
			continue
		}

		regulations, err := models.ParseRegulations(rec.Regulations)
		if err != nil {
			logger.Warn("Skipping recognizer with unknown regulation",
				zap.String("recognizer", rec.Name),
				zap.Error(err))
			continue
		}

		if !examplesPass(piiType, rec.Examples) {
			logger.Warn("Skipping recognizer whose example values fail their checksum",
				zap.String("recognizer", rec.Name),
				zap.String("pii_type", string(piiType)))
			continue
		}

		baseConfidence := rec.Confidence
		if baseConfidence == 0 {
			baseConfidence = defaultConfidence
		}

		emit := func(p models.SensitivityPattern) {
			if err := p.Validate(); err != nil {
				logger.Warn("Skipping invalid pattern record", zap.Error(err))
				return
			}
			records = append(records, p)
		}

		for _, value := range rec.Exact {
			emit(models.SensitivityPattern{
				ID:          patternID(rec.Name, models.PatternExact, value),
				Kind:        models.PatternExact,
				Value:       NormalizeName(value),
				PIIType:     piiType,
				Confidence:  baseConfidence,
				Regulations: regulations,
				Priority:    rec.Priority,
			})
		}
		for _, value := range rec.Aliases {
			emit(models.SensitivityPattern{
				ID:          patternID(rec.Name, models.PatternAlias, value),
				Kind:        models.PatternAlias,
				Value:       NormalizeName(value),
				PIIType:     piiType,
				Confidence:  baseConfidence,
				Regulations: regulations,
				Priority:    rec.Priority,
			})
		}
		for _, value := range rec.Fuzzy {
			emit(models.SensitivityPattern{
				ID:          patternID(rec.Name, models.PatternFuzzy, value),
				Kind:        models.PatternFuzzy,
				Value:       NormalizeName(value),
				PIIType:     piiType,
				Confidence:  baseConfidence,
				Regulations: regulations,
				Priority:    rec.Priority,
			})
		}
		for _, rp := range rec.Patterns {
			confidence := rp.Confidence
			if confidence == 0 {
				confidence = baseConfidence
			}
			emit(models.SensitivityPattern{
				ID:          patternID(rec.Name, models.PatternRegex, rp.Name),
				Kind:        models.PatternRegex,
				Value:       rp.Regex,
				PIIType:     piiType,
				Confidence:  confidence,
				Regulations: regulations,
				Priority:    rec.Priority,
			})
		}
		for _, cr := range rec.Context {
			confidence := cr.Confidence
			if confidence == 0 {
				confidence = baseConfidence
			}
			domains := make([]models.DomainCategory, 0, len(cr.Domains))
			for _, d := range cr.Domains {
				domain := models.DomainCategory(d)
				if !models.IsValidDomainCategory(domain) {
					logger.Warn("Dropping unknown domain from context rule",
						zap.String("recognizer", rec.Name),
						zap.String("domain", d))
					continue
				}
				domains = append(domains, domain)
			}
			emit(models.SensitivityPattern{
				ID:          patternID(rec.Name, models.PatternContext, cr.Value),
				Kind:        models.PatternContext,
				Value:       NormalizeName(cr.Value),
				PIIType:     piiType,
				Confidence:  confidence,
				Regulations: regulations,
				Priority:    rec.Priority,
				Domains:     domains,
			})
		}
	}

	return records
}

// LoadRecords assembles the full pattern corpus: builtin recognizers,
// optionally overlaid by a site file, flattened into pattern records.
// An unreadable overlay degrades to the builtin corpus with an error
// log rather than failing the load.
func LoadRecords(overlayPath string, logger *zap.Logger) ([]models.SensitivityPattern, error) {
	builtin, err := BuiltinRecognizers()
	if err != nil {
		return nil, err
	}

	layers := [][]Recognizer{builtin}
	if overlayPath != "" {
		overlay, err := LoadRecognizerFile(overlayPath)
		if err != nil {
			logger.Error("Failed to load pattern overlay, continuing with builtin corpus",
				zap.String("path", overlayPath),
				zap.Error(err))
		} else if overlay != nil {
			layers = append(layers, overlay)
			logger.Info("Loaded pattern overlay",
				zap.String("path", overlayPath),
				zap.Int("recognizers", len(overlay)))
		}
	}

	return Flatten(MergeRecognizers(layers...), logger), nil
}

func patternID(recognizer string, kind models.PatternKind, value string) string {
	return fmt.Sprintf("%s/%s/%s", recognizer, kind, NormalizeName(value))
}

// examplesPass verifies recognizer example values against the checksum
// for their PII type. Types without a checksum always pass.
func examplesPass(piiType models.PIIType, examples []string) bool {
	check := checksumFor(piiType)
	if check == nil {
		return true
	}
	for _, example := range examples {
		if !check(example) {
			return false
		}
	}
	return true
}
