package entity

import (
	"context"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/chartd/internal/document"
)

// regexConfidence is the fixed score assigned to pattern matches. The
// patterns are precise but shallow, so matches are trustworthy without
// being certain.
const regexConfidence = 0.7

// categoryPatterns holds the compiled pattern tables per category.
// Patterns are compiled once at package init; a panic here is a
// programming error, not a runtime condition.
var categoryPatterns = map[string][]*regexp.Regexp{
	CategoryMedications: {
		regexp.MustCompile(`(?i)\b(metformin|insulin|aspirin|warfarin|lisinopril|atorvastatin|amlodipine|omeprazole|levothyroxine|simvastatin|albuterol|prednisone|amoxicillin|azithromycin)\b`),
		regexp.MustCompile(`(?i)\b\w+\s*\d+\s*(?:mg|mcg|ml|g|units?)\b`),
	},
	CategoryConditions: {
		regexp.MustCompile(`(?i)\b(diabetes|hypertension|hyperlipidemia|depression|anxiety|asthma|copd|heart failure|stroke|cancer|pneumonia|sepsis|arthritis)\b`),
		regexp.MustCompile(`(?i)\btype\s*[12]\s*diabetes\b`),
		regexp.MustCompile(`(?i)\bhigh\s*blood\s*pressure\b`),
	},
	CategoryProcedures: {
		regexp.MustCompile(`(?i)\b(surgery|biopsy|endoscopy|colonoscopy|mammography|ct\s*scan|mri|x-ray|ultrasound|echocardiogram)\b`),
		regexp.MustCompile(`(?i)\b(blood\s*test|lab\s*work|urinalysis)\b`),
	},
	CategoryAnatomy: {
		regexp.MustCompile(`(?i)\b(heart|lung|liver|kidney|brain|stomach|intestine|pancreas|thyroid|prostate)\b`),
		regexp.MustCompile(`(?i)\b(left\s*ventricle|right\s*atrium|aorta|vena\s*cava)\b`),
	},
}

// RegexTagger extracts entities with keyword pattern tables. It is the
// default tagger: fast, dependency-free, and good enough to drive
// section-aware retrieval when no managed medical NLP backend is
// configured.
type RegexTagger struct {
	minConfidence float64
}

// NewRegexTagger creates a pattern-based tagger. Matches below
// minConfidence are dropped; the built-in patterns all score 0.7.
func NewRegexTagger(minConfidence float64) *RegexTagger {
	return &RegexTagger{minConfidence: minConfidence}
}

// Tag scans text against every category's pattern table. Duplicate
// surface forms within a category are collapsed, keeping first
// occurrence order.
func (t *RegexTagger) Tag(ctx context.Context, text string) (map[string][]document.Entity, error) {
	entities := make(map[string][]document.Entity)
	if strings.TrimSpace(text) == "" {
		return entities, nil
	}

	for category, patterns := range categoryPatterns {
		seen := make(map[string]bool)
		for _, pattern := range patterns {
			for _, match := range pattern.FindAllString(text, -1) {
				name := strings.ToLower(strings.Join(strings.Fields(match), " "))
				if seen[name] {
					continue
				}
				if regexConfidence < t.minConfidence {
					continue
				}
				seen[name] = true
				entities[category] = append(entities[category], document.Entity{
					Name:       name,
					Confidence: regexConfidence,
				})
			}
		}
	}

	return entities, nil
}
