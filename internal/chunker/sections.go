package chunker

import "strings"

// sectionVocabulary maps clinical section headings to the hint label
// attached to chunks. Matching is best-effort keyword search; a chunk
// with no match carries no hint, which is valid.
//
// Order matters: more specific headings are checked before generic ones.
var sectionVocabulary = []struct {
	keyword string
	hint    string
}{
	{"chief complaint", "chief_complaint"},
	{"history of present illness", "history"},
	{"past medical history", "history"},
	{"family history", "history"},
	{"social history", "history"},
	{"review of systems", "review_of_systems"},
	{"vital signs", "vitals"},
	{"physical exam", "physical_exam"},
	{"lab results", "labs"},
	{"laboratory", "labs"},
	{"imaging", "imaging"},
	{"radiology", "imaging"},
	{"medications", "medications"},
	{"prescriptions", "medications"},
	{"allergies", "allergies"},
	{"assessment and plan", "assessment"},
	{"assessment", "assessment"},
	{"diagnosis", "diagnosis"},
	{"impression", "diagnosis"},
	{"plan", "plan"},
	{"procedures", "procedures"},
	{"discharge", "discharge"},
	{"follow up", "follow_up"},
	{"follow-up", "follow_up"},
}

// classifySection returns the section hint for a chunk, or "" when no
// vocabulary term appears in it.
func classifySection(text string) string {
	lower := strings.ToLower(text)
	for _, entry := range sectionVocabulary {
		if strings.Contains(lower, entry.keyword) {
			return entry.hint
		}
	}
	return ""
}
