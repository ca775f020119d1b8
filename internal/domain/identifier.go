package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// CodeSuffixRange bounds the random numeric suffix appended to generated codes.
const CodeSuffixRange = 1000

// codeDateLayout is the compact date used inside generated codes.
const codeDateLayout = "20060102"

// sampleTypeAbbreviations maps common sample types onto lab shorthand.
var sampleTypeAbbreviations = map[string]string{
	"blood":  "BLD",
	"plasma": "PLA",
	"serum":  "SER",
	"urine":  "URI",
	"saliva": "SAL",
	"tissue": "TIS",
	"dna":    "DNA",
	"rna":    "RNA",
	"stool":  "STL",
	"swab":   "SWB",
}

// PatientCodeInput carries the patient fields a patient code is built from.
type PatientCodeInput struct {
	FirstName string
	LastName  string
	Age       int
	Gender    Gender
	Ethnicity string
	Site      string
}

// FormatSampleCode builds codes like BLD-20261019-042.
func FormatSampleCode(sampleType string, collectedAt time.Time, suffix int) string {
	return fmt.Sprintf("%s-%s-%03d", SampleTypeAbbreviation(sampleType), codeDate(collectedAt), wrapSuffix(suffix))
}

// FormatPatientCode builds codes like JD-45-M-CAU-PAR-042.
func FormatPatientCode(in PatientCodeInput, suffix int) string {
	initials := initial(in.FirstName) + initial(in.LastName)
	age := "NA"
	if in.Age >= 0 {
		age = fmt.Sprintf("%d", in.Age)
	}
	gender := string(normalizeGender(in.Gender))
	if gender == "" {
		gender = string(GenderUnknown)
	}
	return fmt.Sprintf("%s-%s-%s-%s-%s-%03d",
		initials,
		age,
		gender,
		abbreviate(in.Ethnicity, 3),
		abbreviate(in.Site, 3),
		wrapSuffix(suffix),
	)
}

// FormatPlaquetteCode builds codes like PLQ-96-20261019-007.
func FormatPlaquetteCode(capacity int, createdAt time.Time, suffix int) string {
	if capacity < 0 {
		capacity = 0
	}
	return fmt.Sprintf("PLQ-%d-%s-%03d", capacity, codeDate(createdAt), wrapSuffix(suffix))
}

// SampleTypeAbbreviation returns the three-letter shorthand for a sample type.
func SampleTypeAbbreviation(sampleType string) string {
	key := strings.TrimSpace(strings.ToLower(sampleType))
	if abbr, ok := sampleTypeAbbreviations[key]; ok {
		return abbr
	}
	return abbreviate(sampleType, 3)
}

func codeDate(ts time.Time) string {
	if ts.IsZero() {
		return "00000000"
	}
	return ts.UTC().Format(codeDateLayout)
}

// wrapSuffix folds any integer into [0, CodeSuffixRange).
func wrapSuffix(suffix int) int {
	return ((suffix % CodeSuffixRange) + CodeSuffixRange) % CodeSuffixRange
}

// abbreviate keeps the first n letters or digits upper-cased; empty input yields n X's.
func abbreviate(s string, n int) string {
	var b strings.Builder
	kept := 0
	for _, r := range strings.TrimSpace(s) {
		if kept >= n {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
			kept++
		}
	}
	if kept == 0 {
		return strings.Repeat("X", n)
	}
	return b.String()
}

func initial(name string) string {
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsLetter(r) {
			return string(unicode.ToUpper(r))
		}
	}
	return "X"
}
