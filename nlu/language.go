package nlu

import (
	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// confidentDetection is the score below which the detector result is
// ignored in favor of the session preference.
const confidentDetection = 0.8

// LanguageDetector wraps whatlanggo and restricts its output to the
// languages the assistant supports. Detection of an unsupported language
// reports no match so the caller can fall back.
type LanguageDetector struct {
	codes   []string
	matcher language.Matcher
}

// NewLanguageDetector builds a detector for the given ISO 639-1 codes.
// Codes that do not parse are dropped.
func NewLanguageDetector(supported []string) *LanguageDetector {
	var codes []string
	var tags []language.Tag
	for _, code := range supported {
		tag, err := language.Parse(code)
		if err != nil {
			continue
		}
		codes = append(codes, code)
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		codes = []string{"en"}
		tags = []language.Tag{language.English}
	}
	return &LanguageDetector{
		codes:   codes,
		matcher: language.NewMatcher(tags),
	}
}

// Detect returns the supported language code closest to what whatlanggo
// sees in text, with the detector confidence. An unsupported or
// undetectable language returns ("", 0).
func (d *LanguageDetector) Detect(text string) (string, float64) {
	info := whatlanggo.Detect(text)
	iso := info.Lang.Iso6391()
	if iso == "" {
		return "", 0
	}
	tag, err := language.Parse(iso)
	if err != nil {
		return "", 0
	}
	_, idx, conf := d.matcher.Match(tag)
	if conf < language.High {
		return "", 0
	}
	return d.codes[idx], info.Confidence
}

// Supported reports whether code is one of the detector's languages.
func (d *LanguageDetector) Supported(code string) bool {
	for _, c := range d.codes {
		if c == code {
			return true
		}
	}
	return false
}
