package domain

import "unicode"

// BaseLanguage is the language reviews are synthesized in.
const BaseLanguage = "en-IN"

var speechLanguages = map[string]string{
	"en-IN": "English",
	"hi-IN": "Hindi",
	"bn-IN": "Bengali",
	"ta-IN": "Tamil",
	"te-IN": "Telugu",
	"kn-IN": "Kannada",
	"ml-IN": "Malayalam",
	"mr-IN": "Marathi",
	"gu-IN": "Gujarati",
	"pa-IN": "Punjabi",
	"od-IN": "Odia",
}

var queryOnlyLanguages = map[string]string{
	"as-IN":  "Assamese",
	"ur-IN":  "Urdu",
	"ne-IN":  "Nepali",
	"kok-IN": "Konkani",
	"ks-IN":  "Kashmiri",
	"sd-IN":  "Sindhi",
	"sa-IN":  "Sanskrit",
	"sat-IN": "Santali",
	"mni-IN": "Manipuri",
	"brx-IN": "Bodo",
	"mai-IN": "Maithili",
	"doi-IN": "Dogri",
}

// IsSpeechSupported reports whether speech synthesis can speak the language.
func IsSpeechSupported(code string) bool {
	_, ok := speechLanguages[code]
	return ok
}

// IsQueryLanguage reports whether a query may arrive in the language.
func IsQueryLanguage(code string) bool {
	if IsSpeechSupported(code) {
		return true
	}
	_, ok := queryOnlyLanguages[code]
	return ok
}

// LanguageName returns the English display name for a code, or the code itself.
func LanguageName(code string) string {
	if name, ok := speechLanguages[code]; ok {
		return name
	}
	if name, ok := queryOnlyLanguages[code]; ok {
		return name
	}
	return code
}

// TTSLanguageFor picks the narration language for a target language.
func TTSLanguageFor(target string) string {
	if IsSpeechSupported(target) {
		return target
	}
	return BaseLanguage
}

type scriptRange struct {
	lo, hi rune
	code   string
}

var scriptRanges = []scriptRange{
	{0x0900, 0x097F, "hi-IN"},
	{0x0980, 0x09FF, "bn-IN"},
	{0x0A00, 0x0A7F, "pa-IN"},
	{0x0A80, 0x0AFF, "gu-IN"},
	{0x0B00, 0x0B7F, "od-IN"},
	{0x0B80, 0x0BFF, "ta-IN"},
	{0x0C00, 0x0C7F, "te-IN"},
	{0x0C80, 0x0CFF, "kn-IN"},
	{0x0D00, 0x0D7F, "ml-IN"},
}

// ScriptLanguage returns the language of the first Indic script found in text.
func ScriptLanguage(text string) (string, bool) {
	for _, r := range text {
		for _, sr := range scriptRanges {
			if r >= sr.lo && r <= sr.hi {
				return sr.code, true
			}
		}
	}
	return "", false
}

// DetectScriptLanguage guesses the language of scraped content. Latin letters,
// digits, punctuation and symbols are the base language; letters of any other
// unrecognised script fall back to Hindi.
func DetectScriptLanguage(text string) string {
	if code, ok := ScriptLanguage(text); ok {
		return code
	}
	for _, r := range text {
		if unicode.IsLetter(r) && !unicode.Is(unicode.Latin, r) {
			return "hi-IN"
		}
	}
	return BaseLanguage
}
