package language

import "strings"

type entry struct {
	code2 string   // ISO 639-1
	code3 string   // ISO 639-2/T
	alt3  string   // ISO 639-2/B when it differs, e.g. "fre"
	words []string // English names seen in hand-written tags
}

var languages = []entry{
	{"en", "eng", "", []string{"english"}},
	{"es", "spa", "", []string{"spanish"}},
	{"fr", "fra", "fre", []string{"french"}},
	{"de", "deu", "ger", []string{"german"}},
	{"it", "ita", "", []string{"italian"}},
	{"pt", "por", "", []string{"portuguese"}},
	{"ja", "jpn", "", []string{"japanese"}},
	{"ko", "kor", "", []string{"korean"}},
	{"zh", "zho", "chi", []string{"chinese", "mandarin"}},
	{"ru", "rus", "", []string{"russian"}},
	{"ar", "ara", "", []string{"arabic"}},
	{"hi", "hin", "", []string{"hindi"}},
	{"nl", "nld", "dut", []string{"dutch"}},
	{"pl", "pol", "", []string{"polish"}},
	{"sv", "swe", "", []string{"swedish"}},
	{"da", "dan", "", []string{"danish"}},
	{"no", "nor", "", []string{"norwegian"}},
	{"fi", "fin", "", []string{"finnish"}},
	{"cs", "ces", "cze", []string{"czech"}},
	{"hu", "hun", "", []string{"hungarian"}},
	{"tr", "tur", "", []string{"turkish"}},
}

var index = buildIndex()

func buildIndex() map[string]*entry {
	m := make(map[string]*entry, len(languages)*4)
	for i := range languages {
		e := &languages[i]
		m[e.code2] = e
		m[e.code3] = e
		if e.alt3 != "" {
			m[e.alt3] = e
		}
		for _, w := range e.words {
			m[w] = e
		}
	}
	return m
}

// ToISO3 converts a recognized code or English name to ISO 639-2/T. IETF
// tags such as "en-US" use their primary subtag. Unknown three-letter codes
// pass through; anything else is "und".
func ToISO3(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if primary, _, ok := strings.Cut(code, "-"); ok {
		code = primary
	}
	if code == "" {
		return "und"
	}
	if e, ok := index[code]; ok {
		return e.code3
	}
	if len(code) == 3 {
		return code
	}
	return "und"
}

// ExtractFromTags returns the first non-empty language tag, lower-cased.
func ExtractFromTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	for _, key := range []string{"language", "LANGUAGE", "Language", "language_ietf", "lang", "LANG"} {
		value := strings.TrimSpace(strings.ReplaceAll(tags[key], "\u0000", ""))
		if value != "" {
			return strings.ToLower(value)
		}
	}
	return ""
}
