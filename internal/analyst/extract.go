package analyst

import "regexp"

var (
	orgCodeRE = regexp.MustCompile(`[A-Z]\d{4}_P\d{3}`)
	orgNumRE  = regexp.MustCompile(`(?i)org[_\s]*(\d+)`)
)

// ExtractOrgCode pulls an organization code out of free-form query
// text. The full SXXXX_PXXX form wins when present; otherwise an
// "org N" reference is normalized to ORG_NNN with the number
// zero-padded to at least three digits.
func ExtractOrgCode(text string) (string, bool) {
	if code := orgCodeRE.FindString(text); code != "" {
		return code, true
	}
	if m := orgNumRE.FindStringSubmatch(text); m != nil {
		num := m[1]
		for len(num) < 3 {
			num = "0" + num
		}
		return "ORG_" + num, true
	}
	return "", false
}
