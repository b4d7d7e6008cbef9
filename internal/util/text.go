package util

import (
	"regexp"
	"strings"
)

var (
	reSpaces     = regexp.MustCompile(`\s+`)
	reQuotes     = regexp.MustCompile(`["'` + "`" + `«»]`)
	reReplyTag   = regexp.MustCompile(`(?i)^\s*(re|fw|fwd|tr)\s*:\s*`)
	reNonSubject = regexp.MustCompile(`[^a-z0-9#/\-\s.]`)
)

var accentFolder = strings.NewReplacer(
	"à", "a", "â", "a", "ä", "a", "á", "a", "ã", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"î", "i", "ï", "i", "í", "i",
	"ô", "o", "ö", "o", "ó", "o", "õ", "o",
	"ù", "u", "û", "u", "ü", "u", "ú", "u",
	"ç", "c", "ñ", "n",
	"œ", "oe", "æ", "ae",
	"°", " ", "º", " ", "№", " n ",
)

// Signature and disclaimer openers. Everything from the first match to the
// end of the body is dropped before scoring.
var signatureMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?im)^--\s*$`),
	regexp.MustCompile(`(?im)^cordialement\b`),
	regexp.MustCompile(`(?im)^bien cordialement\b`),
	regexp.MustCompile(`(?im)^best regards\b`),
	regexp.MustCompile(`(?im)^kind regards\b`),
	regexp.MustCompile(`(?im)^regards,`),
	regexp.MustCompile(`(?im)^salutations\b`),
	regexp.MustCompile(`(?im)^sincerely\b`),
	regexp.MustCompile(`(?im)^ce message et toutes les pi[eè]ces jointes\b`),
	regexp.MustCompile(`(?im)^this e-?mail and any attachments\b`),
	regexp.MustCompile(`(?im)^envoy[ée] de mon iphone\b`),
	regexp.MustCompile(`(?im)^sent from my \w+`),
}

// Normalize lower-cases and folds accents so bilingual keyword tables match
// both "demande de prix" and "DEMANDE DE PRIX" and mojibake-free variants.
func Normalize(input string) string {
	s := strings.ToLower(input)
	s = accentFolder.Replace(s)
	s = strings.ReplaceAll(s, " ", " ")
	return s
}

// NormalizeSubject reduces a subject to a comparable key: reply tags removed,
// accents folded, punctuation collapsed. Used for duplicate detection.
func NormalizeSubject(subject string) string {
	s := Normalize(subject)
	for reReplyTag.MatchString(s) {
		s = reReplyTag.ReplaceAllString(s, "")
	}
	s = reQuotes.ReplaceAllString(s, " ")
	s = reNonSubject.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// TrimSignature cuts the body at the first signature or disclaimer marker.
func TrimSignature(body string) string {
	cut := len(body)
	for _, re := range signatureMarkers {
		if loc := re.FindStringIndex(body); loc != nil && loc[0] < cut {
			cut = loc[0]
		}
	}
	return strings.TrimSpace(body[:cut])
}

// Window bounds how much body text the scorers see. Offers bury validity
// clauses and bank details far down, so the window stays generous.
func Window(body string, maxChars int) string {
	if maxChars <= 0 || len(body) <= maxChars {
		return body
	}
	runes := []rune(body)
	if len(runes) <= maxChars {
		return body
	}
	return string(runes[:maxChars])
}

func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// NormalizeCode compacts a reference code for index lookups.
func NormalizeCode(input string) string {
	s := strings.ToUpper(strings.TrimSpace(input))
	out := strings.Builder{}
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '/' || r == '.' {
			out.WriteRune(r)
		}
	}
	return out.String()
}

// LooksLikeCode reports whether a token plausibly is a manufacturer or
// internal reference code (mixed letters and digits, no spaces).
func LooksLikeCode(input string) bool {
	s := strings.TrimSpace(input)
	if len(s) < 4 || strings.Contains(s, " ") {
		return false
	}
	hasLetter, hasDigit := false, false
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') {
			hasLetter = true
		}
		if r >= '0' && r <= '9' {
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}
