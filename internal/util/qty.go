package util

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	unitPattern   = regexp.MustCompile(`(?i)\b(pcs|pc|pce|pces|pieces?|pi[eè]ces?|u|un|unit[ée]s?|m|ml|m[eè]tres?|meters?|kg|lot|lots|jeu|jeux|ens|ensembles?|bo[iî]tes?|rlx|rouleaux?)\b\.?`)
	numberPattern = regexp.MustCompile(`(?:^|[^0-9.,])(\d{1,3}(?:[\s.,]\d{3})+|\d+(?:[.,]\d+)?)`)
	qtyWithUnit   = regexp.MustCompile(`(?i)(?:^|[^0-9.,])(\d{1,3}(?:[\s.,]\d{3})+|\d+(?:[.,]\d+)?)\s*(pcs|pc|pce|pces|pieces?|pi[eè]ces?|u|unit[ée]s?|m|ml|m[eè]tres?|meters?|kg|lot|lots|jeu|jeux|ens|ensembles?)\b`)
	qtyPrefix     = regexp.MustCompile(`(?i)\b(?:qty|qt[ée]|quantit[ée]|x)\s*[:=]?\s*(\d+(?:[.,]\d+)?)`)
)

type ParsedQty struct {
	Qty    *float64
	Unit   *string
	QtyRaw *string
}

// ParseQty pulls the most plausible quantity out of a free-form line.
// Preference order: an explicit qty prefix ("Qté: 12", "x3"), a number glued
// to a unit ("25 pcs"), then the last standalone number on the line (columns
// usually end with the quantity).
func ParseQty(input string) ParsedQty {
	line := strings.ReplaceAll(input, " ", " ")

	qtyRaw := ""
	qtyToken := ""

	if pm := qtyPrefix.FindStringSubmatch(line); len(pm) > 1 {
		qtyRaw = strings.TrimSpace(pm[0])
		qtyToken = strings.TrimSpace(pm[1])
	} else if wm := qtyWithUnit.FindAllStringSubmatch(line, -1); len(wm) > 0 {
		last := wm[len(wm)-1]
		qtyRaw = strings.TrimSpace(last[1] + " " + last[2])
		qtyToken = strings.TrimSpace(last[1])
	} else if nm := numberPattern.FindAllStringSubmatch(line, -1); len(nm) > 0 {
		last := nm[len(nm)-1]
		qtyRaw = strings.TrimSpace(last[1])
		qtyToken = strings.TrimSpace(last[1])
	}

	var qtyPtr *float64
	if qtyToken != "" {
		norm := normalizeNumericToken(qtyToken)
		if parsed, err := strconv.ParseFloat(norm, 64); err == nil && parsed > 0 {
			qtyPtr = FloatPtr(parsed)
		}
	}

	var unitPtr *string
	if um := unitPattern.FindStringSubmatch(line); len(um) > 1 {
		u := normalizeUnit(um[1])
		unitPtr = &u
	}

	var qtyRawPtr *string
	if qtyRaw != "" {
		qtyRawPtr = &qtyRaw
	}

	return ParsedQty{Qty: qtyPtr, Unit: unitPtr, QtyRaw: qtyRawPtr}
}

func normalizeUnit(unit string) string {
	u := Normalize(strings.TrimSpace(unit))
	switch u {
	case "pc", "pcs", "pce", "pces", "piece", "pieces", "u", "un", "unite", "unites":
		return "pcs"
	case "m", "metre", "metres", "meter", "meters":
		return "m"
	case "ml":
		return "ml"
	case "kg":
		return "kg"
	case "lot", "lots":
		return "lot"
	case "jeu", "jeux":
		return "jeu"
	case "ens", "ensemble", "ensembles":
		return "ens"
	case "boite", "boites":
		return "bte"
	case "rlx", "rouleau", "rouleaux":
		return "rlx"
	default:
		return u
	}
}

func normalizeNumericToken(token string) string {
	compact := strings.ReplaceAll(token, " ", "")
	if regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`).MatchString(compact) {
		return strings.ReplaceAll(compact, ".", "")
	}
	if regexp.MustCompile(`^\d{1,3}(?:,\d{3})+$`).MatchString(compact) {
		return strings.ReplaceAll(compact, ",", "")
	}
	if strings.Contains(compact, ",") && !strings.Contains(compact, ".") {
		return strings.ReplaceAll(compact, ",", ".")
	}
	return compact
}
