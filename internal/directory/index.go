package directory

import (
	"sort"
	"strings"

	"rfqdesk/internal"
	"rfqdesk/internal/util"
)

// Index is an in-memory view over the synced directory. It satisfies both
// internal.BrandDetector and internal.SupplierDirectory.
type Index struct {
	BrandsByID     map[int]internal.BrandRecord
	brandByAlias   map[string]string
	supplierEmails map[string]struct{}
	supplierDomain map[string]struct{}
}

func BuildIndex(brands []internal.BrandRecord) *Index {
	idx := &Index{
		BrandsByID:     map[int]internal.BrandRecord{},
		brandByAlias:   map[string]string{},
		supplierEmails: map[string]struct{}{},
		supplierDomain: map[string]struct{}{},
	}

	for _, b := range brands {
		idx.BrandsByID[b.ID] = b

		addAlias := func(alias string) {
			norm := util.Normalize(alias)
			if norm == "" {
				return
			}
			idx.brandByAlias[norm] = b.Name
		}
		addAlias(b.Name)
		for _, alias := range b.Aliases {
			addAlias(alias)
		}

		if b.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*b.Email))
			if email != "" {
				idx.supplierEmails[email] = struct{}{}
				if at := strings.LastIndex(email, "@"); at >= 0 && at+1 < len(email) {
					idx.supplierDomain[email[at+1:]] = struct{}{}
				}
			}
		}
	}

	return idx
}

// DetectBrands returns the canonical names of every directory brand whose
// name or alias appears in the text, alphabetically, without duplicates.
func (idx *Index) DetectBrands(text string) []string {
	norm := util.Normalize(text)
	if norm == "" {
		return nil
	}
	padded := " " + norm + " "

	found := map[string]struct{}{}
	for alias, brand := range idx.brandByAlias {
		if strings.Contains(padded, " "+alias+" ") {
			found[brand] = struct{}{}
			continue
		}
		// Filenames glue brand names to codes: "schneider_bordereau.xlsx".
		if !strings.Contains(alias, " ") && strings.Contains(norm, alias) && len(alias) >= 4 {
			found[brand] = struct{}{}
		}
	}

	out := make([]string, 0, len(found))
	for brand := range found {
		out = append(out, brand)
	}
	sort.Strings(out)
	return out
}

func (idx *Index) IsKnownSupplier(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	if _, ok := idx.supplierEmails[email]; ok {
		return true
	}
	if at := strings.LastIndex(email, "@"); at >= 0 && at+1 < len(email) {
		if _, ok := idx.supplierDomain[email[at+1:]]; ok {
			return true
		}
	}
	return false
}
