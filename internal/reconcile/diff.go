package reconcile

import (
	"strings"

	"catalogsync/internal/connectors/woocommerce"
	"catalogsync/internal/models"
)

// DiffResult classifies every remote product against the local key set exactly once.
type DiffResult struct {
	// Missing are remote products with no local row yet.
	Missing []woocommerce.Product
	// Existing are remote products that already have a local row.
	Existing []woocommerce.Product
	// Unkeyed are remote products without an id. They cannot be joined and are neither
	// inserted nor refreshed.
	Unkeyed []woocommerce.Product
	// Duplicates counts remote products dropped because an earlier page already carried
	// the same id. The last occurrence is kept.
	Duplicates int
	// AllRemote is the input, unchanged.
	AllRemote []woocommerce.Product
}

// Distinct is the number of remote products after dropping duplicate ids.
func (d DiffResult) Distinct() int {
	return len(d.Missing) + len(d.Existing) + len(d.Unkeyed)
}

// Diff splits remote into products missing locally and products already mirrored.
// A product id seen twice is classified once, with the data of its last occurrence.
func Diff(remote []woocommerce.Product, localKeys map[string]struct{}) DiffResult {
	res := DiffResult{AllRemote: remote}
	missingAt := make(map[string]int)
	existingAt := make(map[string]int)
	for _, p := range remote {
		key := p.Key()
		if key == "" {
			res.Unkeyed = append(res.Unkeyed, p)
			continue
		}
		if i, ok := missingAt[key]; ok {
			res.Missing[i] = p
			res.Duplicates++
			continue
		}
		if i, ok := existingAt[key]; ok {
			res.Existing[i] = p
			res.Duplicates++
			continue
		}
		if _, ok := localKeys[key]; ok {
			existingAt[key] = len(res.Existing)
			res.Existing = append(res.Existing, p)
		} else {
			missingAt[key] = len(res.Missing)
			res.Missing = append(res.Missing, p)
		}
	}
	return res
}

// Orphans returns the internal ids of local rows whose external id is absent remotely.
// An empty remote catalog makes every row an orphan; callers guard against that.
// Rows carrying a synthetic external id were never in the remote catalog and are skipped.
func Orphans(remote []woocommerce.Product, local []models.Product) []string {
	remoteKeys := RemoteKeys(remote)

	var ids []string
	for _, row := range local {
		if strings.HasPrefix(row.ExternalID, models.SyntheticIDPrefix) {
			continue
		}
		if _, ok := remoteKeys[row.ExternalID]; !ok {
			ids = append(ids, row.ID)
		}
	}
	return ids
}

// RemoteKeys is the set of external ids present in the remote catalog.
func RemoteKeys(remote []woocommerce.Product) map[string]struct{} {
	keys := make(map[string]struct{}, len(remote))
	for _, p := range remote {
		if k := p.Key(); k != "" {
			keys[k] = struct{}{}
		}
	}
	return keys
}

func rowKeys(rows []models.Product) map[string]struct{} {
	keys := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		keys[r.ExternalID] = struct{}{}
	}
	return keys
}
