// Package reconcile combines the local record buffer with the remote source of
// truth and pushes local-only records upstream.
package reconcile

import (
	"cmp"
	"slices"

	"github.com/biotrack/biotrack/internal/record"
)

// Merge returns each logical record once. Remote records are authoritative: a
// local record whose remote identity, or own key, exists remotely is dropped.
// Within each input the first occurrence of a key wins. The result is sorted
// by CreatedAt descending, then identity key ascending.
func Merge(local, remote []record.Record) []record.Record {
	remoteKeys := make(map[string]struct{}, len(remote))
	out := make([]record.Record, 0, len(local)+len(remote))

	for _, r := range remote {
		key := record.IdentityKey(r)
		if _, dup := remoteKeys[key]; dup {
			continue
		}
		remoteKeys[key] = struct{}{}
		out = append(out, r)
	}

	// Synced detection only looks at remote keys so the outcome does not depend on local order.
	seen := make(map[string]struct{}, len(local))

	for _, l := range local {
		key := record.IdentityKey(l)
		if _, dup := seen[key]; dup {
			continue
		}
		if _, synced := remoteKeys[key]; synced {
			continue
		}
		if rk := record.RemoteKey(l); rk != "" {
			if _, synced := remoteKeys[rk]; synced {
				continue
			}
		}
		seen[key] = struct{}{}
		out = append(out, l)
	}

	SortRecords(out)
	return out
}

// SortRecords orders records newest first with identity key as tie-break.
func SortRecords(records []record.Record) {
	slices.SortFunc(records, func(a, b record.Record) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(record.IdentityKey(a), record.IdentityKey(b))
	})
}
