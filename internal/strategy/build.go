package strategy

import (
	"fmt"
)

// Instance pairs a manifest entry with its constructed implementation.
type Instance struct {
	Entry ManifestEntry
	Impl  Strategy
}

// Build constructs the enabled strategies declared in the manifest. Disabled
// entries are skipped but still exist as ledger rows, so their history stays
// queryable.
func Build(m *Manifest, inboxDir, schemaPath string, quarantine QuarantineFunc) ([]Instance, error) {
	var out []Instance
	for _, entry := range m.Strategies {
		if !entry.Enabled {
			continue
		}
		var (
			impl Strategy
			err  error
		)
		switch entry.Type {
		case "momentum":
			impl = NewMomentum(entry.ID, entry.Universe, entry.intParam("lookback_days", 20))
		case "inbox":
			dir := entry.stringParam("inbox_dir", inboxDir)
			impl, err = NewInbox(entry.ID, dir, schemaPath, quarantine)
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("strategy %s: unknown type %q", entry.ID, entry.Type)
		}
		out = append(out, Instance{Entry: entry, Impl: impl})
	}
	return out, nil
}
