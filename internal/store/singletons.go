// Package store holds helpers shared by the SQL ledger stores.
package store

import (
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/ertledger/internal/domain"
)

// Names of the singleton state documents.
const (
	Vault     = "vault"
	Insurance = "insurance"
	Breaker   = "breaker"
	Controls  = "controls"
)

// Doc is one encoded singleton.
type Doc struct {
	Name string
	Data []byte
}

// Singletons encodes the singleton sections the changeset touches.
func Singletons(cs domain.Changeset) ([]Doc, error) {
	var docs []Doc
	add := func(name string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("store: encode %s: %w", name, err)
		}
		docs = append(docs, Doc{Name: name, Data: b})
		return nil
	}
	if cs.Vault != nil {
		if err := add(Vault, cs.Vault); err != nil {
			return nil, err
		}
	}
	if cs.Insurance != nil {
		if err := add(Insurance, cs.Insurance); err != nil {
			return nil, err
		}
	}
	if cs.Breaker != nil {
		if err := add(Breaker, cs.Breaker); err != nil {
			return nil, err
		}
	}
	if cs.Controls != nil {
		if err := add(Controls, cs.Controls); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// LoadSingleton decodes data into the snapshot field named name. Unknown
// names are ignored.
func LoadSingleton(snap *domain.Snapshot, name string, data []byte) error {
	var dst any
	switch name {
	case Vault:
		dst = &snap.Vault
	case Insurance:
		dst = &snap.Insurance
	case Breaker:
		dst = &snap.Breaker
	case Controls:
		dst = &snap.Controls
	default:
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("store: decode %s: %w", name, err)
	}
	return nil
}
