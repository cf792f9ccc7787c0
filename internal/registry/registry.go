// Package registry loads the off-chain slot catalogue: which contracts make up
// the board, their type, and how they are placed on the page.
package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/slotengine/internal/domain"
)

// Entry is one [[slot]] table of the registry file.
type Entry struct {
	Address  string `toml:"address"`
	Type     string `toml:"type"`
	Name     string `toml:"name"`
	Page     string `toml:"page"`
	Position string `toml:"position"`
	Width    int    `toml:"width"`
	Height   int    `toml:"height"`
}

type file struct {
	Slots []Entry `toml:"slot"`
}

// Registry is an ordered, address-indexed slot catalogue.
type Registry struct {
	refs []domain.SlotRef
	meta map[common.Address]domain.SlotMetadata
}

// Load reads and validates a registry file.
func Load(path string) (*Registry, error) {
	var f file
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("registry: decode %s: %w", path, err)
	}
	return New(f.Slots)
}

// Parse decodes registry TOML from a string.
func Parse(data string) (*Registry, error) {
	var f file
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("registry: decode: %w", err)
	}
	return New(f.Slots)
}

// New builds a Registry from entries. Indexes are assigned per type in entry
// order starting at 1. Every problem is reported at once.
func New(entries []Entry) (*Registry, error) {
	r := &Registry{meta: make(map[common.Address]domain.SlotMetadata, len(entries))}
	counts := make(map[domain.SlotType]int)
	var errs []string

	for i, e := range entries {
		if !common.IsHexAddress(e.Address) {
			errs = append(errs, fmt.Sprintf("slot[%d]: invalid address %q", i, e.Address))
			continue
		}
		addr := common.HexToAddress(e.Address)
		t := domain.SlotType(strings.ToLower(strings.TrimSpace(e.Type)))
		if t == "" {
			t = domain.SlotTypeEnabled
		}
		if !t.Valid() {
			errs = append(errs, fmt.Sprintf("slot[%d]: unknown type %q", i, e.Type))
			continue
		}
		if _, dup := r.meta[addr]; dup {
			errs = append(errs, fmt.Sprintf("slot[%d]: duplicate address %s", i, addr.Hex()))
			continue
		}
		counts[t]++
		r.refs = append(r.refs, domain.SlotRef{Address: addr, Type: t, Index: counts[t]})
		r.meta[addr] = domain.SlotMetadata{
			Name:     e.Name,
			Page:     e.Page,
			Position: e.Position,
			Width:    e.Width,
			Height:   e.Height,
		}
	}

	if len(errs) > 0 {
		return nil, errors.New("registry: invalid entries:\n  - " + strings.Join(errs, "\n  - "))
	}
	return r, nil
}

// Refs returns the slots to read, in registry order.
func (r *Registry) Refs() []domain.SlotRef {
	out := make([]domain.SlotRef, len(r.refs))
	copy(out, r.refs)
	return out
}

// Ref returns the ref for addr.
func (r *Registry) Ref(addr common.Address) (domain.SlotRef, bool) {
	for _, ref := range r.refs {
		if ref.Address == addr {
			return ref, true
		}
	}
	return domain.SlotRef{}, false
}

// Lookup implements slot.MetadataLookup.
func (r *Registry) Lookup(addr common.Address) (domain.SlotMetadata, bool) {
	md, ok := r.meta[addr]
	return md, ok
}

// Len returns the number of registered slots.
func (r *Registry) Len() int { return len(r.refs) }
