package writer

import (
	"sort"

	"github.com/dwarfs-go/dwarfs/writer/internal/nilsimsa"
)

// Ordering selects one of the total orders spec section 4.6 names for
// sorting regular-file inodes, per category, before they reach the
// segmenter.
type Ordering int

const (
	// OrderInodeNumber sorts by the entry's scan-assigned provisional
	// order (the teacher's only ordering: inodes are serialized in the
	// order Add() saw them).
	OrderInodeNumber Ordering = iota
	// OrderInputOrder is an alias for OrderInodeNumber kept distinct so
	// callers can name the two concepts spec section 4.6 separates
	// ("inode-number / input-order") even though this implementation
	// derives both from the same ScanIndex field.
	OrderInputOrder
	OrderPath
	OrderReversePath
	OrderSimilarity
	OrderNilsimsa
	OrderExplicit
)

// OrderingConfig configures a single ordering pass.
type OrderingConfig struct {
	Order Ordering

	// ExplicitOrder is the caller-supplied per-path order used when
	// Order == OrderExplicit. Paths not present are appended in input
	// (scan) order, as spec section 4.6 requires.
	ExplicitOrder []string

	// NilsimsaMaxChildren / NilsimsaMaxClusterSize bound the greedy
	// clustering pass used when Order == OrderNilsimsa.
	NilsimsaMaxChildren    int
	NilsimsaMaxClusterSize int
}

// DefaultOrderingConfig returns the inode-number ordering with the
// nilsimsa bounds the original_source header's defaults use.
func DefaultOrderingConfig() OrderingConfig {
	return OrderingConfig{
		Order:                  OrderInodeNumber,
		NilsimsaMaxChildren:    16,
		NilsimsaMaxClusterSize: 512,
	}
}

// OrderEntries groups entries by Category and, within each category, sorts
// regular files according to cfg.Order. Directories, symlinks, and special
// files are returned unsorted in their original relative order (ordering
// only applies to the regular-file content the segmenter consumes, per
// spec section 4.6's "ranks regular-file inodes").
//
// Grounded on spec section 4.6's ordering list; nilsimsa and similarity
// both read each entry's content once through reader to build their
// fingerprint, mirroring the scanner's own at-most-once-hashing discipline
// (writer/scanner.go's hashContent).
func OrderEntries(entries []*Entry, cfg OrderingConfig, reader func(*Entry) ([]byte, error)) ([]*Entry, error) {
	byCategory := make(map[string][]*Entry)
	var categoryOrder []string
	var nonRegular []*Entry

	for _, e := range entries {
		if e.Path == "" {
			continue // root
		}
		if isOrderable(e) {
			name := e.Category.Name
			if _, ok := byCategory[name]; !ok {
				categoryOrder = append(categoryOrder, name)
			}
			byCategory[name] = append(byCategory[name], e)
		} else {
			nonRegular = append(nonRegular, e)
		}
	}
	sort.Strings(categoryOrder)

	var ordered []*Entry
	for _, cat := range categoryOrder {
		group := byCategory[cat]
		sortedGroup, err := orderGroup(group, cfg, reader)
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, sortedGroup...)
	}
	ordered = append(ordered, nonRegular...)
	return ordered, nil
}

// isOrderable reports whether e participates in content ordering: every
// hashed regular file does, deduped ones included. Deduped entries
// (DedupOf != nil) are separated out afterwards and are not independently
// segmented; they inherit their canonical entry's placement.
func isOrderable(e *Entry) bool {
	return e.hashed
}

func orderGroup(group []*Entry, cfg OrderingConfig, reader func(*Entry) ([]byte, error)) ([]*Entry, error) {
	canonical := make([]*Entry, 0, len(group))
	dupByCanonical := make(map[*Entry][]*Entry)
	for _, e := range group {
		if e.DedupOf != nil {
			dupByCanonical[e.DedupOf] = append(dupByCanonical[e.DedupOf], e)
			continue
		}
		canonical = append(canonical, e)
	}

	switch cfg.Order {
	case OrderInodeNumber, OrderInputOrder:
		sort.Slice(canonical, func(i, j int) bool { return canonical[i].ScanIndex < canonical[j].ScanIndex })
	case OrderPath:
		sort.Slice(canonical, func(i, j int) bool { return canonical[i].Path < canonical[j].Path })
	case OrderReversePath:
		sort.Slice(canonical, func(i, j int) bool { return reverseString(canonical[i].Path) < reverseString(canonical[j].Path) })
	case OrderExplicit:
		pos := make(map[string]int, len(cfg.ExplicitOrder))
		for i, p := range cfg.ExplicitOrder {
			pos[p] = i
		}
		sort.SliceStable(canonical, func(i, j int) bool {
			pi, oki := pos[canonical[i].Path]
			pj, okj := pos[canonical[j].Path]
			switch {
			case oki && okj:
				return pi < pj
			case oki:
				return true
			case okj:
				return false
			default:
				return canonical[i].ScanIndex < canonical[j].ScanIndex
			}
		})
	case OrderSimilarity:
		if err := orderBySimilarity(canonical, reader); err != nil {
			return nil, err
		}
	case OrderNilsimsa:
		if err := orderByNilsimsa(canonical, cfg, reader); err != nil {
			return nil, err
		}
	default:
		sort.Slice(canonical, func(i, j int) bool { return canonical[i].ScanIndex < canonical[j].ScanIndex })
	}

	var out []*Entry
	for _, c := range canonical {
		out = append(out, c)
		out = append(out, dupByCanonical[c]...)
	}
	return out, nil
}

func reverseString(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

type fingerprint32Key struct {
	value uint32
	entry *Entry
}

func orderBySimilarity(entries []*Entry, reader func(*Entry) ([]byte, error)) error {
	keyed := make([]fingerprint32Key, len(entries))
	for i, e := range entries {
		data, err := reader(e)
		if err != nil {
			return err
		}
		fp := nilsimsa.NewFingerprint32()
		fp.Write(data)
		keyed[i] = fingerprint32Key{value: fp.Sum(), entry: e}
	}
	sort.Slice(keyed, func(i, j int) bool {
		if keyed[i].value != keyed[j].value {
			return keyed[i].value < keyed[j].value
		}
		return keyed[i].entry.Path < keyed[j].entry.Path
	})
	for i, k := range keyed {
		entries[i] = k.entry
	}
	return nil
}

func orderByNilsimsa(entries []*Entry, cfg OrderingConfig, reader func(*Entry) ([]byte, error)) error {
	items := make([]nilsimsa.Item, len(entries))
	for i, e := range entries {
		data, err := reader(e)
		if err != nil {
			return err
		}
		d := nilsimsa.New()
		d.Write(data)
		items[i] = nilsimsa.Item{Hash: d.Sum(), Tiebreak: e.Path}
	}
	order := nilsimsa.ClusterOrder(items, cfg.NilsimsaMaxChildren, cfg.NilsimsaMaxClusterSize)
	reordered := make([]*Entry, len(entries))
	for i, idx := range order {
		reordered[i] = entries[idx]
	}
	copy(entries, reordered)
	return nil
}
