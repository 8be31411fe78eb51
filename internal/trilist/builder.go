package trilist

import (
	"context"
	"fmt"
	"sort"

	"github.com/untoldecay/promantle/internal/adapter"
)

// Builder accumulates the configuration for one TriangularList and
// validates it on Build. Each single-valued field may be set exactly once;
// ranks and aggregates accumulate but reject duplicates. A builder yields
// exactly one list.
type Builder[V any, K any] struct {
	group   string
	storage adapter.TableAdapter

	keySet    bool
	keyFn     func(V) K
	minMax    func(K, K) (K, K)
	keyType   string
	keyDecode func(any) (K, error)

	rankNumbers map[int]bool
	rankNames   map[string]bool
	ranks       []Rank[K]
	rankExterns []int

	aggNames map[string]bool
	aggs     []Aggregate[V]

	built bool
}

// NewBuilder starts a builder for the named group. The group namespaces
// every rank table the list materializes.
func NewBuilder[V any, K any](group string) *Builder[V, K] {
	return &Builder[V, K]{
		group:       group,
		rankNumbers: make(map[int]bool),
		rankNames:   make(map[string]bool),
		aggNames:    make(map[string]bool),
	}
}

// UsingStorage sets the table adapter the list persists through.
func (b *Builder[V, K]) UsingStorage(a adapter.TableAdapter) error {
	if b.storage != nil {
		return fmt.Errorf("%w: storage adapter", ErrAlreadyConfigured)
	}
	if a == nil {
		return fmt.Errorf("%w: storage adapter is nil", ErrConfigInvalid)
	}
	b.storage = a
	return nil
}

// KeyOn sets the key function, its ordering, and the declared column type
// for stored bounds. minMax must return its two arguments as (min, max).
func (b *Builder[V, K]) KeyOn(storageType string, keyFn func(V) K, minMax func(K, K) (K, K)) error {
	if b.keySet {
		return fmt.Errorf("%w: key function", ErrAlreadyConfigured)
	}
	if storageType == "" || keyFn == nil || minMax == nil {
		return fmt.Errorf("%w: key requires a storage type, a key function and a min/max function", ErrConfigInvalid)
	}
	b.keySet = true
	b.keyFn = keyFn
	b.minMax = minMax
	b.keyType = storageType
	return nil
}

// KeyDecodedBy overrides how stored bounds map back onto K. Needed when
// the backend returns a weaker type than K (e.g. SQLite returns timestamp
// text; pass DecodeTime). Without it, bounds must round-trip as K.
func (b *Builder[V, K]) KeyDecodedBy(decode func(any) (K, error)) error {
	if b.keyDecode != nil {
		return fmt.Errorf("%w: key decoder", ErrAlreadyConfigured)
	}
	if decode == nil {
		return fmt.Errorf("%w: key decoder is nil", ErrConfigInvalid)
	}
	b.keyDecode = decode
	return nil
}

// Rank registers a granularity level under an external number. Numbers
// must be non-negative and unique; when sorted they must be gapless
// (checked at Build). The order of Rank calls fixes fine-to-coarse order;
// the numbers themselves are discarded after validation.
func (b *Builder[V, K]) Rank(number int, name string, position func(K) int64) error {
	if number < 0 {
		return fmt.Errorf("%w: rank number %d is negative", ErrConfigInvalid, number)
	}
	if name == "" || position == nil {
		return fmt.Errorf("%w: rank requires a name and a position function", ErrConfigInvalid)
	}
	if b.rankNumbers[number] {
		return fmt.Errorf("%w: duplicate rank number %d", ErrConfigInvalid, number)
	}
	if b.rankNames[name] {
		return fmt.Errorf("%w: duplicate rank name %q", ErrConfigInvalid, name)
	}
	b.rankNumbers[number] = true
	b.rankNames[name] = true
	b.rankExterns = append(b.rankExterns, number)
	b.ranks = append(b.ranks, Rank[K]{Name: name, Position: position})
	return nil
}

// Aggregate registers an aggregate built with NewAggregate.
func (b *Builder[V, K]) Aggregate(agg Aggregate[V]) error {
	if agg.name == "" || agg.selectFn == nil || agg.combineFn == nil || agg.storageType == "" {
		return fmt.Errorf("%w: aggregate is incomplete", ErrConfigInvalid)
	}
	if b.aggNames[agg.name] {
		return fmt.Errorf("%w: duplicate aggregate name %q", ErrConfigInvalid, agg.name)
	}
	b.aggNames[agg.name] = true
	b.aggs = append(b.aggs, agg)
	return nil
}

// Build validates the configuration, materializes the rank tables through
// the adapter, and returns the ready list.
func (b *Builder[V, K]) Build(ctx context.Context) (*TriangularList[V, K], error) {
	if b.built {
		return nil, fmt.Errorf("%w: builder already produced a list", ErrAlreadyConfigured)
	}
	if b.group == "" {
		return nil, fmt.Errorf("%w: group name is empty", ErrConfigInvalid)
	}
	if b.storage == nil {
		return nil, fmt.Errorf("%w: no storage adapter", ErrConfigInvalid)
	}
	if !b.keySet {
		return nil, fmt.Errorf("%w: no key function", ErrConfigInvalid)
	}
	if len(b.ranks) == 0 {
		return nil, fmt.Errorf("%w: no ranks", ErrConfigInvalid)
	}
	if len(b.aggs) == 0 {
		return nil, fmt.Errorf("%w: no aggregates", ErrConfigInvalid)
	}
	nums := make([]int, len(b.rankExterns))
	copy(nums, b.rankExterns)
	sort.Ints(nums)
	for i := 1; i < len(nums); i++ {
		if nums[i] != nums[i-1]+1 {
			return nil, fmt.Errorf("%w: gap in rank numbers between %d and %d", ErrConfigInvalid, nums[i-1], nums[i])
		}
	}

	decode := b.keyDecode
	if decode == nil {
		decode = defaultKeyDecode[K]()
	}

	list, err := newList(ctx, listConfig[V, K]{
		group:     b.group,
		storage:   b.storage,
		keyFn:     b.keyFn,
		minMax:    b.minMax,
		keyType:   b.keyType,
		keyDecode: decode,
		ranks:     b.ranks,
		aggs:      b.aggs,
	})
	if err != nil {
		return nil, err
	}
	b.built = true
	return list, nil
}
