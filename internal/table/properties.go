package table

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aalhour/blocktable/internal/block"
	"github.com/aalhour/blocktable/internal/comparator"
	"github.com/aalhour/blocktable/internal/encoding"
)

// PropertiesBlockName is the metaindex key of the properties block.
const PropertiesBlockName = "blocktable.properties"

// Property names stored in the properties block.
const (
	PropNumEntries    = "blocktable.num.entries"
	PropNumDataBlocks = "blocktable.num.data.blocks"
	PropRawKeySize    = "blocktable.raw.key.size"
	PropRawValueSize  = "blocktable.raw.value.size"
	PropDataSize      = "blocktable.data.size"
	PropIndexSize     = "blocktable.index.size"
	PropFilterSize    = "blocktable.filter.size"
	PropComparator    = "blocktable.comparator"
	PropFilterPolicy  = "blocktable.filter.policy"
)

// Properties describes a table. It is written by Writer.Finish and read
// back with Table.Properties.
type Properties struct {
	NumEntries    uint64
	NumDataBlocks uint64
	RawKeySize    uint64
	RawValueSize  uint64
	DataSize      uint64
	IndexSize     uint64
	FilterSize    uint64

	ComparatorName   string
	FilterPolicyName string

	// Unknown names found while parsing.
	UserProperties map[string]string
}

// encode serializes p as a block with keys in bytewise order.
func (p *Properties) encode() []byte {
	type prop struct {
		name  string
		value []byte
	}
	u64 := func(name string, v uint64) prop {
		return prop{name, encoding.AppendVarint64(nil, v)}
	}
	props := []prop{
		u64(PropNumEntries, p.NumEntries),
		u64(PropNumDataBlocks, p.NumDataBlocks),
		u64(PropRawKeySize, p.RawKeySize),
		u64(PropRawValueSize, p.RawValueSize),
		u64(PropDataSize, p.DataSize),
		u64(PropIndexSize, p.IndexSize),
		u64(PropFilterSize, p.FilterSize),
		{PropComparator, []byte(p.ComparatorName)},
	}
	if p.FilterPolicyName != "" {
		props = append(props, prop{PropFilterPolicy, []byte(p.FilterPolicyName)})
	}
	for name, v := range p.UserProperties {
		props = append(props, prop{name, []byte(v)})
	}
	slices.SortFunc(props, func(a, b prop) int { return strings.Compare(a.name, b.name) })

	b := block.NewBuilder(1, comparator.Default())
	for _, e := range props {
		// Names are unique and sorted.
		_ = b.Add([]byte(e.name), e.value)
	}
	return b.Finish()
}

// ParsePropertiesBlock parses an encoded properties block.
func ParsePropertiesBlock(data []byte) (*Properties, error) {
	blk, err := block.NewBlock(data)
	if err != nil {
		return nil, err
	}

	props := &Properties{}
	it := blk.NewIterator(comparator.Default())
	defer it.Release()
	for it.SeekToFirst(); it.Valid(); it.Next() {
		name := string(it.Key())
		value := it.Value()

		var target *uint64
		switch name {
		case PropNumEntries:
			target = &props.NumEntries
		case PropNumDataBlocks:
			target = &props.NumDataBlocks
		case PropRawKeySize:
			target = &props.RawKeySize
		case PropRawValueSize:
			target = &props.RawValueSize
		case PropDataSize:
			target = &props.DataSize
		case PropIndexSize:
			target = &props.IndexSize
		case PropFilterSize:
			target = &props.FilterSize
		case PropComparator:
			props.ComparatorName = string(value)
		case PropFilterPolicy:
			props.FilterPolicyName = string(value)
		default:
			if props.UserProperties == nil {
				props.UserProperties = make(map[string]string)
			}
			props.UserProperties[name] = string(value)
		}
		if target != nil {
			v, _, err := encoding.DecodeVarint64(value)
			if err != nil {
				return nil, fmt.Errorf("%w: property %s: %v", block.ErrBadBlock, name, err)
			}
			*target = v
		}
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return props, nil
}
