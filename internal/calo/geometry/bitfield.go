package geometry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/calo.report/internal/calo"
)

// ErrUnknownField is returned when a bit-field name is not part of a
// readout's cell-ID layout.
var ErrUnknownField = errors.New("unknown bit field")

// BitField is one named field of a cell-ID layout.
type BitField struct {
	Name   string
	Offset uint
	Width  uint
	Signed bool
	mask   uint64
}

// Value decodes the field from a cell ID. Signed fields are sign-extended.
func (f *BitField) Value(id calo.CellID) int64 {
	raw := (uint64(id) & f.mask) >> f.Offset
	if f.Signed && f.Width > 0 && raw&(1<<(f.Width-1)) != 0 {
		return int64(raw) - int64(1)<<f.Width
	}
	return int64(raw)
}

// Set returns id with the field replaced by v. Values wider than the field
// are truncated to its width.
func (f *BitField) Set(id calo.CellID, v int64) calo.CellID {
	raw := (uint64(v) << f.Offset) & f.mask
	return calo.CellID((uint64(id) &^ f.mask) | raw)
}

// Min and Max bound the values the field can hold.
func (f *BitField) Min() int64 {
	if f.Signed {
		return -(int64(1) << (f.Width - 1))
	}
	return 0
}

func (f *BitField) Max() int64 {
	if f.Signed {
		return int64(1)<<(f.Width-1) - 1
	}
	return int64(1)<<f.Width - 1
}

// BitFieldCoder decodes and encodes cell IDs from a descriptor string of
// the form "system:4,layer:5,eta:-10,phi:10". Each entry is name:width or
// name:offset:width; a negative width marks a signed field. Fields without
// an explicit offset are packed after the previous field.
type BitFieldCoder struct {
	descriptor string
	fields     []*BitField
	byName     map[string]*BitField
}

// NewBitFieldCoder parses a descriptor. Overlapping fields and layouts
// wider than 64 bits are rejected.
func NewBitFieldCoder(descriptor string) (*BitFieldCoder, error) {
	c := &BitFieldCoder{
		descriptor: descriptor,
		byName:     make(map[string]*BitField),
	}
	var used uint64
	var next uint
	for _, entry := range strings.Split(descriptor, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		var (
			name      = parts[0]
			offset    = next
			widthText string
		)
		switch len(parts) {
		case 2:
			widthText = parts[1]
		case 3:
			o, err := strconv.ParseUint(parts[1], 10, 8)
			if err != nil {
				return nil, fmt.Errorf("field %q: bad offset %q: %w", name, parts[1], err)
			}
			offset = uint(o)
			widthText = parts[2]
		default:
			return nil, fmt.Errorf("field entry %q: want name:width or name:offset:width", entry)
		}
		w, err := strconv.Atoi(widthText)
		if err != nil {
			return nil, fmt.Errorf("field %q: bad width %q: %w", name, widthText, err)
		}
		signed := w < 0
		if signed {
			w = -w
		}
		if w == 0 || offset+uint(w) > 64 {
			return nil, fmt.Errorf("field %q: offset %d width %d does not fit in 64 bits", name, offset, w)
		}
		if _, dup := c.byName[name]; dup {
			return nil, fmt.Errorf("field %q declared twice", name)
		}
		mask := ((uint64(1) << uint(w)) - 1) << offset
		if w == 64 {
			mask = ^uint64(0)
		}
		if used&mask != 0 {
			return nil, fmt.Errorf("field %q overlaps an earlier field", name)
		}
		used |= mask
		f := &BitField{Name: name, Offset: offset, Width: uint(w), Signed: signed, mask: mask}
		c.fields = append(c.fields, f)
		c.byName[name] = f
		next = offset + uint(w)
	}
	if len(c.fields) == 0 {
		return nil, fmt.Errorf("descriptor %q declares no fields", descriptor)
	}
	return c, nil
}

// MustBitFieldCoder is NewBitFieldCoder for static layouts; it panics on error.
func MustBitFieldCoder(descriptor string) *BitFieldCoder {
	c, err := NewBitFieldCoder(descriptor)
	if err != nil {
		panic(err)
	}
	return c
}

// Descriptor returns the string the coder was built from.
func (c *BitFieldCoder) Descriptor() string { return c.descriptor }

// Has reports whether the layout contains the named field.
func (c *BitFieldCoder) Has(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// Field returns the named field.
func (c *BitFieldCoder) Field(name string) (*BitField, error) {
	f, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q in %q", ErrUnknownField, name, c.descriptor)
	}
	return f, nil
}

// Get decodes the named field from id.
func (c *BitFieldCoder) Get(id calo.CellID, name string) (int64, error) {
	f, err := c.Field(name)
	if err != nil {
		return 0, err
	}
	return f.Value(id), nil
}

// Set encodes v into the named field of id.
func (c *BitFieldCoder) Set(id calo.CellID, name string, v int64) (calo.CellID, error) {
	f, err := c.Field(name)
	if err != nil {
		return id, err
	}
	if v < f.Min() || v > f.Max() {
		return id, fmt.Errorf("field %q: value %d outside [%d, %d]", name, v, f.Min(), f.Max())
	}
	return f.Set(id, v), nil
}

// Encode builds a cell ID from field values. Missing fields are zero.
func (c *BitFieldCoder) Encode(values map[string]int64) (calo.CellID, error) {
	var id calo.CellID
	for name, v := range values {
		var err error
		if id, err = c.Set(id, name, v); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// FieldNames lists the fields in declaration order.
func (c *BitFieldCoder) FieldNames() []string {
	names := make([]string, len(c.fields))
	for i, f := range c.fields {
		names[i] = f.Name
	}
	return names
}
