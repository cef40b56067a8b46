package config

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/fwessels/arma-cfg/internal/stream"
)

// Magic opens every rapified file ("\0raP").
const Magic int32 = 1348563456

// DecodeRapified reads a rapified config file. Subclass bodies are read in
// ascending offset order in a single forward pass, while each class keeps
// its entries in declaration order.
func DecodeRapified(r io.Reader) (*Class, error) {
	d := &rapDecoder{in: stream.NewByteReader(r)}
	return d.file()
}

type rapDecoder struct {
	in *stream.ByteReader
}

func (d *rapDecoder) fail(offset int, format string, args ...any) error {
	return &DecodeError{Format: FormatRapified, Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

func (d *rapDecoder) wrap(err error) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &DecodeError{Format: FormatRapified, Offset: d.in.Position(), Msg: "read failed", Err: err}
}

func (d *rapDecoder) int32() (int32, error) {
	v, err := d.in.ReadInt32()
	if err != nil {
		return 0, d.wrap(err)
	}
	return v, nil
}

func (d *rapDecoder) file() (*Class, error) {
	magic, err := d.int32()
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, d.fail(0, "not a rapified file: magic %#x", uint32(magic))
	}
	w1, err := d.int32()
	if err != nil {
		return nil, err
	}
	w2, err := d.int32()
	if err != nil {
		return nil, err
	}
	if w1 != 0 || w2 != 8 {
		return nil, d.fail(4, "unexpected header words %d, %d (want 0, 8)", w1, w2)
	}
	// offset of the enum table, which is not modelled
	if _, err := d.int32(); err != nil {
		return nil, err
	}
	return d.class("")
}

func (d *rapDecoder) class(name string) (*Class, error) {
	parent, err := d.in.ReadCString()
	if err != nil {
		return nil, d.wrap(err)
	}
	at := d.in.Position()
	count, err := d.in.ReadVLQ()
	if err != nil {
		return nil, d.wrap(err)
	}
	if count < 0 {
		return nil, d.fail(at, "negative entry count %d", count)
	}

	entries := make([]Entry, 0, min(int(count), 1024))
	var pending []*SubclassEntry
	for range count {
		at := d.in.Position()
		tag, err := d.in.ReadByte()
		if err != nil {
			return nil, d.wrap(err)
		}
		switch tag {
		case tagClass:
			n, err := d.name("class")
			if err != nil {
				return nil, err
			}
			off, err := d.int32()
			if err != nil {
				return nil, err
			}
			e := &SubclassEntry{Name: n, Offset: off}
			entries = append(entries, e)
			pending = append(pending, e)
		case tagValue:
			e, err := d.scalar()
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
		case tagArray, tagAppend:
			if tag == tagAppend {
				if err := d.in.Skip(4); err != nil {
					return nil, d.wrap(err)
				}
			}
			n, err := d.name("array")
			if err != nil {
				return nil, err
			}
			elems, err := d.array()
			if err != nil {
				return nil, err
			}
			entries = append(entries, &ArrayEntry{Name: n, Elements: elems, Append: tag == tagAppend})
		case tagExtern:
			n, err := d.name("extern class")
			if err != nil {
				return nil, err
			}
			entries = append(entries, &ExternEntry{Name: n})
		case tagDelete:
			if _, err := d.in.ReadCString(); err != nil {
				return nil, d.wrap(err)
			}
		default:
			return nil, d.fail(at, "unknown entry type %d", tag)
		}
	}

	slices.SortStableFunc(pending, func(a, b *SubclassEntry) int {
		return cmp.Compare(a.Offset, b.Offset)
	})
	for _, e := range pending {
		if pos := d.in.Position(); int(e.Offset) < pos {
			return nil, d.fail(pos, "body of class %s at offset %d lies before the current position", e.Name, e.Offset)
		}
		if err := d.in.SeekForward(int(e.Offset)); err != nil {
			return nil, d.wrap(err)
		}
		e.Class, err = d.class(e.Name)
		if err != nil {
			return nil, err
		}
	}
	return &Class{Name: name, Parent: parent, Entries: entries}, nil
}

func (d *rapDecoder) name(what string) (string, error) {
	at := d.in.Position()
	n, err := d.in.ReadCString()
	if err != nil {
		return "", d.wrap(err)
	}
	if n == "" {
		return "", d.fail(at, "empty %s name", what)
	}
	return n, nil
}

func (d *rapDecoder) scalar() (*ScalarEntry, error) {
	at := d.in.Position()
	typ, err := d.in.ReadByte()
	if err != nil {
		return nil, d.wrap(err)
	}
	n, err := d.name("variable")
	if err != nil {
		return nil, err
	}
	v, err := d.value(typ, at)
	if err != nil {
		return nil, err
	}
	return &ScalarEntry{Name: n, Value: v}, nil
}

func (d *rapDecoder) value(typ byte, at int) (Value, error) {
	switch ValueType(typ) {
	case String:
		s, err := d.in.ReadCString()
		if err != nil {
			return Value{}, d.wrap(err)
		}
		return StringValue(s), nil
	case Float:
		f, err := d.in.ReadFloat32()
		if err != nil {
			return Value{}, d.wrap(err)
		}
		return FloatValue(f), nil
	case Int:
		i, err := d.int32()
		if err != nil {
			return Value{}, err
		}
		return IntValue(i), nil
	}
	return Value{}, d.fail(at, "unknown value type %d", typ)
}

func (d *rapDecoder) array() (Array, error) {
	at := d.in.Position()
	count, err := d.in.ReadVLQ()
	if err != nil {
		return nil, d.wrap(err)
	}
	if count < 0 {
		return nil, d.fail(at, "negative array length %d", count)
	}
	elems := make(Array, 0, min(int(count), 1024))
	for range count {
		at := d.in.Position()
		typ, err := d.in.ReadByte()
		if err != nil {
			return nil, d.wrap(err)
		}
		if typ == nestedArray {
			nested, err := d.array()
			if err != nil {
				return nil, err
			}
			elems = append(elems, nested)
			continue
		}
		v, err := d.value(typ, at)
		if err != nil {
			return nil, err
		}
		elems = append(elems, v)
	}
	return elems, nil
}
