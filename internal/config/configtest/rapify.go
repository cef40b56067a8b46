package configtest

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/fwessels/arma-cfg/internal/config"
	"github.com/fwessels/arma-cfg/internal/stream"
)

// Entry tags and the nested array marker of the rapified format.
const (
	tagClass    byte = 0
	tagValue    byte = 1
	tagArray    byte = 2
	tagExtern   byte = 3
	tagAppend   byte = 5
	nestedArray byte = 3
)

// headerSize covers the magic, the two fixed words and the enum offset.
const headerSize = 16

// Rapify writes root in the rapified format to build test fixtures. Every
// class body is followed by the bodies of its subclasses, depth first, and
// an empty enum table closes the file.
func Rapify(w io.Writer, root *config.Class) error {
	body, err := encodeClass(root, headerSize)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, headerSize+len(body)+4)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(config.Magic))
	buf = binary.LittleEndian.AppendUint32(buf, 0)
	buf = binary.LittleEndian.AppendUint32(buf, 8)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(headerSize+len(body)))
	buf = append(buf, body...)
	buf = binary.LittleEndian.AppendUint32(buf, 0)
	_, err = w.Write(buf)
	return err
}

// encodeClass encodes c with its body starting at offset at.
func encodeClass(c *config.Class, at int) ([]byte, error) {
	// Offsets are fixed width, so a first pass with zero offsets yields
	// the body size.
	body, err := encodeBody(c, nil)
	if err != nil {
		return nil, err
	}
	next := at + len(body)
	var offsets []int32
	var children []byte
	for _, e := range c.Entries {
		sub, ok := e.(*config.SubclassEntry)
		if !ok {
			continue
		}
		if sub.Class == nil {
			return nil, fmt.Errorf("class %s has no body", sub.Name)
		}
		if next > math.MaxInt32 {
			return nil, fmt.Errorf("class %s: offset %d exceeds the format's range", sub.Name, next)
		}
		offsets = append(offsets, int32(next))
		child, err := encodeClass(sub.Class, next)
		if err != nil {
			return nil, err
		}
		children = append(children, child...)
		next += len(child)
	}
	body, err = encodeBody(c, offsets)
	if err != nil {
		return nil, err
	}
	return append(body, children...), nil
}

func encodeBody(c *config.Class, offsets []int32) ([]byte, error) {
	buf := appendCString(nil, c.Parent)
	buf = stream.AppendVLQ(buf, uint32(len(c.Entries)))
	sub := 0
	for _, e := range c.Entries {
		switch e := e.(type) {
		case *config.SubclassEntry:
			var off int32
			if offsets != nil {
				off = offsets[sub]
			}
			sub++
			buf = append(buf, tagClass)
			buf = appendCString(buf, e.Name)
			buf = binary.LittleEndian.AppendUint32(buf, uint32(off))
		case *config.ScalarEntry:
			buf = append(buf, tagValue, byte(e.Value.Type))
			buf = appendCString(buf, e.Name)
			var err error
			if buf, err = appendValue(buf, e.Value); err != nil {
				return nil, err
			}
		case *config.ArrayEntry:
			if e.Append {
				buf = append(buf, tagAppend, 0, 0, 0, 0)
			} else {
				buf = append(buf, tagArray)
			}
			buf = appendCString(buf, e.Name)
			var err error
			if buf, err = appendArray(buf, e.Elements); err != nil {
				return nil, err
			}
		case *config.ExternEntry:
			buf = append(buf, tagExtern)
			buf = appendCString(buf, e.Name)
		default:
			return nil, fmt.Errorf("cannot encode entry %T", e)
		}
	}
	return buf, nil
}

func appendCString(buf []byte, s string) []byte {
	return append(append(buf, s...), 0)
}

func appendValue(buf []byte, v config.Value) ([]byte, error) {
	switch v.Type {
	case config.String:
		return appendCString(buf, v.Text), nil
	case config.Float:
		return binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.Float)), nil
	case config.Int:
		return binary.LittleEndian.AppendUint32(buf, uint32(v.Int)), nil
	}
	return nil, fmt.Errorf("cannot encode value of type %s", v.Type)
}

func appendArray(buf []byte, a config.Array) ([]byte, error) {
	buf = stream.AppendVLQ(buf, uint32(len(a)))
	for _, el := range a {
		var err error
		switch el := el.(type) {
		case config.Value:
			buf = append(buf, byte(el.Type))
			buf, err = appendValue(buf, el)
		case config.Array:
			buf = append(buf, nestedArray)
			buf, err = appendArray(buf, el)
		default:
			err = fmt.Errorf("cannot encode array element %T", el)
		}
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}
