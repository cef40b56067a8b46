package config

import (
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Class is a config class. The root class of a file has no name. Entries
// keep their declaration order.
type Class struct {
	Name    string
	Parent  string
	Entries []Entry
}

func (c *Class) Len() int {
	return len(c.Entries)
}

func (c *Class) Entry(i int) Entry {
	return c.Entries[i]
}

// Field looks up a scalar or array entry by name, ignoring case. With
// recursive set, subclasses are searched depth-first when c itself has no
// such field. Extern classes are never searched.
func (c *Class) Field(name string, recursive bool) Field {
	for _, e := range c.Entries {
		switch e := e.(type) {
		case *ScalarEntry:
			if strings.EqualFold(e.Name, name) {
				return e
			}
		case *ArrayEntry:
			if strings.EqualFold(e.Name, name) {
				return e
			}
		case *SubclassEntry:
			if recursive && e.Class != nil {
				if f := e.Class.Field(name, true); f != nil {
					return f
				}
			}
		}
	}
	return nil
}

// Subclass looks up a subclass by name, ignoring case. With recursive set,
// the search descends into subclasses. Extern classes are never returned.
func (c *Class) Subclass(name string, recursive bool) *Class {
	for _, e := range c.Entries {
		sub, ok := e.(*SubclassEntry)
		if !ok || sub.Class == nil {
			continue
		}
		if strings.EqualFold(sub.Name, name) {
			return sub.Class
		}
		if recursive {
			if found := sub.Class.Subclass(name, true); found != nil {
				return found
			}
		}
	}
	return nil
}

func (c *Class) Fields() []Field {
	var fields []Field
	for _, e := range c.Entries {
		if f, ok := e.(Field); ok {
			fields = append(fields, f)
		}
	}
	return fields
}

// Subclasses returns the declared classes in order, with placeholders for
// extern declarations.
func (c *Class) Subclasses() []*Class {
	var classes []*Class
	for _, e := range c.Entries {
		switch e := e.(type) {
		case *SubclassEntry:
			classes = append(classes, e.Class)
		case *ExternEntry:
			classes = append(classes, e.Class())
		}
	}
	return classes
}

func (c *Class) FieldCount() int {
	return len(c.Fields())
}

func (c *Class) SubclassCount() int {
	return len(c.Entries) - c.FieldCount()
}

func (c *Class) String() string {
	if c.Name == "" {
		return fmt.Sprintf("root class - %d entries", len(c.Entries))
	}
	return fmt.Sprintf("class %q - %d entries", c.Name, len(c.Entries))
}

var equalOpts = cmp.Options{
	cmpopts.IgnoreFields(SubclassEntry{}, "Offset"),
	cmpopts.EquateEmpty(),
}

// Equal reports whether two class trees have the same entries, order,
// values and types. Rapified body offsets are not compared.
func Equal(a, b *Class) bool {
	return cmp.Equal(a, b, equalOpts)
}

// Diff describes the differences between two class trees, or returns ""
// when they are equal.
func Diff(a, b *Class) string {
	return cmp.Diff(a, b, equalOpts)
}

// Text renders the class in the text config format. The root class is
// rendered as its bare body.
func (c *Class) Text() string {
	var b strings.Builder
	if c.Name == "" {
		writeEntries(&b, c.Entries, "")
	} else {
		writeClass(&b, c, "")
	}
	return b.String()
}

func writeClass(b *strings.Builder, c *Class, indent string) {
	b.WriteString(indent + "class " + c.Name)
	if c.Parent != "" {
		b.WriteString(" : " + c.Parent)
	}
	b.WriteString(" {\n")
	writeEntries(b, c.Entries, indent+"\t")
	b.WriteString(indent + "};\n")
}

func writeEntries(b *strings.Builder, entries []Entry, indent string) {
	for _, e := range entries {
		switch e := e.(type) {
		case *SubclassEntry:
			writeClass(b, e.Class, indent)
		case *ExternEntry:
			fmt.Fprintf(b, "%sclass %s;\n", indent, e.Name)
		case *ScalarEntry:
			fmt.Fprintf(b, "%s%s = %s;\n", indent, e.Name, e.Value)
		case *ArrayEntry:
			op := "="
			if e.Append {
				op = "+="
			}
			fmt.Fprintf(b, "%s%s[] %s %s;\n", indent, e.Name, op, e.Elements)
		}
	}
}
