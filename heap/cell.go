package heap

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is the storage class of a cell. The ordering matters: every type
// below TypeArray is a scalar.
type Type uint8

const (
	TypeNull Type = iota
	TypeScalar
	TypeArray
	TypeHash
)

func (t Type) String() string {
	switch t {
	case TypeNull:
		return "NULL"
	case TypeScalar:
		return "SCALAR"
	case TypeArray:
		return "ARRAY"
	case TypeHash:
		return "HASH"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Flags mark which representations of a scalar are valid.
type Flags uint8

const (
	FlagInt Flags = 1 << iota
	FlagUnsigned
	FlagFloat
	FlagString
	FlagRef
)

// Magic attaches host data to a cell. Free runs exactly once, when the cell
// itself is freed.
type Magic struct {
	Data any
	Free func(data any)
}

// Cell is one reference-counted value slot.
type Cell struct {
	id     uint64
	engine *Engine
	refcnt int
	typ    Type
	flags  Flags
	freed  bool

	iv  int64
	nv  float64
	pv  string
	rv  *Cell
	ptr any

	elems []*Cell
	hash  *hashTable

	stash string // blessed class, set on the referent
	magic []*Magic
}

// ID returns a process-unique identity for diagnostics.
func (c *Cell) ID() uint64 { return c.id }

// Refcnt returns the current reference count. A freed cell reports 0.
func (c *Cell) Refcnt() int {
	if c == nil {
		return 0
	}
	return c.refcnt
}

// Type returns the storage class.
func (c *Cell) Type() Type { return c.typ }

// Flags returns the valid representations of a scalar.
func (c *Cell) Flags() Flags { return c.flags }

// Freed reports whether the cell's reference count reached zero.
func (c *Cell) Freed() bool { return c.freed }

func (c *Cell) IOK() bool { return c.flags&FlagInt != 0 }
func (c *Cell) NOK() bool { return c.flags&FlagFloat != 0 }
func (c *Cell) POK() bool { return c.flags&FlagString != 0 }
func (c *Cell) ROK() bool { return c.flags&FlagRef != 0 }

// IsUnsigned reports whether the integer slot holds an unsigned value.
func (c *Cell) IsUnsigned() bool { return c.flags&FlagUnsigned != 0 }

// OK reports whether the scalar holds a defined value.
func (c *Cell) OK() bool {
	return c.flags&(FlagInt|FlagFloat|FlagString|FlagRef) != 0
}

// RV returns the referent of a reference cell, or nil.
func (c *Cell) RV() *Cell {
	if !c.ROK() {
		return nil
	}
	return c.rv
}

// Ptr returns the opaque host pointer stored in the cell, if any.
func (c *Cell) Ptr() any { return c.ptr }

// Stash returns the class a referent is blessed into.
func (c *Cell) Stash() string { return c.stash }

// Magic returns the magic entries attached to the cell.
func (c *Cell) Magic() []*Magic { return c.magic }

// IV returns the integer value, converting from other representations.
func (c *Cell) IV() int64 {
	switch {
	case c.IOK():
		return c.iv
	case c.NOK():
		return int64(c.nv)
	case c.POK():
		return parseIntPrefix(c.pv)
	case c.ROK():
		if c.rv != nil {
			return int64(c.rv.id)
		}
	}
	return 0
}

// UV returns the value as an unsigned integer.
func (c *Cell) UV() uint64 {
	if c.IOK() {
		return uint64(c.iv)
	}
	if c.NOK() {
		return uint64(c.nv)
	}
	return uint64(c.IV())
}

// NV returns the floating point value, converting from other representations.
func (c *Cell) NV() float64 {
	switch {
	case c.NOK():
		return c.nv
	case c.IOK():
		if c.IsUnsigned() {
			return float64(uint64(c.iv))
		}
		return float64(c.iv)
	case c.POK():
		f, err := strconv.ParseFloat(strings.TrimSpace(c.pv), 64)
		if err != nil {
			return float64(parseIntPrefix(c.pv))
		}
		return f
	}
	return 0
}

// PV returns the string value, converting from other representations.
func (c *Cell) PV() string {
	switch {
	case c.POK():
		return c.pv
	case c.ROK():
		return refString(c)
	case c.IOK():
		if c.IsUnsigned() {
			return strconv.FormatUint(uint64(c.iv), 10)
		}
		return strconv.FormatInt(c.iv, 10)
	case c.NOK():
		return strconv.FormatFloat(c.nv, 'g', 15, 64)
	}
	switch c.typ {
	case TypeArray:
		return fmt.Sprintf("ARRAY(0x%x)", c.id)
	case TypeHash:
		return fmt.Sprintf("HASH(0x%x)", c.id)
	}
	return ""
}

// True reports the truthiness of a scalar.
func (c *Cell) True() bool {
	switch {
	case c.ROK():
		return true
	case c.POK():
		return c.pv != "" && c.pv != "0"
	case c.NOK():
		return c.nv != 0
	case c.IOK():
		return c.iv != 0
	}
	switch c.typ {
	case TypeArray:
		return len(c.elems) > 0
	case TypeHash:
		return c.hash != nil && c.hash.len() > 0
	}
	return false
}

func (c *Cell) String() string {
	if c == nil {
		return "<nil>"
	}
	return c.PV()
}

func refString(c *Cell) string {
	target := c.rv
	if target == nil {
		return ""
	}
	kind := "SCALAR"
	switch target.typ {
	case TypeArray:
		kind = "ARRAY"
	case TypeHash:
		kind = "HASH"
	default:
		if target.ROK() {
			kind = "REF"
		}
	}
	if target.stash != "" {
		return fmt.Sprintf("%s=%s(0x%x)", target.stash, kind, target.id)
	}
	return fmt.Sprintf("%s(0x%x)", kind, target.id)
}

func parseIntPrefix(s string) int64 {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) {
		ch := s[end]
		if ch >= '0' && ch <= '9' || end == 0 && (ch == '-' || ch == '+') {
			end++
			continue
		}
		break
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// clearScalar drops every scalar representation, releasing a held referent.
func (c *Cell) clearScalar() {
	if c.ROK() && c.rv != nil {
		old := c.rv
		c.rv = nil
		c.flags = 0
		c.engine.Dec(old)
	}
	c.flags = 0
	c.iv, c.nv, c.pv, c.ptr = 0, 0, "", nil
}

func (c *Cell) upgrade() {
	if c.typ == TypeNull {
		c.typ = TypeScalar
	}
}
