package emu

import (
	"math"
	"slices"
	"strconv"
	"sync"

	"github.com/cjeanneret/PylonGo/internal/native"
)

type accessMode int

const (
	accessNA accessMode = iota
	accessRO
	accessRW
)

func readable(a accessMode) bool { return a == accessRO || a == accessRW }

// node is one feature of an emulated node map. Only the fields matching
// typ are used; value storage lives in the owner's state struct and is
// reached through the getter and setter closures.
type node struct {
	name    string
	typ     native.NodeType
	persist bool
	// selector, when set, makes the value indexed by the selector's
	// current entry. Persistence writes one value per selector entry.
	selector *node
	access   func() accessMode

	getBool func() bool
	setBool func(bool)

	getInt     func() int64
	setInt     func(int64)
	minInt     func() int64
	maxInt     func() int64
	inc        int64
	unit       string
	hasUnit    bool
	getFloat   func() float64
	setFloat   func(float64)
	minFloat   func() float64
	maxFloat   func() float64
	entries    []string
	available  func(entry string) bool
	getEnum    func() string
	setEnum    func(string)
	execute    func()
	commandRan func() bool
}

func (n *node) accessMode() accessMode {
	if n.access == nil {
		return accessRW
	}
	return n.access()
}

func constInt(v int64) func() int64       { return func() int64 { return v } }
func constFloat(v float64) func() float64 { return func() float64 { return v } }

func boolNode(name string, v *bool) *node {
	return &node{
		name: name, typ: native.NodeBoolean, persist: true,
		getBool: func() bool { return *v },
		setBool: func(b bool) { *v = b },
	}
}

func intNode(name string, v *int64, minV, maxV, inc int64) *node {
	return &node{
		name: name, typ: native.NodeInteger, persist: true,
		getInt: func() int64 { return *v },
		setInt: func(x int64) { *v = x },
		minInt: constInt(minV), maxInt: constInt(maxV), inc: inc,
	}
}

func readOnlyInt(name string, get func() int64) *node {
	return &node{
		name: name, typ: native.NodeInteger,
		access: func() accessMode { return accessRO },
		getInt: get, minInt: constInt(0), maxInt: constInt(math.MaxInt64), inc: 1,
	}
}

func floatNode(name string, v *float64, minV, maxV float64, unit string) *node {
	return &node{
		name: name, typ: native.NodeFloat, persist: true,
		getFloat: func() float64 { return *v },
		setFloat: func(x float64) { *v = x },
		minFloat: constFloat(minV), maxFloat: constFloat(maxV),
		unit: unit, hasUnit: unit != "",
	}
}

func readOnlyFloat(name string, get func() float64, unit string) *node {
	return &node{
		name: name, typ: native.NodeFloat,
		access:   func() accessMode { return accessRO },
		getFloat: get, minFloat: constFloat(-math.MaxFloat64), maxFloat: constFloat(math.MaxFloat64),
		unit: unit, hasUnit: unit != "",
	}
}

func enumNode(name string, v *string, entries ...string) *node {
	return &node{
		name: name, typ: native.NodeEnumeration, persist: true,
		entries: entries,
		getEnum: func() string { return *v },
		setEnum: func(s string) { *v = s },
	}
}

// commandNode builds a command whose completion is whatever the last run
// reported.
func commandNode(name string, run func() bool) *node {
	var ran bool
	return &node{
		name: name, typ: native.NodeCommand,
		execute:    func() { ran = run() },
		commandRan: func() bool { return ran },
	}
}

func withUnit(n *node, unit string) *node {
	n.unit, n.hasUnit = unit, true
	return n
}

// nodeMap is a named collection of nodes guarded by its owner's mutex.
// check, when set, raises if the whole map is currently unavailable.
type nodeMap struct {
	title string
	mu    *sync.Mutex
	nodes map[string]*node
	order []*node
	check func()
}

func newNodeMap(title string, mu *sync.Mutex, check func()) *nodeMap {
	return &nodeMap{title: title, mu: mu, nodes: make(map[string]*node), check: check}
}

func (m *nodeMap) add(nodes ...*node) {
	for _, n := range nodes {
		m.nodes[n.name] = n
		m.order = append(m.order, n)
	}
}

// resolve finds name as typ. Caller holds m.mu.
func (m *nodeMap) resolve(name string, typ native.NodeType) *node {
	if m.check != nil {
		m.check()
	}
	n, ok := m.nodes[name]
	if !ok {
		panic(native.Access("Node '%s' does not exist in the %s node map.", name, m.title))
	}
	if n.typ != typ {
		panic(native.DynamicCast("Node '%s' is not of type %s.", name, typ))
	}
	return n
}

// parameter is the emulated binding created by resolving a node.
type parameter struct {
	nm *nodeMap
	n  *node
}

func (p *parameter) lock() func() {
	p.nm.mu.Lock()
	return p.nm.mu.Unlock
}

func (p *parameter) mustRead(call string) {
	if p.nm.check != nil {
		p.nm.check()
	}
	if !readable(p.n.accessMode()) {
		panic(native.Access("Node is not readable. : AccessException thrown in node '%s' while calling '%s.%s()'", p.n.name, p.n.name, call))
	}
}

func (p *parameter) mustWrite(call string) {
	if p.nm.check != nil {
		p.nm.check()
	}
	if p.n.accessMode() != accessRW {
		panic(native.Access("Node is not writable. : AccessException thrown in node '%s' while calling '%s.%s()'", p.n.name, p.n.name, call))
	}
}

func (p *parameter) boolValue() bool {
	p.mustRead("GetValue")
	return p.n.getBool()
}

func (p *parameter) setBoolValue(v bool) {
	p.mustWrite("SetValue")
	p.n.setBool(v)
}

func (p *parameter) intValue() int64 {
	p.mustRead("GetValue")
	return p.n.getInt()
}

func (p *parameter) intMin() int64 {
	p.mustRead("GetMin")
	return p.n.minInt()
}

func (p *parameter) intMax() int64 {
	p.mustRead("GetMax")
	return p.n.maxInt()
}

func (p *parameter) intInc() int64 {
	p.mustRead("GetInc")
	if p.n.inc <= 0 {
		return 1
	}
	return p.n.inc
}

func (p *parameter) setIntValue(v int64) {
	p.mustWrite("SetValue")
	n := p.n
	lo, hi := n.minInt(), n.maxInt()
	if v < lo {
		panic(native.OutOfRange("Value = %d must be equal or greater than Min = %d. : OutOfRangeException thrown in node '%s' while calling '%s.SetValue()'", v, lo, n.name, n.name))
	}
	if v > hi {
		panic(native.OutOfRange("Value = %d must be equal or smaller than Max = %d. : OutOfRangeException thrown in node '%s' while calling '%s.SetValue()'", v, hi, n.name, n.name))
	}
	if n.inc > 1 && (v-lo)%n.inc != 0 {
		panic(native.OutOfRange("Value = %d must be a multiple of Inc = %d starting at Min = %d. : OutOfRangeException thrown in node '%s' while calling '%s.SetValue()'", v, n.inc, lo, n.name, n.name))
	}
	n.setInt(v)
}

func (p *parameter) floatValue() float64 {
	p.mustRead("GetValue")
	return p.n.getFloat()
}

func (p *parameter) floatMin() float64 {
	p.mustRead("GetMin")
	return p.n.minFloat()
}

func (p *parameter) floatMax() float64 {
	p.mustRead("GetMax")
	return p.n.maxFloat()
}

func (p *parameter) setFloatValue(v float64) {
	p.mustWrite("SetValue")
	n := p.n
	lo, hi := n.minFloat(), n.maxFloat()
	if math.IsNaN(v) || v < lo {
		panic(native.OutOfRange("Value = %s must be equal or greater than Min = %s. : OutOfRangeException thrown in node '%s' while calling '%s.SetValue()'", formatFloat(v), formatFloat(lo), n.name, n.name))
	}
	if v > hi {
		panic(native.OutOfRange("Value = %s must be equal or smaller than Max = %s. : OutOfRangeException thrown in node '%s' while calling '%s.SetValue()'", formatFloat(v), formatFloat(hi), n.name, n.name))
	}
	n.setFloat(v)
}

func (p *parameter) unit(call string) (string, bool) {
	p.mustRead(call)
	return p.n.unit, p.n.hasUnit
}

func (p *parameter) enumValue() string {
	p.mustRead("ToString")
	return p.n.getEnum()
}

// settable lists the entries that can currently be written. Caller holds
// the map mutex.
func (n *node) settable() []string {
	out := make([]string, 0, len(n.entries))
	for _, e := range n.entries {
		if n.available == nil || n.available(e) {
			out = append(out, e)
		}
	}
	return out
}

func (p *parameter) enumSettable() []string {
	p.mustRead("GetSettableValues")
	return p.n.settable()
}

func (p *parameter) setEnumValue(v string) {
	p.mustWrite("FromString")
	n := p.n
	if !slices.Contains(n.entries, v) {
		panic(native.InvalidArgument("Feature '%s' : cannot convert value '%s', the value is invalid. : InvalidArgumentException thrown in node '%s' while calling '%s.FromString()'", n.name, v, n.name, n.name))
	}
	if n.available != nil && !n.available(v) {
		panic(native.Access("Feature '%s' : the entry '%s' is not available. : AccessException thrown in node '%s' while calling '%s.FromString()'", n.name, v, n.name, n.name))
	}
	n.setEnum(v)
}

func (p *parameter) executeCommand(verify bool) {
	p.mustWrite("Execute")
	p.n.execute()
	if verify && !p.n.commandRan() {
		panic(native.Runtime("Command '%s' did not complete.", p.n.name))
	}
}

// valueString renders the current value the way persistence writes it.
func (n *node) valueString() string {
	switch n.typ {
	case native.NodeBoolean:
		if n.getBool() {
			return "1"
		}
		return "0"
	case native.NodeInteger:
		return strconv.FormatInt(n.getInt(), 10)
	case native.NodeFloat:
		return formatFloat(n.getFloat())
	case native.NodeEnumeration:
		return n.getEnum()
	}
	return ""
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
