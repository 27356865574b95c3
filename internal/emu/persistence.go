package emu

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cjeanneret/PylonGo/internal/native"
)

const persistenceHeader = "# {05D8C294-F295-4dfb-9D01-096BD04049F4}\n" +
	"# GenApi persistence file (version 3.1.0)\n"

// save renders every persistent, readable and writable node in
// declaration order. Caller holds m.mu.
func (m *nodeMap) save() string {
	if m.check != nil {
		m.check()
	}
	var b strings.Builder
	b.WriteString(persistenceHeader)
	fmt.Fprintf(&b, "# Device = Basler::Emulation -- %s node map -- Device version = %s\n", m.title, sdkVersionString)
	for _, n := range m.order {
		if !n.persist || n.accessMode() != accessRW {
			continue
		}
		if n.selector == nil {
			fmt.Fprintf(&b, "%s\t%s\n", n.name, n.valueString())
			continue
		}
		sel := n.selector
		if sel.accessMode() != accessRW {
			continue
		}
		saved := sel.getEnum()
		for _, entry := range sel.settable() {
			sel.setEnum(entry)
			fmt.Fprintf(&b, "%s\t%s\n%s\t%s\n", sel.name, entry, n.name, n.valueString())
		}
		sel.setEnum(saved)
		fmt.Fprintf(&b, "%s\t%s\n", sel.name, saved)
	}
	return b.String()
}

type persistEntry struct {
	line  int
	name  string
	value string
}

// load applies persisted values. Entries that fail are retried once after
// the rest, which resolves dependencies such as an offset that only fits
// once the width has shrunk. Caller holds m.mu.
func (m *nodeMap) load(text string, validate bool) {
	if m.check != nil {
		m.check()
	}
	var entries []persistEntry
	sc := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, "\t")
		if !ok {
			if validate {
				panic(native.Runtime("Invalid feature file entry in line %d: '%s'", lineNo, line))
			}
			continue
		}
		entries = append(entries, persistEntry{line: lineNo, name: name, value: value})
	}

	var retry []persistEntry
	for _, e := range entries {
		if err := m.apply(e); err != nil {
			retry = append(retry, e)
		}
	}
	for _, e := range retry {
		if err := m.apply(e); err != nil && validate {
			panic(native.Runtime("Cannot load feature '%s' from line %d: %v", e.name, e.line, err))
		}
	}
}

func (m *nodeMap) apply(e persistEntry) (err error) {
	n, ok := m.nodes[e.name]
	if !ok {
		return fmt.Errorf("node does not exist")
	}
	return native.Try(func() {
		p := &parameter{nm: m, n: n}
		switch n.typ {
		case native.NodeBoolean:
			p.setBoolValue(e.value == "1" || strings.EqualFold(e.value, "true"))
		case native.NodeInteger:
			v, perr := strconv.ParseInt(e.value, 10, 64)
			if perr != nil {
				panic(native.InvalidArgument("'%s' is not an integer", e.value))
			}
			p.setIntValue(v)
		case native.NodeFloat:
			v, perr := strconv.ParseFloat(e.value, 64)
			if perr != nil {
				panic(native.InvalidArgument("'%s' is not a float", e.value))
			}
			p.setFloatValue(v)
		case native.NodeEnumeration:
			p.setEnumValue(e.value)
		default:
			panic(native.LogicalError("node '%s' cannot be persisted", n.name))
		}
	})
}

func (m *nodeMap) saveFile(path string) {
	if err := os.WriteFile(path, []byte(m.save()), 0o644); err != nil {
		panic(native.Runtime("Cannot write feature file '%s': %v", path, err))
	}
}

func (m *nodeMap) loadFile(path string, validate bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		panic(native.Runtime("Cannot open feature file '%s': %v", path, err))
	}
	m.load(string(data), validate)
}
