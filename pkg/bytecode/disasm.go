package bytecode

import (
	"strconv"
	"strings"
)

// Disassemble renders p in source form, one instruction per line.
// Assembling the output yields an identical program.
func Disassemble(p *Program) string {
	return DisassembleWithLabels(p, nil)
}

// DisassembleWithLabels renders p in source form, emitting a "name:" line
// before the instruction each label points at. Operands still print as
// resolved addresses, so the label lines are informational.
func DisassembleWithLabels(p *Program, labels []Label) string {
	byAddr := make(map[int][]string, len(labels))
	for _, l := range labels {
		byAddr[l.Addr] = append(byAddr[l.Addr], l.Name)
	}

	var sb strings.Builder
	writeLabels := func(addr int) {
		for _, name := range byAddr[addr] {
			sb.WriteString(name)
			sb.WriteByte(labelMarker)
			sb.WriteByte('\n')
		}
	}

	for addr, inst := range p.Items() {
		writeLabels(addr)
		sb.WriteString(inst.String())
		sb.WriteByte('\n')
	}
	writeLabels(p.Len())

	return sb.String()
}

// FormatValue renders v as a source-form literal with an explicit type
// suffix. Null renders as the empty string.
func FormatValue(v Value) string {
	switch v.Kind() {
	case KindInt:
		return strconv.FormatInt(v.AsInt(), 10) + string(suffixSeparator) + SuffixInt
	case KindUint:
		return strconv.FormatUint(v.AsUint(), 10) + string(suffixSeparator) + SuffixUint
	case KindFloat:
		return strconv.FormatFloat(v.AsFloat(), 'g', -1, 64) + string(suffixSeparator) + SuffixFloat
	default:
		return ""
	}
}
