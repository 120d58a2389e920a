package bytecode

import (
	"strings"
)

// Pretty renders root as indented JSON: operands stay on the instruction's
// line and every child of a block gets a line of its own. The output is
// valid input to Decode.
func Pretty(root *Root) string {
	var sb strings.Builder
	p := &printer{sb: &sb}
	p.inst(root, 0)
	sb.WriteByte('\n')
	return sb.String()
}

type printer struct {
	sb *strings.Builder
}

// slotKind says how the printer lays out one tuple position.
type slotKind uint8

const (
	slotOperand slotKind = iota
	slotBlock
	slotAlt
)

// layout maps tuple positions of composite opcodes to their slot kind.
// Positions not listed are operands.
var layout = map[Opcode]map[int]slotKind{
	OpRoot:        {2: slotBlock, 3: slotAlt},
	OpSection:     {2: slotBlock, 3: slotAlt},
	OpRepeated:    {2: slotBlock, 3: slotAlt, 4: slotBlock},
	OpPredicate:   {3: slotBlock, 4: slotAlt},
	OpOrPredicate: {3: slotBlock, 4: slotAlt},
	OpIf:          {3: slotBlock, 4: slotAlt},
	OpMacro:       {2: slotBlock},
	OpStruct:      {2: slotBlock},
}

func (p *printer) inst(inst Instruction, depth int) {
	slots, composite := layout[inst.Opcode()]
	if !composite {
		p.compact(ToTuple(inst))
		return
	}
	blocks, alt := children(inst)
	tuple := ToTuple(inst)
	p.sb.WriteByte('[')
	nb := 0
	for i, v := range tuple {
		if i > 0 {
			p.sb.WriteString(", ")
		}
		switch slots[i] {
		case slotBlock:
			p.block(blocks[nb], depth)
			nb++
		case slotAlt:
			if alt == nil {
				p.compact(v)
			} else {
				p.inst(alt, depth)
			}
		default:
			p.compact(v)
		}
	}
	p.sb.WriteByte(']')
}

func (p *printer) block(block []Instruction, depth int) {
	if len(block) == 0 {
		p.sb.WriteString("[]")
		return
	}
	p.sb.WriteString("[\n")
	for i, child := range block {
		p.indent(depth + 1)
		p.inst(child, depth+1)
		if i < len(block)-1 {
			p.sb.WriteByte(',')
		}
		p.sb.WriteByte('\n')
	}
	p.indent(depth)
	p.sb.WriteByte(']')
}

func (p *printer) indent(depth int) {
	p.sb.WriteString(strings.Repeat("  ", depth))
}

func (p *printer) compact(v any) {
	b, err := marshalCompact(v)
	if err != nil {
		// Only Atom/Struct payloads can fail to marshal.
		p.sb.WriteString("null")
		return
	}
	p.sb.Write(b)
}

// children returns a composite's blocks in tuple order and its alternative.
func children(inst Instruction) ([][]Instruction, Instruction) {
	switch x := inst.(type) {
	case *Root:
		return [][]Instruction{x.Block}, &EOF{}
	case *Section:
		return [][]Instruction{x.Block}, x.Alternative
	case *Repeated:
		return [][]Instruction{x.Block, x.AlternatesWith}, x.Alternative
	case *Predicate:
		return [][]Instruction{x.Block}, x.Alternative
	case *OrPredicate:
		return [][]Instruction{x.Block}, x.Alternative
	case *If:
		return [][]Instruction{x.Block}, x.Alternative
	case *Macro:
		return [][]Instruction{x.Block}, nil
	case *Struct:
		return [][]Instruction{x.Block}, nil
	}
	return nil, nil
}
