package normalizer

import (
	"strings"

	"github.com/n9te9/graphql-parser/ast"
)

// CanonicalForm renders op's selection tree into a stable string, used as
// plan_cache_key's input: planning is a pure function of the normalized
// operation's *shape*, and since InlineOperation already deduplicates and
// stably sorts every selection set, printing it back out in that order
// gives two structurally-equal operations the same canonical text
// regardless of how the client originally wrote the query.
func (op *NormalizedOperation) CanonicalForm() string {
	var sb strings.Builder
	sb.WriteString(string(op.Operation.Operation))
	sb.WriteString(" ")
	writeSelections(&sb, op.Operation.SelectionSet)
	return sb.String()
}

func writeSelections(sb *strings.Builder, selections []ast.Selection) {
	sb.WriteString("{")
	for _, sel := range selections {
		writeSelection(sb, sel)
		sb.WriteString(",")
	}
	sb.WriteString("}")
}

func writeSelection(sb *strings.Builder, sel ast.Selection) {
	switch s := sel.(type) {
	case *ast.Field:
		if s.Alias != nil && s.Alias.String() != "" {
			sb.WriteString(s.Alias.String())
			sb.WriteString(":")
		}
		sb.WriteString(s.Name.String())
		for _, arg := range s.Arguments {
			sb.WriteString("(")
			sb.WriteString(arg.Name.String())
			sb.WriteString(":")
			sb.WriteString(arg.Value.String())
			sb.WriteString(")")
		}
		writeDirectives(sb, s.Directives)
		if len(s.SelectionSet) > 0 {
			writeSelections(sb, s.SelectionSet)
		}
	case *ast.InlineFragment:
		sb.WriteString("...on ")
		if s.TypeCondition != nil {
			sb.WriteString(s.TypeCondition.Name.String())
		}
		writeDirectives(sb, s.Directives)
		writeSelections(sb, s.SelectionSet)
	case *ast.FragmentSpread:
		sb.WriteString("...")
		sb.WriteString(s.Name.String())
	}
}

func writeDirectives(sb *strings.Builder, directives []*ast.Directive) {
	for _, d := range directives {
		sb.WriteString("@")
		sb.WriteString(d.Name)
		for _, arg := range d.Arguments {
			sb.WriteString("(")
			sb.WriteString(arg.Name.String())
			sb.WriteString(":")
			sb.WriteString(arg.Value.String())
			sb.WriteString(")")
		}
	}
}
