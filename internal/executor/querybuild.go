package executor

import (
	"fmt"
	"strings"

	"github.com/n9te9/graphql-parser/ast"

	"github.com/graphql-hive/federation-router/internal/planner"
)

// BuildRootOperation renders a FetchNode with no Requires into operation
// text: a top-level query or mutation over its Selections, with variable
// definitions collected from the selection set and typed from argDefs.
//
// Grounded on query_builder_v2.go's buildRootQuery/collectVariables.
func BuildRootOperation(node *planner.FetchNode, argDefs map[string]string) (string, error) {
	var sb strings.Builder

	varNames := collectVariables(node.Selections)

	operationKind := node.OperationKind
	if operationKind == "" {
		operationKind = "query"
	}

	sb.WriteString(operationKind)
	if len(varNames) > 0 {
		sb.WriteString("(")
		for i, name := range varNames {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("$")
			sb.WriteString(name)
			sb.WriteString(": ")
			sb.WriteString(variableType(name, argDefs))
		}
		sb.WriteString(")")
	}
	sb.WriteString(" {\n")
	for _, sel := range node.Selections {
		if err := writeSelection(&sb, sel, "\t"); err != nil {
			return "", err
		}
	}
	sb.WriteString("}")
	return sb.String(), nil
}

// BuildEntityOperation renders a FetchNode with Requires set into an
// `_entities(representations: $representations)` operation, one inline
// fragment on EntityTypeName wrapping Selections.
//
// Grounded on query_builder_v2.go's buildEntityQuery.
func BuildEntityOperation(node *planner.FetchNode) (string, error) {
	var sb strings.Builder
	sb.WriteString("query($representations: [_Any!]!) {\n")
	sb.WriteString("\t_entities(representations: $representations) {\n")
	sb.WriteString("\t\t... on ")
	sb.WriteString(node.EntityTypeName)
	sb.WriteString(" {\n")
	for _, sel := range node.Selections {
		if err := writeSelection(&sb, sel, "\t\t\t"); err != nil {
			return "", err
		}
	}
	sb.WriteString("\t\t}\n\t}\n}")
	return sb.String(), nil
}

func variableType(name string, argDefs map[string]string) string {
	if t, ok := argDefs[name]; ok {
		return t
	}
	return "String"
}

func collectVariables(selections []ast.Selection) []string {
	seen := make(map[string]bool)
	var order []string
	var walk func([]ast.Selection)
	walk = func(sels []ast.Selection) {
		for _, sel := range sels {
			switch s := sel.(type) {
			case *ast.Field:
				for _, arg := range s.Arguments {
					collectVariablesFromValue(arg.Value, seen, &order)
				}
				if len(s.SelectionSet) > 0 {
					walk(s.SelectionSet)
				}
			case *ast.InlineFragment:
				walk(s.SelectionSet)
			}
		}
	}
	walk(selections)
	return order
}

func collectVariablesFromValue(val ast.Value, seen map[string]bool, order *[]string) {
	switch v := val.(type) {
	case *ast.Variable:
		if !seen[v.Name] {
			seen[v.Name] = true
			*order = append(*order, v.Name)
		}
	case *ast.ListValue:
		for _, item := range v.Values {
			collectVariablesFromValue(item, seen, order)
		}
	case *ast.ObjectValue:
		for _, field := range v.Fields {
			collectVariablesFromValue(field.Value, seen, order)
		}
	}
}

func writeSelection(sb *strings.Builder, sel ast.Selection, indent string) error {
	switch s := sel.(type) {
	case *ast.Field:
		sb.WriteString(indent)
		if s.Alias != nil && s.Alias.String() != "" {
			sb.WriteString(s.Alias.String())
			sb.WriteString(": ")
		}
		sb.WriteString(s.Name.String())
		if len(s.Arguments) > 0 {
			sb.WriteString("(")
			for i, arg := range s.Arguments {
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(arg.Name.String())
				sb.WriteString(": ")
				writeValue(sb, arg.Value)
			}
			sb.WriteString(")")
		}
		if len(s.SelectionSet) > 0 {
			sb.WriteString(" {\n")
			for _, subSel := range s.SelectionSet {
				if err := writeSelection(sb, subSel, indent+"\t"); err != nil {
					return err
				}
			}
			sb.WriteString(indent)
			sb.WriteString("}")
		}
		sb.WriteString("\n")

	case *ast.InlineFragment:
		sb.WriteString(indent)
		sb.WriteString("... on ")
		sb.WriteString(s.TypeCondition.Name.String())
		sb.WriteString(" {\n")
		for _, subSel := range s.SelectionSet {
			if err := writeSelection(sb, subSel, indent+"\t"); err != nil {
				return err
			}
		}
		sb.WriteString(indent)
		sb.WriteString("}\n")

	case *ast.FragmentSpread:
		sb.WriteString(indent)
		sb.WriteString("...")
		sb.WriteString(s.Name.String())
		sb.WriteString("\n")

	default:
		return fmt.Errorf("executor: unsupported selection type %T", sel)
	}
	return nil
}

func writeValue(sb *strings.Builder, val ast.Value) {
	switch v := val.(type) {
	case *ast.StringValue:
		sb.WriteString("\"")
		sb.WriteString(v.Value)
		sb.WriteString("\"")
	case *ast.IntValue:
		fmt.Fprintf(sb, "%d", v.Value)
	case *ast.FloatValue:
		fmt.Fprintf(sb, "%f", v.Value)
	case *ast.BooleanValue:
		fmt.Fprintf(sb, "%t", v.Value)
	case *ast.Variable:
		sb.WriteString("$")
		sb.WriteString(v.Name)
	case *ast.NullValue:
		sb.WriteString("null")
	case *ast.ListValue:
		sb.WriteString("[")
		for i, item := range v.Values {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeValue(sb, item)
		}
		sb.WriteString("]")
	case *ast.ObjectValue:
		sb.WriteString("{")
		for i, field := range v.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(field.Name.String())
			sb.WriteString(": ")
			writeValue(sb, field.Value)
		}
		sb.WriteString("}")
	case *ast.EnumValue:
		sb.WriteString(v.Value)
	default:
		sb.WriteString("null")
	}
}
