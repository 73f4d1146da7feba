package parser_test

import (
	"testing"

	"github.com/graphql-hive/federation-router/internal/parser"
)

func validationMessages(t *testing.T, query string, rules []parser.Rule) []string {
	t.Helper()
	doc, err := parser.Parse(query, parser.Limits{})
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	errs := parser.Validate(doc, rules)
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Message
	}
	return msgs
}

func TestValidateRulesTableDriven(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		rules     []parser.Rule
		wantCount int
	}{
		{
			name:      "lone anonymous operation violated",
			query:     `{ a } query Named { b }`,
			rules:     []parser.Rule{parser.DefaultRules[0]},
			wantCount: 1,
		},
		{
			name:      "single anonymous operation ok",
			query:     `{ a }`,
			rules:     []parser.Rule{parser.DefaultRules[0]},
			wantCount: 0,
		},
		{
			name:      "duplicate operation names",
			query:     `query Foo { a } query Foo { b }`,
			rules:     []parser.Rule{parser.DefaultRules[1]},
			wantCount: 1,
		},
		{
			name:      "unknown fragment spread",
			query:     `{ a ...Missing }`,
			rules:     []parser.Rule{parser.DefaultRules[2]},
			wantCount: 1,
		},
		{
			name:      "known fragment spread ok",
			query:     `{ a ...Known } fragment Known on Query { b }`,
			rules:     []parser.Rule{parser.DefaultRules[2]},
			wantCount: 0,
		},
		{
			name:      "fragment cycle",
			query:     `{ ...A } fragment A on Query { ...B } fragment B on Query { ...A }`,
			rules:     []parser.Rule{parser.DefaultRules[3]},
			wantCount: 2,
		},
		{
			name:      "unused fragment",
			query:     `{ a } fragment Unused on Query { b }`,
			rules:     []parser.Rule{parser.DefaultRules[4]},
			wantCount: 1,
		},
		{
			name:      "unused variable",
			query:     `query($x: Int) { a }`,
			rules:     []parser.Rule{parser.DefaultRules[5]},
			wantCount: 1,
		},
		{
			name:      "used variable ok",
			query:     `query($x: Int) { a(x: $x) }`,
			rules:     []parser.Rule{parser.DefaultRules[5]},
			wantCount: 0,
		},
		{
			name:      "duplicate fragment names",
			query:     `{ a } fragment F on Query { a } fragment F on Query { b }`,
			rules:     []parser.Rule{parser.DefaultRules[6]},
			wantCount: 1,
		},
		{
			name:      "duplicate argument names",
			query:     `{ a(x: 1, x: 2) }`,
			rules:     []parser.Rule{parser.DefaultRules[7]},
			wantCount: 1,
		},
		{
			name:      "duplicate directive at location",
			query:     `{ a @skip(if: true) @skip(if: false) }`,
			rules:     []parser.Rule{parser.DefaultRules[8]},
			wantCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := validationMessages(t, tt.query, tt.rules)
			if len(msgs) != tt.wantCount {
				t.Fatalf("expected %d validation errors, got %d: %v", tt.wantCount, len(msgs), msgs)
			}
		})
	}
}

func TestValidateRunsAllRulesAndAccumulates(t *testing.T) {
	query := `{ a(x: 1, x: 2) } query Foo { b } query Foo { c }`
	doc, err := parser.Parse(query, parser.Limits{})
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	errs := parser.Validate(doc, parser.DefaultRules)
	if len(errs) == 0 {
		t.Fatal("expected at least one validation error across the default rule set")
	}
}

func TestValidateCachedIsPureAndMemoized(t *testing.T) {
	c := parser.NewValidateCache(8)
	query := `{ a }`
	doc, err := parser.Parse(query, parser.Limits{})
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	first := c.ValidateCached(query, doc, parser.DefaultRules)
	second := c.ValidateCached(query, doc, parser.DefaultRules)
	if len(first) != 0 || len(second) != 0 {
		t.Fatalf("expected no validation errors, got %v / %v", first, second)
	}

	c.Purge()
	third := c.ValidateCached(query, doc, parser.DefaultRules)
	if len(third) != 0 {
		t.Fatalf("expected no validation errors after purge, got %v", third)
	}
}
