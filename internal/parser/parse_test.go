package parser_test

import (
	"strings"
	"sync/atomic"
	"testing"

	"github.com/graphql-hive/federation-router/internal/parser"
)

func TestParseValidDocument(t *testing.T) {
	doc, err := parser.Parse(`query Widgets { widgets { id name } }`, parser.Limits{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc == nil || len(doc.Definitions) != 1 {
		t.Fatalf("expected one definition, got %+v", doc)
	}
}

func TestParseRejectsOverTokenLimit(t *testing.T) {
	query := "query { " + strings.Repeat("field ", 50) + "}"
	_, err := parser.Parse(query, parser.Limits{MaxTokens: 5})
	if err == nil {
		t.Fatal("expected a token-limit error")
	}
	perr, ok := err.(*parser.ParseError)
	if !ok {
		t.Fatalf("expected a *parser.ParseError, got %T", err)
	}
	if perr.Limit == nil || *perr.Limit != 5 {
		t.Fatalf("expected Limit to report 5, got %v", perr.Limit)
	}
}

func TestParseAllowsUnderTokenLimit(t *testing.T) {
	_, err := parser.Parse(`{ id }`, parser.Limits{MaxTokens: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseSyntaxErrorReturnsParseError(t *testing.T) {
	_, err := parser.Parse(`query { widgets { `, parser.Limits{})
	if err == nil {
		t.Fatal("expected a syntax error")
	}
	if _, ok := err.(*parser.ParseError); !ok {
		t.Fatalf("expected a *parser.ParseError, got %T", err)
	}
}

// TestParseCachedIsPureRegardlessOfHitOrMiss is testable property 4's
// analogue for parsing: the same query text always yields a structurally
// identical AST, whether served from cache or freshly parsed.
func TestParseCachedIsPureRegardlessOfHitOrMiss(t *testing.T) {
	c := parser.NewCache(8)
	query := `query Widgets { widgets { id name } }`

	first, err := c.ParseCached(query, parser.Limits{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := c.ParseCached(query, parser.Limits{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("expected the cached AST pointer to be reused on a hit")
	}
}

func TestParseCachedCollapsesConcurrentMisses(t *testing.T) {
	c := parser.NewCache(8)
	query := `query Widgets { widgets { id name } }`

	const n = 20
	errCh := make(chan error, n)
	var ok int32
	for i := 0; i < n; i++ {
		go func() {
			doc, err := c.ParseCached(query, parser.Limits{})
			if err == nil && doc != nil {
				atomic.AddInt32(&ok, 1)
			}
			errCh <- err
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-errCh; err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if int(ok) != n {
		t.Fatalf("expected all %d callers to get a parsed document, got %d", n, ok)
	}
}

func TestParseCachePurgeForcesReparse(t *testing.T) {
	c := parser.NewCache(8)
	query := `{ id }`

	first, err := c.ParseCached(query, parser.Limits{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.Purge()
	second, err := c.ParseCached(query, parser.Limits{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first == second {
		t.Fatalf("expected purge to force a fresh parse, producing a new AST pointer")
	}
}
