package normalizer

import (
	"github.com/n9te9/graphql-parser/ast"

	"github.com/graphql-hive/federation-router/internal/cache"
	"github.com/graphql-hive/federation-router/internal/fingerprint"
)

// Cache memoizes InlineOperation by (query_text, operation_name): the
// same key space as the parse cache extended with operationName, since
// fragment inlining and operation selection are otherwise pure functions
// of the parsed document and the requested operation name alone.
//
// Grounded on parser.Cache/ValidateCache's identical shard-and-purge
// shape (internal/parser/parse.go, internal/parser/validate.go).
type Cache struct {
	inlined *cache.Sharded[*ast.OperationDefinition]
}

// NewCache builds a normalize cache with capacityPerShard entries per shard.
func NewCache(capacityPerShard int) *Cache {
	return &Cache{inlined: cache.New[*ast.OperationDefinition](capacityPerShard)}
}

// NormalizeCached runs Normalize, reusing a prior inlined operation for
// the same (queryText, operationName) pair and always coercing variables
// fresh against the current request's rawVariables.
func (c *Cache) NormalizeCached(queryText string, doc *ast.Document, operationName string, rawVariables map[string]any) (*NormalizedOperation, error) {
	key := fingerprint.OfQuery(queryText + "\x00" + operationName)
	inlined, err := c.inlined.GetOrLoad(key, func() (*ast.OperationDefinition, error) {
		return InlineOperation(doc, operationName)
	})
	if err != nil {
		return nil, err
	}
	coerced := coerceVariables(inlined.VariableDefinitions, rawVariables)
	return &NormalizedOperation{Operation: inlined, Variables: coerced}, nil
}

// Purge evicts every cached inlined operation, called on schema reload.
func (c *Cache) Purge() { c.inlined.Purge() }
