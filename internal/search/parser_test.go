package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFreeText(t *testing.T) {
	parsed := Parse("list users")
	assert.Equal(t, []string{"list", "users"}, parsed.FreeTerms)
	assert.Empty(t, parsed.FieldTerms)
	assert.Equal(t, QuerySimple, parsed.Type)
}

func TestParseFieldQualifiers(t *testing.T) {
	parsed := Parse("method:GET path:/users user")
	assert.Equal(t, []FieldTerm{
		{Field: "method", Value: "GET"},
		{Field: "path", Value: "/users"},
	}, parsed.FieldTerms)
	assert.Equal(t, []string{"user"}, parsed.FreeTerms)
	assert.Equal(t, QueryField, parsed.Type)
}

func TestParseBooleanOperators(t *testing.T) {
	parsed := Parse("user AND order NOT invoice")
	assert.Equal(t, []string{"user", "order"}, parsed.FreeTerms)
	assert.Equal(t, []string{"invoice"}, parsed.Excluded)
	assert.False(t, parsed.ORGroups)
	assert.Equal(t, QueryBoolean, parsed.Type)

	parsed = Parse("user OR customer")
	assert.True(t, parsed.ORGroups)
}

func TestParseLowercaseOperatorsAreText(t *testing.T) {
	parsed := Parse("user and order")
	assert.Equal(t, []string{"user", "and", "order"}, parsed.FreeTerms)
	assert.Empty(t, parsed.Excluded)
}

func TestParseUnknownQualifierDowngrades(t *testing.T) {
	parsed := Parse("bogus:value")
	assert.Empty(t, parsed.FieldTerms)
	assert.Equal(t, []string{"value"}, parsed.FreeTerms)
	assert.NotEmpty(t, parsed.Warnings)
}

func TestParseMatchAll(t *testing.T) {
	parsed := Parse("*")
	assert.True(t, parsed.MatchAll)
	assert.Equal(t, QueryMatchAll, parsed.Type)
}

func TestParseDanglingNot(t *testing.T) {
	parsed := Parse("user NOT")
	assert.Equal(t, []string{"user"}, parsed.FreeTerms)
	assert.Empty(t, parsed.Excluded)
	assert.NotEmpty(t, parsed.Warnings)
}

func TestParseWildcard(t *testing.T) {
	parsed := Parse("user*")
	assert.True(t, parsed.HasWildcard)
	assert.True(t, parsed.HasOperators())
}

func TestNormalizeTermsDropsStopWords(t *testing.T) {
	terms := NormalizeTerms([]string{"the", "Users", "of", "orders"})
	assert.Len(t, terms, 2)
	assert.Equal(t, "users", terms[0].Raw)
	assert.Equal(t, "orders", terms[1].Raw)
}

func TestOnlyStopWords(t *testing.T) {
	assert.True(t, OnlyStopWords([]string{"the", "of", "a"}))
	assert.False(t, OnlyStopWords([]string{"the", "users"}))
	assert.False(t, OnlyStopWords(nil))
}

func TestExpandBounded(t *testing.T) {
	terms := Expand(NormalizeTerms([]string{"user"}))
	assert.LessOrEqual(t, len(terms[0].Variants), maxVariantsPerTerm)
	assert.Contains(t, terms[0].Variants, "customer")
}

func TestPluralPair(t *testing.T) {
	assert.Equal(t, "user", pluralPair("users"))
	assert.Equal(t, "users", pluralPair("user"))
	assert.Equal(t, "category", pluralPair("categories"))
	assert.Equal(t, "companies", pluralPair("company"))
}
