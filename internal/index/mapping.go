package index

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/porter"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
)

// apiTextAnalyzer stems free text the same way the in-database FTS
// tokenizer does: unicode tokens, lowercased, Porter-stemmed.
const apiTextAnalyzer = "api_text"

// DefaultFieldWeights are the multiplicative boosts applied to per-field
// scores when the query engine compiles a free-text query.
var DefaultFieldWeights = map[string]float64{
	FieldEndpointPath:          1.8,
	FieldResourceName:          1.4,
	FieldSummary:               1.5,
	FieldDescription:           1.2,
	FieldParameterNames:        0.9,
	FieldParameterDescriptions: 0.8,
	FieldKeywords:              0.8,
	FieldTags:                  0.7,
	FieldOperationID:           0.6,
	FieldSearchableText:        1.0,
}

// buildMapping constructs the endpoint document mapping with the three
// analyzer tiers: porter text, simple identifiers, exact-match keywords.
func buildMapping() (mapping.IndexMapping, error) {
	im := bleve.NewIndexMapping()
	if err := im.AddCustomAnalyzer(apiTextAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name, porter.Name},
	}); err != nil {
		return nil, err
	}

	text := bleve.NewTextFieldMapping()
	text.Analyzer = apiTextAnalyzer

	identifier := bleve.NewTextFieldMapping()
	identifier.Analyzer = simple.Name

	filter := bleve.NewTextFieldMapping()
	filter.Analyzer = keyword.Name

	flag := bleve.NewBooleanFieldMapping()
	number := bleve.NewNumericFieldMapping()

	doc := bleve.NewDocumentMapping()

	// Free-text fields.
	for _, field := range []string{
		FieldSummary, FieldDescription, FieldParameterDescriptions,
		FieldSearchableText,
	} {
		doc.AddFieldMappingsAt(field, text)
	}

	// Identifier fields: split on non-letters, lowercase, no stemming.
	for _, field := range []string{
		FieldEndpointPath, FieldPathSegments, FieldResourceName,
		FieldOperationID, FieldParameterNames, FieldKeywords, FieldTags,
	} {
		doc.AddFieldMappingsAt(field, identifier)
	}

	// Filter-only fields: exact match.
	for _, field := range []string{
		FieldMethod, FieldOperationType, FieldParameterTypes,
		FieldRequiredParameters, FieldOptionalParameters, FieldStatusCodes,
		FieldContentTypes, FieldSecuritySchemes, FieldSecurityScopes,
	} {
		doc.AddFieldMappingsAt(field, filter)
	}

	doc.AddFieldMappingsAt(FieldDeprecated, flag)
	doc.AddFieldMappingsAt(FieldHasRequestBody, flag)
	doc.AddFieldMappingsAt(FieldHasExamples, flag)
	doc.AddFieldMappingsAt("parameter_count", number)
	doc.AddFieldMappingsAt("response_count", number)

	im.AddDocumentMapping("endpoint", doc)
	im.DefaultAnalyzer = apiTextAnalyzer
	return im, nil
}
