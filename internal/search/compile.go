package search

import (
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"openapi-mcp-server/internal/index"
)

// contentFields are the weighted fields a free-text term fans out across.
var contentFields = []string{
	index.FieldEndpointPath,
	index.FieldResourceName,
	index.FieldSummary,
	index.FieldDescription,
	index.FieldParameterNames,
	index.FieldParameterDescriptions,
	index.FieldKeywords,
	index.FieldTags,
	index.FieldOperationID,
	index.FieldSearchableText,
}

// compiler builds bleve queries with the engine's field weights.
type compiler struct {
	weights map[string]float64
}

// Compile turns the parsed query plus external filters into one executable
// bleve query. withFuzzy adds a fuzzy variant per long term, used by the
// short-result second pass.
func (c *compiler) Compile(parsed *ParsedQuery, terms []Term, filters Filters, withFuzzy bool) query.Query {
	boolean := bleve.NewBooleanQuery()
	hasClause := false

	if parsed.MatchAll {
		boolean.AddMust(bleve.NewMatchAllQuery())
		hasClause = true
	}

	// Free-text terms: each term is a disjunction of its variants across
	// the weighted content fields. AND-joined by default; OR keeps the
	// group disjunctive with a slight preference for more matches.
	var termQueries []query.Query
	for _, term := range terms {
		termQueries = append(termQueries, c.termQuery(term, withFuzzy))
	}
	if len(termQueries) > 0 {
		if parsed.ORGroups {
			dis := bleve.NewDisjunctionQuery(termQueries...)
			dis.SetMin(1)
			boolean.AddMust(dis)
		} else {
			for _, q := range termQueries {
				boolean.AddMust(q)
			}
		}
		hasClause = true
	}

	for _, ft := range parsed.FieldTerms {
		boolean.AddMust(c.fieldQuery(ft))
		hasClause = true
	}

	for _, excluded := range parsed.Excluded {
		boolean.AddMustNot(c.termQuery(Term{Raw: excluded, Stemmed: Stem(excluded)}, false))
	}

	if !hasClause {
		// NOT-only or filter-only queries still need a positive clause.
		boolean.AddMust(bleve.NewMatchAllQuery())
	}

	c.applyFilters(boolean, filters)
	return boolean
}

// termQuery fans one term (plus variants) out across the content fields
// with per-field boosts.
func (c *compiler) termQuery(term Term, withFuzzy bool) query.Query {
	variants := append([]string{term.Raw}, term.Variants...)

	var queries []query.Query
	for _, field := range contentFields {
		boost := c.weights[field]
		if boost == 0 {
			boost = 1.0
		}
		for _, variant := range variants {
			if strings.ContainsAny(variant, "*?") {
				wq := bleve.NewWildcardQuery(strings.ToLower(variant))
				wq.SetField(field)
				wq.SetBoost(boost)
				queries = append(queries, wq)
				continue
			}
			mq := bleve.NewMatchQuery(variant)
			mq.SetField(field)
			mq.SetBoost(boost)
			queries = append(queries, mq)

			if withFuzzy && len(variant) > 3 {
				fq := bleve.NewFuzzyQuery(variant)
				fq.SetField(field)
				fq.SetFuzziness(2)
				fq.SetBoost(boost * 0.5)
				queries = append(queries, fq)
			}
		}
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// fieldQuery binds one user qualifier to its index field.
func (c *compiler) fieldQuery(ft FieldTerm) query.Query {
	value := ft.Value
	switch ft.Field {
	case "path":
		return c.scoped(index.FieldEndpointPath, value, c.weights[index.FieldEndpointPath])
	case "method":
		return exactTerm(index.FieldMethod, strings.ToUpper(value))
	case "auth":
		wq := bleve.NewWildcardQuery("*" + strings.ToLower(value) + "*")
		wq.SetField(index.FieldSecuritySchemes)
		return wq
	case "param":
		return c.scoped(index.FieldParameterNames, value, c.weights[index.FieldParameterNames])
	case "response", "status":
		return exactTerm(index.FieldStatusCodes, value)
	case "tag":
		return c.scoped(index.FieldTags, value, c.weights[index.FieldTags])
	case "type":
		return exactTerm(index.FieldOperationType, strings.ToLower(value))
	case "format":
		wq := bleve.NewWildcardQuery("*" + strings.ToLower(value) + "*")
		wq.SetField(index.FieldContentTypes)
		return wq
	default:
		return c.scoped(index.FieldSearchableText, value, 1.0)
	}
}

func (c *compiler) scoped(field, value string, boost float64) query.Query {
	if boost == 0 {
		boost = 1.0
	}
	if strings.ContainsAny(value, "*?") {
		wq := bleve.NewWildcardQuery(strings.ToLower(value))
		wq.SetField(field)
		wq.SetBoost(boost)
		return wq
	}
	mq := bleve.NewMatchQuery(value)
	mq.SetField(field)
	mq.SetBoost(boost)
	return mq
}

func exactTerm(field, value string) query.Query {
	tq := bleve.NewTermQuery(value)
	tq.SetField(field)
	return tq
}

// applyFilters adds the caller-supplied structured filters as conjuncts.
func (c *compiler) applyFilters(boolean *query.BooleanQuery, f Filters) {
	if len(f.Methods) > 0 {
		var methods []query.Query
		for _, m := range f.Methods {
			methods = append(methods, exactTerm(index.FieldMethod, strings.ToUpper(m)))
		}
		boolean.AddMust(bleve.NewDisjunctionQuery(methods...))
	}

	if f.RequireAuth != nil {
		present := bleve.NewWildcardQuery("*")
		present.SetField(index.FieldSecuritySchemes)
		if *f.RequireAuth {
			boolean.AddMust(present)
		} else {
			boolean.AddMustNot(present)
		}
	}
	if len(f.AuthSchemes) > 0 {
		var schemes []query.Query
		for _, scheme := range f.AuthSchemes {
			schemes = append(schemes, exactTerm(index.FieldSecuritySchemes, scheme))
		}
		boolean.AddMust(bleve.NewDisjunctionQuery(schemes...))
	}

	for _, name := range f.ParameterNames {
		field := index.FieldParameterNames
		if f.RequiredParamsOnly {
			field = index.FieldRequiredParameters
		}
		boolean.AddMust(exactTerm(field, name))
	}

	if f.MaxParameters != nil {
		maxParams := float64(*f.MaxParameters)
		inclusive := true
		nq := bleve.NewNumericRangeInclusiveQuery(nil, &maxParams, nil, &inclusive)
		nq.SetField("parameter_count")
		boolean.AddMust(nq)
	}

	if f.HasFileUpload != nil {
		upload := bleve.NewWildcardQuery("multipart*")
		upload.SetField(index.FieldContentTypes)
		if *f.HasFileUpload {
			boolean.AddMust(upload)
		} else {
			boolean.AddMustNot(upload)
		}
	}

	if len(f.ResponseContentTypes) > 0 {
		var cts []query.Query
		for _, ct := range f.ResponseContentTypes {
			cts = append(cts, exactTerm(index.FieldContentTypes, ct))
		}
		boolean.AddMust(bleve.NewDisjunctionQuery(cts...))
	}

	for _, tag := range f.Tags {
		boolean.AddMust(c.scoped(index.FieldTags, tag, 1.0))
	}

	if !f.IncludeDeprecated {
		deprecated := bleve.NewBoolFieldQuery(true)
		deprecated.SetField(index.FieldDeprecated)
		boolean.AddMustNot(deprecated)
	}
}
