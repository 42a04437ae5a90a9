package spec

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"openapi-mcp-server/internal/apierr"
)

// ParsedDocument is the dialect-gated, reference-checked input to Normalize.
// The 2.0 dialect is converted to the 3.x shape up front so the normalizer
// walks a single representation.
type ParsedDocument struct {
	Doc        *openapi3.T
	Dialect    string
	Raw        map[string]interface{}
	Hash       string
	SourcePath string
	FileSize   int64
}

// LoadDocument reads and parses a specification file. maxBytes bounds the
// input size; zero means the 100 MiB default.
func LoadDocument(path string, maxBytes int64) (*ParsedDocument, error) {
	if maxBytes <= 0 {
		maxBytes = 100 << 20
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, apierr.NewInput(fmt.Sprintf("cannot read specification %s", path), err)
	}
	if info.Size() > maxBytes {
		return nil, apierr.NewInput(
			fmt.Sprintf("specification too large: %d bytes exceeds limit of %d", info.Size(), maxBytes), nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apierr.NewInput(fmt.Sprintf("cannot read specification %s", path), err)
	}

	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	doc.SourcePath = path
	doc.FileSize = info.Size()
	return doc, nil
}

// ParseDocument parses raw bytes: JSON first, YAML on failure. It applies
// the dialect gate and validates that every $ref is local and resolvable
// before handing the tree to kin-openapi.
func ParseDocument(data []byte) (*ParsedDocument, error) {
	raw, err := decodeTree(data)
	if err != nil {
		return nil, err
	}

	dialect, err := detectDialect(raw)
	if err != nil {
		return nil, err
	}

	if err := validateLocalRefs(raw, dialect); err != nil {
		return nil, err
	}

	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, apierr.NewInput("failed to re-encode specification tree", err)
	}

	var doc *openapi3.T
	if dialect == "2.0" {
		var doc2 openapi2.T
		if err := json.Unmarshal(jsonData, &doc2); err != nil {
			return nil, apierr.NewInput("failed to parse Swagger 2.0 document", err)
		}
		doc, err = openapi2conv.ToV3(&doc2)
		if err != nil {
			return nil, apierr.NewInput("failed to convert Swagger 2.0 document to 3.x shape", err)
		}
	} else {
		loader := openapi3.NewLoader()
		loader.IsExternalRefsAllowed = false
		doc, err = loader.LoadFromData(jsonData)
		if err != nil {
			return nil, apierr.NewInput("failed to load OpenAPI document", err)
		}
	}

	sum := sha256.Sum256(jsonData)

	return &ParsedDocument{
		Doc:     doc,
		Dialect: dialect,
		Raw:     raw,
		Hash:    hex.EncodeToString(sum[:]),
	}, nil
}

// decodeTree tries JSON first, then YAML.
func decodeTree(data []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	jsonErr := json.Unmarshal(data, &raw)
	if jsonErr == nil {
		return raw, nil
	}

	var node interface{}
	if yamlErr := yaml.Unmarshal(data, &node); yamlErr != nil {
		return nil, apierr.NewInput(
			fmt.Sprintf("input is neither valid JSON (%v) nor valid YAML (%v)", jsonErr, yamlErr), nil)
	}

	raw, ok := normalizeYAML(node).(map[string]interface{})
	if !ok {
		return nil, apierr.NewInput("specification root must be an object", nil)
	}
	return raw, nil
}

// normalizeYAML rewrites yaml.v3 decoded values into JSON-compatible shapes.
func normalizeYAML(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = normalizeYAML(item)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeYAML(item)
		}
		return out
	default:
		return v
	}
}

// detectDialect inspects the openapi/swagger version field and rejects
// unknown major versions.
func detectDialect(raw map[string]interface{}) (string, error) {
	if v, ok := raw["openapi"].(string); ok {
		switch {
		case strings.HasPrefix(v, "3.0"), strings.HasPrefix(v, "3.1"):
			return v, nil
		default:
			return "", apierr.NewInput(fmt.Sprintf("unsupported OpenAPI version %q", v), nil)
		}
	}
	if v, ok := raw["swagger"].(string); ok {
		if v == "2.0" {
			return "2.0", nil
		}
		return "", apierr.NewInput(fmt.Sprintf("unsupported Swagger version %q", v), nil)
	}
	return "", apierr.NewInput("document has neither an openapi nor a swagger version field", nil)
}

// componentPrefixes lists the local reference roots per dialect.
func componentPrefixes(dialect string) []string {
	if dialect == "2.0" {
		return []string{
			"#/definitions/",
			"#/parameters/",
			"#/responses/",
			"#/securityDefinitions/",
		}
	}
	return []string{
		"#/components/schemas/",
		"#/components/responses/",
		"#/components/parameters/",
		"#/components/securitySchemes/",
		"#/components/requestBodies/",
		"#/components/headers/",
		"#/components/examples/",
		"#/components/callbacks/",
		"#/components/links/",
	}
}

// validateLocalRefs walks the raw tree and checks every $ref against the
// name-to-node maps of the top-level components. Any miss is fatal.
func validateLocalRefs(raw map[string]interface{}, dialect string) error {
	targets := collectComponentNames(raw, dialect)
	prefixes := componentPrefixes(dialect)

	var walk func(v interface{}) error
	walk = func(v interface{}) error {
		switch val := v.(type) {
		case map[string]interface{}:
			if ref, ok := val["$ref"].(string); ok {
				if err := checkRef(ref, prefixes, targets); err != nil {
					return err
				}
			}
			for _, item := range val {
				if err := walk(item); err != nil {
					return err
				}
			}
		case []interface{}:
			for _, item := range val {
				if err := walk(item); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return walk(raw)
}

func checkRef(ref string, prefixes []string, targets map[string]bool) error {
	if !strings.HasPrefix(ref, "#/") {
		// URL and file references are out of scope; within a single
		// document they can never resolve.
		return apierr.NewUnresolvableReference(ref)
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(ref, prefix) {
			name := strings.TrimPrefix(ref, prefix)
			if strings.Contains(name, "/") {
				// Deep pointers into a component resolve iff the
				// component itself exists.
				name = name[:strings.Index(name, "/")]
			}
			if targets[prefix+name] {
				return nil
			}
			return apierr.NewUnresolvableReference(ref)
		}
	}
	return apierr.NewUnresolvableReference(ref)
}

func collectComponentNames(raw map[string]interface{}, dialect string) map[string]bool {
	targets := make(map[string]bool)
	add := func(prefix string, section interface{}) {
		m, ok := section.(map[string]interface{})
		if !ok {
			return
		}
		for name := range m {
			targets[prefix+name] = true
		}
	}

	if dialect == "2.0" {
		add("#/definitions/", raw["definitions"])
		add("#/parameters/", raw["parameters"])
		add("#/responses/", raw["responses"])
		add("#/securityDefinitions/", raw["securityDefinitions"])
		return targets
	}

	components, _ := raw["components"].(map[string]interface{})
	if components == nil {
		return targets
	}
	add("#/components/schemas/", components["schemas"])
	add("#/components/responses/", components["responses"])
	add("#/components/parameters/", components["parameters"])
	add("#/components/securitySchemes/", components["securitySchemes"])
	add("#/components/requestBodies/", components["requestBodies"])
	add("#/components/headers/", components["headers"])
	add("#/components/examples/", components["examples"])
	add("#/components/callbacks/", components["callbacks"])
	add("#/components/links/", components["links"])
	return targets
}
