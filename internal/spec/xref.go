package spec

import (
	"fmt"
	"sort"

	"openapi-mcp-server/internal/apierr"
)

// resolveCrossReferences computes per-schema and per-endpoint dependency
// sets, records schema cycles, and sets reference counts. A dependency
// naming a schema missing from the component map is a consistency error.
func resolveCrossReferences(api *NormalizedAPI, report *Report, opts Options) error {
	for _, schema := range sortedSchemas(api) {
		schema.Dependencies = collectRefs(&SchemaNode{Inline: schema})
	}

	detectCycles(api)

	for _, endpoint := range api.Endpoints {
		if err := resolveEndpoint(endpoint, api, report, opts); err != nil {
			return err
		}
	}

	// A schema's reference count is the number of distinct entities
	// (endpoints and schemas) that name it.
	for _, schema := range api.Schemas {
		schema.ReferenceCount = 0
	}
	for _, endpoint := range api.Endpoints {
		for _, dep := range endpoint.SchemaDependencies {
			if target, ok := api.Schemas[dep]; ok {
				target.ReferenceCount++
			}
		}
		for _, req := range endpoint.Security {
			for name := range req {
				if scheme, ok := api.SecuritySchemes[name]; ok {
					scheme.ReferenceCount++
				}
			}
		}
	}
	for _, schema := range api.Schemas {
		for _, dep := range schema.Dependencies {
			if target, ok := api.Schemas[dep]; ok {
				target.ReferenceCount++
			}
		}
	}

	return nil
}

func sortedSchemas(api *NormalizedAPI) []*Schema {
	names := make([]string, 0, len(api.Schemas))
	for name := range api.Schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Schema, 0, len(names))
	for _, name := range names {
		out = append(out, api.Schemas[name])
	}
	return out
}

// resolveEndpoint computes the endpoint's dependency edges and sets. The
// schema dependency set is one hop of $ref resolution from parameters,
// request body, and responses.
func resolveEndpoint(endpoint *Endpoint, api *NormalizedAPI, report *Report, opts Options) error {
	seen := make(map[string]bool)
	var edges []DependencyEdge

	addEdges := func(refs []string, role string) {
		for _, ref := range refs {
			edges = append(edges, DependencyEdge{
				EndpointID: endpoint.ID,
				SchemaName: ref,
				Role:       role,
			})
			seen[ref] = true
		}
	}

	for _, param := range endpoint.Parameters {
		addEdges(collectRefs(param.Schema), RoleParameter)
	}
	if endpoint.RequestBody != nil {
		for _, media := range endpoint.RequestBody.Content {
			addEdges(collectRefs(media.Schema), RoleRequestBody)
		}
	}
	for _, node := range endpoint.CallbackSchemas {
		addEdges(collectRefs(node), RoleCallback)
	}

	codes := make([]string, 0, len(endpoint.Responses))
	for code := range endpoint.Responses {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		for _, media := range endpoint.Responses[code].Content {
			addEdges(collectRefs(media.Schema), "response:"+code)
		}
	}
	deps := make([]string, 0, len(seen))
	for name := range seen {
		if _, ok := api.Schemas[name]; !ok {
			msg := fmt.Sprintf("%s depends on schema %q which is not defined", endpoint.ID, name)
			if opts.Strict {
				return apierr.NewUnresolvableReference("#/components/schemas/" + name)
			}
			report.addError(msg)
			continue
		}
		deps = append(deps, name)
	}
	sort.Strings(deps)
	endpoint.SchemaDependencies = deps

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].SchemaName != edges[j].SchemaName {
			return edges[i].SchemaName < edges[j].SchemaName
		}
		return edges[i].Role < edges[j].Role
	})
	endpoint.DependencyEdges = dedupeEdges(edges)

	securityUsed := make(map[string]bool)
	for _, req := range endpoint.Security {
		for name := range req {
			if _, ok := api.SecuritySchemes[name]; !ok {
				msg := fmt.Sprintf("%s requires security scheme %q which is not defined", endpoint.ID, name)
				if opts.Strict {
					return apierr.NewUnresolvableReference("#/components/securitySchemes/" + name)
				}
				report.addError(msg)
				continue
			}
			securityUsed[name] = true
		}
	}
	endpoint.SecurityUsed = sortedKeys(securityUsed)

	return nil
}

func dedupeEdges(edges []DependencyEdge) []DependencyEdge {
	if len(edges) == 0 {
		return nil
	}
	out := edges[:1]
	for _, e := range edges[1:] {
		last := out[len(out)-1]
		if e != last {
			out = append(out, e)
		}
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// collectRefs returns the sorted set of schema names directly referenced
// from the node's tree. Reference handles are not descended, so the walk
// terminates on any graph.
func collectRefs(node *SchemaNode) []string {
	set := make(map[string]bool)
	var walk func(n *SchemaNode)
	walk = func(n *SchemaNode) {
		if n == nil {
			return
		}
		if n.Ref != "" {
			set[n.Ref] = true
			return
		}
		s := n.Inline
		if s == nil {
			return
		}
		for _, prop := range s.Properties {
			walk(prop)
		}
		walk(s.Items)
		for _, sub := range s.AllOf {
			walk(sub)
		}
		for _, sub := range s.OneOf {
			walk(sub)
		}
		for _, sub := range s.AnyOf {
			walk(sub)
		}
		walk(s.Not)
	}
	walk(node)
	return sortedKeys(set)
}

// detectCycles walks the schema name graph depth-first, keeping the stack
// as a set. When a dependency points back to an ancestor, the cycle edge is
// recorded on the schema holding the back-reference and that branch is not
// descended further.
func detectCycles(api *NormalizedAPI) {
	visited := make(map[string]bool)

	var dfs func(name string, stack map[string]bool)
	dfs = func(name string, stack map[string]bool) {
		schema, ok := api.Schemas[name]
		if !ok {
			return
		}
		stack[name] = true
		for _, dep := range schema.Dependencies {
			if stack[dep] {
				schema.Cycles = appendUnique(schema.Cycles, dep)
				continue
			}
			if !visited[dep] {
				dfs(dep, stack)
			}
		}
		delete(stack, name)
		visited[name] = true
	}

	for _, schema := range sortedSchemas(api) {
		if !visited[schema.Name] {
			dfs(schema.Name, make(map[string]bool))
		}
	}
	for _, schema := range api.Schemas {
		sort.Strings(schema.Cycles)
	}
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
