package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
)

const (
	openapiPath = "/api-docs/openapi.json"
	docPath     = "/doc"

	apiVersion = "0.3.0"
)

// openapiDoc is the subset of OpenAPI 3.0 the gateway publishes.
type openapiDoc struct {
	OpenAPI string                          `json:"openapi"`
	Info    infoSpec                        `json:"info"`
	Paths   map[string]map[string]operation `json:"paths"`
}

type infoSpec struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

type operation struct {
	OperationID string      `json:"operationId"`
	Summary     string      `json:"summary"`
	Parameters  []parameter `json:"parameters,omitempty"`
	Responses   map[string]struct {
		Description string `json:"description"`
	} `json:"responses"`
}

type parameter struct {
	Name     string `json:"name"`
	In       string `json:"in"`
	Required bool   `json:"required,omitempty"`
	Schema   struct {
		Type string `json:"type"`
	} `json:"schema"`
}

var (
	openapiOnce sync.Once
	openapiJSON []byte
)

// buildOpenAPI derives the API document from the route table, so documentation and routing share one source.
func buildOpenAPI() []byte {
	doc := openapiDoc{
		OpenAPI: "3.0.3",
		Info: infoSpec{
			Title:       "Kore gateway",
			Description: "HTTP access to a Kore ledger node",
			Version:     apiVersion,
		},
		Paths: map[string]map[string]operation{},
	}

	for _, rt := range routeTable() {
		op := operation{
			OperationID: rt.name,
			Summary:     rt.summary,
			Parameters:  pathParameters(rt.path),
			Responses: map[string]struct {
				Description string `json:"description"`
			}{
				"200": {Description: "successful operation"},
			},
		}

		if doc.Paths[rt.path] == nil {
			doc.Paths[rt.path] = map[string]operation{}
		}
		doc.Paths[rt.path][strings.ToLower(rt.method)] = op
	}

	out, _ := json.Marshal(doc)

	return out
}

// pathParameters extracts the {segment} placeholders of a route path.
func pathParameters(path string) []parameter {
	var params []parameter

	for _, seg := range strings.Split(path, "/") {
		if !strings.HasPrefix(seg, "{") || !strings.HasSuffix(seg, "}") {
			continue
		}

		p := parameter{
			Name:     strings.Trim(seg, "{}"),
			In:       "path",
			Required: true,
		}
		p.Schema.Type = "string"
		params = append(params, p)
	}

	return params
}

// docHTML embeds a RapiDoc viewer pointed at the published document.
const docHTML = `<!doctype html>
<html>
<head>
  <meta charset="utf-8">
  <script type="module" src="https://unpkg.com/rapidoc/dist/rapidoc-min.js"></script>
</head>
<body>
  <rapi-doc spec-url="` + openapiPath + `"></rapi-doc>
</body>
</html>
`

// openapiHandler serves the derived OpenAPI document.
func (g *Gateway) openapiHandler(rw http.ResponseWriter, r *http.Request) {
	openapiOnce.Do(func() { openapiJSON = buildOpenAPI() })

	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write(openapiJSON)
}

// docHandler serves the interactive documentation page.
func (g *Gateway) docHandler(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/html;charset=utf8")
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte(docHTML))
}
