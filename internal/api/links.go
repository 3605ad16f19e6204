package api

import (
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/sessions>; rel="sessions"`,
		`</api/v1/settings>; rel="settings"`,
		`</api/v1/history>; rel="history"`,
	},
	"/api/v1/info": {
		`</health>; rel="health"`,
		`</api/v1/sessions>; rel="sessions"`,
	},
	"/api/v1/sessions": {
		`</api/v1/settings>; rel="settings"`,
		`</api/v1/history>; rel="history"`,
	},
	"/api/v1/sessions/{id}": {
		`</api/v1/sessions>; rel="collection"`,
	},
	"/api/v1/settings": {
		`</api/v1/sessions>; rel="sessions"`,
	},
	"/api/v1/history": {
		`</api/v1/sessions>; rel="sessions"`,
		`</api/v1/tables>; rel="tables"`,
	},
}

// LinkTransformer returns a Huma Transformer that injects RFC 8288 Link headers.
func LinkTransformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range links[op.Path] {
			ctx.AppendHeader("Link", link)
		}

		// Session sub-resources point back at their session.
		if strings.HasPrefix(op.Path, "/api/v1/sessions/{id}/") {
			id := strings.Split(strings.TrimPrefix(ctx.URL().Path, "/api/v1/sessions/"), "/")[0]
			ctx.AppendHeader("Link", fmt.Sprintf(`</api/v1/sessions/%s>; rel="up"`, id))
		}
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		return v, nil
	}
}
