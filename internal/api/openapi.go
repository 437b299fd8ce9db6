package api

// buildOpenAPIDoc describes the launcher routes as an OpenAPI 3.1 document.
func buildOpenAPIDoc() map[string]any {
	secured := []any{map[string]any{"BearerAuth": []string{}}}
	op := func(id, summary string, responses map[string]string) map[string]any {
		rs := make(map[string]any, len(responses))
		for code, desc := range responses {
			rs[code] = map[string]any{"description": desc}
		}
		return map[string]any{
			"operationId": id,
			"summary":     summary,
			"responses":   rs,
			"security":    secured,
		}
	}

	launch := op("startLaunch", "Launch a profile in the background", map[string]string{
		"202": "Launch accepted",
		"400": "Bad request",
		"404": "Profile not found",
		"409": "Another launch holds the lock",
		"422": "Profile cannot be launched",
	})
	launch["requestBody"] = map[string]any{
		"required": false,
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"profile": map[string]any{"type": "string", "description": "Profile name or index"},
					},
				},
			},
		},
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "bxt-launcher",
			"version": "1.0",
		},
		"paths": map[string]any{
			"/profiles": map[string]any{
				"get": op("listProfiles", "List saved profiles", map[string]string{"200": "Profiles"}),
			},
			"/launch": map[string]any{"post": launch},
			"/launch/{launchID}": map[string]any{
				"get": op("getLaunch", "Live state or history entry of a launch", map[string]string{
					"200": "Launch",
					"404": "Launch not found",
				}),
			},
			"/history": map[string]any{
				"get": op("listHistory", "Recent launches, newest first", map[string]string{
					"200": "History entries",
					"400": "Bad limit",
					"404": "History disabled",
				}),
			},
			"/events": map[string]any{
				"get": op("streamEvents", "Server-sent launch events", map[string]string{"200": "Event stream"}),
			},
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}
