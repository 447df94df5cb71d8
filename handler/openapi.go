package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// OpenAPISpec returns the OpenAPI 3.0 specification for the gateway.
func OpenAPISpec() map[string]interface{} {
	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "AI Gateway",
			"description": "Model routing, caching, policy, and analytics gateway",
			"version":     "1.0.0",
		},
		"servers": []map[string]interface{}{
			{"url": "http://localhost:8080", "description": "Local development"},
		},
		"paths": openAPIPaths(),
		"components": map[string]interface{}{
			"securitySchemes": map[string]interface{}{
				"BearerAuth": map[string]interface{}{
					"type":         "http",
					"scheme":       "bearer",
					"bearerFormat": "JWT",
				},
			},
			"schemas": openAPISchemas(),
		},
		"security": []map[string]interface{}{
			{"BearerAuth": []string{}},
		},
		"tags": []map[string]interface{}{
			{"name": "Chat", "description": "Chat completion and cost estimation"},
			{"name": "Stream", "description": "Bidirectional websocket chat and dataset queries"},
			{"name": "Variants", "description": "Fixed model variant registry"},
			{"name": "Cache", "description": "Response cache management"},
			{"name": "Policy", "description": "Request policy evaluation and management"},
			{"name": "Analytics", "description": "Dataset queries over usage and cost"},
			{"name": "Audit", "description": "Audit log and compliance reporting"},
			{"name": "Auth", "description": "Session authentication"},
			{"name": "Workflows", "description": "External workflow orchestration: definitions, manual triggers, executions"},
			{"name": "Health", "description": "Service health checks"},
		},
	}
}

func openAPIPaths() map[string]interface{} {
	return map[string]interface{}{
		"/api/v1/chat": map[string]interface{}{
			"post": map[string]interface{}{
				"tags":        []string{"Chat"},
				"summary":     "Send a chat turn",
				"description": "Routes the turn to a model variant, consulting the response cache unless streaming.",
				"operationId": "chat",
				"requestBody": map[string]interface{}{
					"required": true,
					"content": map[string]interface{}{
						"application/json": map[string]interface{}{
							"schema": map[string]interface{}{"$ref": "#/components/schemas/ChatRequest"},
						},
					},
				},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{
						"description": "Completion (JSON) or an SSE stream when stream=true",
						"content": map[string]interface{}{
							"application/json": map[string]interface{}{
								"schema": map[string]interface{}{"$ref": "#/components/schemas/ChatResponse"},
							},
						},
					},
					"400": map[string]interface{}{"description": "Invalid request"},
					"401": map[string]interface{}{"description": "Unauthorized"},
				},
			},
		},
		"/api/v1/cost/estimate": map[string]interface{}{
			"post": map[string]interface{}{
				"tags":        []string{"Chat"},
				"summary":     "Estimate prompt cost without dispatching",
				"operationId": "estimateCost",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Token estimate and cumulative savings snapshot"},
				},
			},
		},
		"/ws/chat": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Stream"},
				"summary":     "Upgrade to a bidirectional chat websocket",
				"operationId": "streamChat",
				"responses": map[string]interface{}{
					"101": map[string]interface{}{"description": "Switching Protocols"},
				},
			},
		},
		"/api/v1/variants": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Variants"},
				"summary":     "List the fixed model variant registry",
				"operationId": "listVariants",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Variant list"},
				},
			},
		},
		"/api/v1/variants/{name}": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Variants"},
				"summary":     "Get a variant's configuration",
				"operationId": "getVariant",
				"parameters": []map[string]interface{}{
					{"name": "name", "in": "path", "required": true, "schema": map[string]interface{}{"type": "string", "enum": []string{"nano", "mini", "chat", "full"}}},
				},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Variant configuration"},
					"404": map[string]interface{}{"description": "Unknown variant"},
				},
			},
		},
		"/api/v1/variants/health": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Variants"},
				"summary":     "Check the shared backend's health",
				"operationId": "variantsHealth",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Backend is healthy"},
					"503": map[string]interface{}{"description": "Backend is unhealthy"},
				},
			},
		},
		"/api/v1/cache/stats": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Cache"},
				"summary":     "Get cache hit/miss statistics",
				"operationId": "cacheStats",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Cache statistics"},
				},
			},
		},
		"/api/v1/cache/groups/{group}": map[string]interface{}{
			"delete": map[string]interface{}{
				"tags":        []string{"Cache"},
				"summary":     "Invalidate every entry tagged with a group",
				"operationId": "invalidateCacheGroup",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Invalidation result"},
				},
			},
		},
		"/api/v1/cache/{namespace}/{key}": map[string]interface{}{
			"delete": map[string]interface{}{
				"tags":        []string{"Cache"},
				"summary":     "Delete a single cache entry",
				"operationId": "deleteCacheEntry",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Deletion result"},
				},
			},
		},
		"/api/v1/policies": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Policy"},
				"summary":     "List policies",
				"operationId": "listPolicies",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Policy list"},
				},
			},
			"post": map[string]interface{}{
				"tags":        []string{"Policy"},
				"summary":     "Create a policy",
				"operationId": "createPolicy",
				"requestBody": map[string]interface{}{
					"required": true,
					"content": map[string]interface{}{
						"application/json": map[string]interface{}{
							"schema": map[string]interface{}{"$ref": "#/components/schemas/Policy"},
						},
					},
				},
				"responses": map[string]interface{}{
					"201": map[string]interface{}{"description": "Policy created"},
				},
			},
		},
		"/api/v1/policies/evaluate": map[string]interface{}{
			"post": map[string]interface{}{
				"tags":        []string{"Policy"},
				"summary":     "Evaluate every active policy against an input",
				"operationId": "evaluatePolicy",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Merged allow/deny/warn decision"},
				},
			},
		},
		"/api/v1/analytics/query": map[string]interface{}{
			"post": map[string]interface{}{
				"tags":        []string{"Analytics"},
				"summary":     "Run a dataset query",
				"operationId": "analyticsQuery",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Query result"},
				},
			},
		},
		"/api/v1/audit/events": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Audit"},
				"summary":     "List audit events",
				"operationId": "auditEvents",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Audit event page"},
				},
			},
		},
		"/api/v1/compliance/report/{standard}": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Audit"},
				"summary":     "Generate a compliance report",
				"operationId": "complianceReport",
				"parameters": []map[string]interface{}{
					{"name": "standard", "in": "path", "required": true, "schema": map[string]interface{}{"type": "string", "enum": []string{"SOC2", "ISO27001", "GDPR"}}},
				},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Report (JSON or CSV via ?format=csv)"},
				},
			},
		},
		"/api/v1/auth/login": map[string]interface{}{
			"post": map[string]interface{}{
				"tags":        []string{"Auth"},
				"summary":     "Authenticate and receive a session token",
				"operationId": "login",
				"security":    []map[string]interface{}{},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Session token issued"},
					"401": map[string]interface{}{"description": "Invalid credentials"},
				},
			},
		},
		"/api/v1/workflows": map[string]interface{}{
			"post": map[string]interface{}{
				"tags":        []string{"Workflows"},
				"summary":     "Register a workflow definition",
				"operationId": "registerWorkflowDefinition",
				"responses": map[string]interface{}{
					"201": map[string]interface{}{"description": "Definition registered"},
				},
			},
		},
		"/api/v1/workflows/{id}/trigger": map[string]interface{}{
			"post": map[string]interface{}{
				"tags":        []string{"Workflows"},
				"summary":     "Manually trigger a workflow execution",
				"operationId": "triggerWorkflow",
				"responses": map[string]interface{}{
					"202": map[string]interface{}{"description": "Execution accepted"},
				},
			},
		},
		"/api/v1/workflows/executions/{id}": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Workflows"},
				"summary":     "Fetch an execution's current state",
				"operationId": "getWorkflowExecution",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Execution state"},
					"404": map[string]interface{}{"description": "Execution not found"},
				},
			},
		},
		"/healthz": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Health"},
				"summary":     "Liveness probe",
				"operationId": "healthz",
				"security":    []map[string]interface{}{},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Service is alive"},
				},
			},
		},
	}
}

func openAPISchemas() map[string]interface{} {
	return map[string]interface{}{
		"ChatRequest": map[string]interface{}{
			"type":     "object",
			"required": []string{"content"},
			"properties": map[string]interface{}{
				"content":         map[string]interface{}{"type": "string"},
				"conversation_id": map[string]interface{}{"type": "string"},
				"high_accuracy":   map[string]interface{}{"type": "boolean"},
				"real_time":       map[string]interface{}{"type": "boolean"},
				"stream":          map[string]interface{}{"type": "boolean", "default": false},
			},
		},
		"ChatResponse": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"content":         map[string]interface{}{"type": "string"},
				"variant":         map[string]interface{}{"type": "string", "enum": []string{"nano", "mini", "chat", "full"}},
				"cache_hit":       map[string]interface{}{"type": "boolean"},
				"outcome":         map[string]interface{}{"type": "string"},
				"request_id":      map[string]interface{}{"type": "string"},
				"conversation_id": map[string]interface{}{"type": "string"},
			},
		},
		"Policy": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"id":          map[string]interface{}{"type": "string"},
				"name":        map[string]interface{}{"type": "string"},
				"description": map[string]interface{}{"type": "string"},
				"module":      map[string]interface{}{"type": "string", "description": "Rego module source"},
				"active":      map[string]interface{}{"type": "boolean"},
			},
		},
		"Error": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"error": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"type":    map[string]interface{}{"type": "string"},
						"message": map[string]interface{}{"type": "string"},
					},
				},
			},
		},
	}
}

// OpenAPIHandler serves the OpenAPI spec at /openapi.json.
func OpenAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := OpenAPISpec()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		json.NewEncoder(w).Encode(spec)
	}
}

// SwaggerUIHandler serves a minimal Swagger UI page.
func SwaggerUIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>AI Gateway API</title>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
    SwaggerUI({
        url: '/openapi.json',
        dom_id: '#swagger-ui',
        deepLinking: true,
        presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
        layout: "BaseLayout"
    });
    </script>
</body>
</html>`
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, html)
	}
}
