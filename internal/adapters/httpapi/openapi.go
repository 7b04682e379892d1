package httpapi

import (
	"net/http"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/httpjson"
)

// handleOpenAPI décrit l'API v1.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	jsonOK := func(description, schemaRef string) map[string]any {
		return map[string]any{
			"description": description,
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{"$ref": schemaRef},
				},
			},
		}
	}

	jsonErr := map[string]any{
		"description": "Error",
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{"$ref": "#/components/schemas/Error"},
			},
		},
	}

	runStates := []any{"resolving", "announcing", "downloading", "queued", "encoding", "uploading", "completed", "failed"}

	doc := map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "AAE API",
			"version": "v1",
		},
		"components": map[string]any{
			"schemas": map[string]any{
				"OpenAPIDocument": map[string]any{
					"type":                 "object",
					"additionalProperties": true,
				},
				"Error": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"error": map[string]any{"type": "string"},
						"code":  map[string]any{"type": "string"},
					},
					"required": []any{"error"},
				},
				"Submission": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"source": map[string]any{"type": "string", "description": "Chemin local ou URL http(s) du fichier", "example": "/data/incoming/Show.S01E01.1080p.mkv"},
						"name":   map[string]any{"type": "string", "description": "Nom brut ; dérivé de source si absent", "example": "Show.S01E01.1080p.mkv"},
					},
					"required":             []any{"source"},
					"additionalProperties": false,
				},
				"SubmitResponse": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"runId": map[string]any{"type": "string"},
					},
					"required": []any{"runId"},
				},
				"Run": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":             map[string]any{"type": "string"},
						"fileName":       map[string]any{"type": "string"},
						"announcementId": map[string]any{"type": "integer", "format": "int64"},
						"state":          map[string]any{"type": "string", "enum": runStates},
						"qualities":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"createdAt":      map[string]any{"type": "string", "format": "date-time"},
						"updatedAt":      map[string]any{"type": "string", "format": "date-time"},
						"errorCode": map[string]any{
							"type": "string",
							"enum": []any{"metadata_failure", "announcement_failure", "download_failure", "admission_timeout", "encode_failure", "upload_failure", "internal_panic"},
						},
						"error": map[string]any{"type": "string"},
					},
					"required":             []any{"id", "fileName", "state", "qualities", "createdAt", "updatedAt"},
					"additionalProperties": false,
				},
				"RunList": map[string]any{
					"type":  "array",
					"items": map[string]any{"$ref": "#/components/schemas/Run"},
				},
				"Queue": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"busy":    map[string]any{"type": "boolean"},
						"holder":  map[string]any{"type": "integer", "format": "int64", "description": "Annonce du run qui détient le slot"},
						"pending": map[string]any{"type": "array", "items": map[string]any{"type": "integer", "format": "int64"}},
					},
					"required": []any{"busy", "pending"},
				},
				"BackupTask": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":         map[string]any{"type": "string"},
						"sourceChat": map[string]any{"type": "integer", "format": "int64"},
						"messageId":  map[string]any{"type": "integer", "format": "int64"},
						"targetChat": map[string]any{"type": "integer", "format": "int64"},
						"state":      map[string]any{"type": "string", "enum": []any{"pending", "copied", "failed", "cancelled"}},
						"error":      map[string]any{"type": "string"},
						"createdAt":  map[string]any{"type": "string", "format": "date-time"},
						"finishedAt": map[string]any{"type": "string", "format": "date-time"},
					},
				},
				"BackupList": map[string]any{
					"type":  "array",
					"items": map[string]any{"$ref": "#/components/schemas/BackupTask"},
				},
			},
		},
		"paths": map[string]any{
			"/api/v1/health": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": map[string]any{"description": "OK"}}},
			},
			"/api/v1/version": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": map[string]any{"description": "OK"}}},
			},
			"/api/v1/openapi.json": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": jsonOK("OK", "#/components/schemas/OpenAPIDocument")}},
			},
			"/api/v1/events": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": map[string]any{"description": "SSE (run.created, run.<state>, run.quality)"}}},
			},
			"/api/v1/files": map[string]any{
				"post": map[string]any{
					"requestBody": map[string]any{
						"required": true,
						"content": map[string]any{
							"application/json": map[string]any{
								"schema": map[string]any{"$ref": "#/components/schemas/Submission"},
							},
						},
					},
					"responses": map[string]any{
						"202": jsonOK("Accepted", "#/components/schemas/SubmitResponse"),
						"400": jsonErr,
						"500": jsonErr,
					},
				},
			},
			"/api/v1/runs": map[string]any{
				"get": map[string]any{
					"parameters": []any{
						map[string]any{"name": "limit", "in": "query", "schema": map[string]any{"type": "integer", "minimum": 1, "maximum": 500}},
					},
					"responses": map[string]any{
						"200": jsonOK("OK", "#/components/schemas/RunList"),
						"500": jsonErr,
					},
				},
			},
			"/api/v1/runs/{id}": map[string]any{
				"get": map[string]any{
					"responses": map[string]any{
						"200": jsonOK("OK", "#/components/schemas/Run"),
						"404": jsonErr,
						"500": jsonErr,
					},
				},
			},
			"/api/v1/queue": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": jsonOK("OK", "#/components/schemas/Queue")}},
			},
			"/api/v1/backups": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": jsonOK("OK", "#/components/schemas/BackupList")}},
			},
		},
	}

	httpjson.Write(w, http.StatusOK, doc)
}
