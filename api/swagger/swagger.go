package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Course Timetable API",
        "description": "Genetic-algorithm course timetabling with pollable generation jobs and manual schedule edits.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Timetable", "description": "Generation jobs and progress"},
        {"name": "Schedules", "description": "Generated schedules and manual edits"},
        {"name": "Observability", "description": "Health, readiness and metrics"}
    ],
    "paths": {
        "/timetable/generate": {
            "post": {
                "tags": ["Timetable"],
                "summary": "Start a timetable generation job",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/GenerateTimetableRequest"}}
                ],
                "responses": {
                    "201": {"description": "Job queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid parameters", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Academic setup not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Scheduler disabled or generation queue full", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/jobs/{key}": {
            "get": {
                "tags": ["Timetable"],
                "summary": "Poll generation progress",
                "description": "Unknown keys answer 200 with status not_found.",
                "produces": ["application/json"],
                "parameters": [
                    {"in": "path", "name": "key", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Progress snapshot", "schema": {"$ref": "#/definitions/JobProgress"}}
                }
            },
            "delete": {
                "tags": ["Timetable"],
                "summary": "Cancel a generation job",
                "parameters": [
                    {"in": "path", "name": "key", "required": true, "type": "string"}
                ],
                "responses": {
                    "202": {"description": "Cancellation requested"},
                    "404": {"description": "Job not found or already finished"}
                }
            }
        },
        "/timetable/jobs/{key}/stream": {
            "get": {
                "tags": ["Timetable"],
                "summary": "Stream generation progress over a websocket",
                "parameters": [
                    {"in": "path", "name": "key", "required": true, "type": "string"}
                ],
                "responses": {
                    "101": {"description": "Switching protocols; one JSON progress snapshot per message"}
                }
            }
        },
        "/schedules/{id}": {
            "get": {
                "tags": ["Schedules"],
                "summary": "Get a generated schedule",
                "produces": ["application/json"],
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Schedule with entries", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Schedule not found"}
                }
            }
        },
        "/schedules/{id}/faculty-refresh": {
            "post": {
                "tags": ["Schedules"],
                "summary": "Re-run faculty assignment",
                "description": "Rooms, days and time slots are kept; only faculty change.",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Updated entries", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Schedule not found"},
                    "422": {"description": "Setup can no longer be scheduled"}
                }
            }
        },
        "/schedule-entries/{id}": {
            "patch": {
                "tags": ["Schedules"],
                "summary": "Move a schedule entry",
                "description": "Moves are always applied. Broken constraints are reported through has_conflict and conflict_reason.",
                "consumes": ["application/json"],
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/RepositionEntryRequest"}}
                ],
                "responses": {
                    "200": {"description": "Moved entry and affected neighbours", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Unknown day, slot or room"},
                    "404": {"description": "Entry not found"}
                }
            }
        },
        "/academic-setups/{id}/parallel-suggestions": {
            "get": {
                "tags": ["Schedules"],
                "summary": "Suggest parallel subject links",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Suggested pairs", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "GenerateTimetableRequest": {
            "type": "object",
            "required": ["academic_setup_id", "population_size", "max_generations", "included_days"],
            "properties": {
                "academic_setup_id": {"type": "string"},
                "population_size": {"type": "integer", "minimum": 1, "maximum": 5000},
                "max_generations": {"type": "integer", "minimum": 1, "maximum": 100000},
                "mutation_rate": {"type": "number", "minimum": 0, "maximum": 1},
                "included_days": {"type": "array", "items": {"type": "string", "enum": ["MW", "TTH", "FRI", "SAT", "SUN"]}},
                "target_fitness_min": {"type": "number"},
                "target_fitness_max": {"type": "number"}
            }
        },
        "RepositionEntryRequest": {
            "type": "object",
            "required": ["day", "time_slot_id", "room_id"],
            "properties": {
                "day": {"type": "string"},
                "time_slot_id": {"type": "string"},
                "room_id": {"type": "string"}
            }
        },
        "JobProgress": {
            "type": "object",
            "properties": {
                "job_key": {"type": "string"},
                "progress": {"type": "number"},
                "message": {"type": "string"},
                "status": {"type": "string", "enum": ["pending", "running", "completed", "failed", "not_found"]},
                "schedule_id": {"type": "string", "x-nullable": true},
                "updated_at": {"type": "string", "format": "date-time"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
