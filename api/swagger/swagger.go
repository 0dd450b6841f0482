package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Test Mentor Booking API",
        "description": "Teacher availability, capacity-checked bookings and the booking lifecycle.",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Teachers", "description": "Teacher directory and test catalog"},
        {"name": "Availability", "description": "Weekly rules, unavailable dates and evaluated slots"},
        {"name": "Bookings", "description": "Capacity-checked requests and their lifecycle"},
        {"name": "Receipts", "description": "Payment receipt upload and signed download"},
        {"name": "Sessions", "description": "Scheduled lessons created on acceptance"},
        {"name": "Conversations", "description": "Student and teacher chat"},
        {"name": "Ops", "description": "Health, readiness and metrics"}
    ],
    "paths": {
        "/health": {
            "get": {"tags": ["Ops"], "summary": "Liveness check", "responses": {"200": {"description": "OK"}}}
        },
        "/ready": {
            "get": {
                "tags": ["Ops"],
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "All dependencies reachable"},
                    "503": {"description": "A dependency failed"}
                }
            }
        },
        "/metrics": {
            "get": {"tags": ["Ops"], "summary": "Prometheus metrics", "produces": ["text/plain"], "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/tests": {
            "get": {"tags": ["Teachers"], "summary": "List the test catalog", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}}
        },
        "/api/v1/teachers": {
            "get": {
                "tags": ["Teachers"],
                "summary": "List active teachers",
                "parameters": [
                    {"name": "category", "in": "query", "type": "string", "enum": ["ITA_L2", "TOLC", "CENTS", "CLA"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid category", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/teachers/{id}": {
            "get": {
                "tags": ["Teachers"],
                "summary": "Get a teacher",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/availability": {
            "get": {
                "tags": ["Availability"],
                "summary": "Evaluate availability of many teachers at one instant",
                "parameters": [
                    {"name": "at", "in": "query", "required": true, "type": "string", "format": "date-time"},
                    {"name": "category", "in": "query", "type": "string", "enum": ["ITA_L2", "TOLC", "CENTS", "CLA"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid instant", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/teachers/{id}/availability": {
            "get": {
                "tags": ["Availability"],
                "summary": "Evaluate one teacher at an instant",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "at", "in": "query", "required": true, "type": "string", "format": "date-time"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/teachers/{id}/open-slots": {
            "get": {
                "tags": ["Availability"],
                "summary": "List bookable slots of one local day",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "date", "in": "query", "required": true, "type": "string", "format": "date"},
                    {"name": "tz", "in": "query", "type": "string"},
                    {"name": "step", "in": "query", "type": "integer", "description": "Step in minutes"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/teachers/{id}/availability-rules": {
            "get": {
                "tags": ["Availability"],
                "summary": "List weekly rules of a teacher",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/teachers/{id}/unavailable-dates": {
            "get": {
                "tags": ["Availability"],
                "summary": "List unavailable dates of a teacher",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "since", "in": "query", "type": "string", "format": "date-time"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/availability-rules": {
            "post": {
                "tags": ["Availability"],
                "summary": "Create a weekly rule",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AvailabilityRuleRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid rule", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Teachers only", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/availability-rules/{id}": {
            "put": {
                "tags": ["Availability"],
                "summary": "Replace a weekly rule",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AvailabilityRuleRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "delete": {
                "tags": ["Availability"],
                "summary": "Delete a weekly rule",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"204": {"description": "Deleted"}}
            }
        },
        "/api/v1/unavailable-dates": {
            "post": {
                "tags": ["Availability"],
                "summary": "Block a date",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UnavailableExceptionRequest"}}],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/unavailable-dates/{id}": {
            "delete": {
                "tags": ["Availability"],
                "summary": "Unblock a date",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"204": {"description": "Deleted"}}
            }
        },
        "/api/v1/bookings": {
            "get": {
                "tags": ["Bookings"],
                "summary": "List the caller's bookings",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "status", "in": "query", "type": "string", "enum": ["pending", "confirmed", "cancelled"]},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Bookings"],
                "summary": "Request a booking",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateBookingRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slot full", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/bookings/{id}": {
            "get": {
                "tags": ["Bookings"],
                "summary": "Get a booking",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/bookings/{id}/accept": {
            "post": {
                "tags": ["Bookings"],
                "summary": "Accept a pending booking",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/bookings/{id}/reject": {
            "post": {
                "tags": ["Bookings"],
                "summary": "Reject a pending booking",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/bookings/{id}/cancel": {
            "post": {
                "tags": ["Bookings"],
                "summary": "Cancel a booking",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/bookings/{id}/receipt-url": {
            "get": {
                "tags": ["Receipts"],
                "summary": "Signed download URL for a booking receipt",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/receipts": {
            "post": {
                "tags": ["Receipts"],
                "summary": "Upload a payment receipt",
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "parameters": [{"name": "file", "in": "formData", "required": true, "type": "file"}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Unsupported or oversized file", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/receipts/download": {
            "get": {
                "tags": ["Receipts"],
                "summary": "Download a receipt through a signed link",
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "File contents"}, "403": {"description": "Invalid or expired link"}}
            }
        },
        "/api/v1/sessions": {
            "get": {
                "tags": ["Sessions"],
                "summary": "List the caller's sessions",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "enum": ["scheduled", "completed", "cancelled"]},
                    {"name": "from", "in": "query", "type": "string", "format": "date-time"},
                    {"name": "to", "in": "query", "type": "string", "format": "date-time"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/sessions/export": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Export the teacher's sessions",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/pdf"],
                "parameters": [{"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}],
                "responses": {"200": {"description": "File"}}
            }
        },
        "/api/v1/sessions/{id}/meeting-link": {
            "patch": {
                "tags": ["Sessions"],
                "summary": "Set the meeting link of a scheduled session",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/sessions/{id}/complete": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Mark a scheduled session completed",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/conversations": {
            "get": {
                "tags": ["Conversations"],
                "summary": "List the caller's conversations",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/conversations/{id}/messages": {
            "get": {
                "tags": ["Conversations"],
                "summary": "List messages",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "since", "in": "query", "type": "string", "format": "date-time"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Conversations"],
                "summary": "Post a message",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/metrics/summary": {
            "get": {
                "tags": ["Ops"],
                "summary": "JSON metrics snapshot",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "AvailabilityRuleRequest": {
            "type": "object",
            "required": ["dayOfWeek", "startTime", "endTime"],
            "properties": {
                "dayOfWeek": {"type": "integer", "minimum": 0, "maximum": 6},
                "startTime": {"type": "string", "example": "09:00"},
                "endTime": {"type": "string", "example": "13:00"},
                "enabled": {"type": "boolean"},
                "timezone": {"type": "string", "example": "Europe/Rome"}
            }
        },
        "UnavailableExceptionRequest": {
            "type": "object",
            "required": ["startDateTime", "endDateTime"],
            "properties": {
                "startDateTime": {"type": "string", "format": "date-time"},
                "endDateTime": {"type": "string", "format": "date-time"},
                "reason": {"type": "string"}
            }
        },
        "ReceiptReference": {
            "type": "object",
            "required": ["path"],
            "properties": {
                "path": {"type": "string"},
                "mime": {"type": "string"},
                "originalName": {"type": "string"}
            }
        },
        "CreateBookingRequest": {
            "type": "object",
            "required": ["teacherId", "testCategory", "startDateTime", "receipt"],
            "properties": {
                "teacherId": {"type": "string", "format": "uuid"},
                "testCategory": {"type": "string", "enum": ["ITA_L2", "TOLC", "CENTS", "CLA"]},
                "testSubtype": {"type": "string"},
                "startDateTime": {"type": "string", "format": "date-time"},
                "notes": {"type": "string"},
                "receipt": {"$ref": "#/definitions/ReceiptReference"}
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
