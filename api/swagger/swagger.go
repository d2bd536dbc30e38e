package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "ClubPulse API",
        "description": "Club events, ticketing and promotion progress backend",
        "version": "0.1.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Registration, login and session management"},
        {"name": "Clubs", "description": "Club directory and follows"},
        {"name": "Events", "description": "Event lifecycle"},
        {"name": "Templates", "description": "Promotion level templates"},
        {"name": "Promotions", "description": "Per-user promotion progress"},
        {"name": "Claims", "description": "Mission evidence claims and review"},
        {"name": "Tickets", "description": "Orders, tickets and redemption"},
        {"name": "Referrals", "description": "Share links and click tracking"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/api/v1/auth/register": {
            "post": {
                "tags": ["Auth"],
                "summary": "Register a new account",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Email taken", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and open a session",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Rotate a refresh token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/auth/logout": {
            "post": {
                "tags": ["Auth"],
                "summary": "Revoke the current session",
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/api/v1/auth/me": {
            "get": {
                "tags": ["Auth"],
                "summary": "Current user profile",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/clubs": {
            "post": {
                "tags": ["Clubs"],
                "summary": "Create a club",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/clubs/{clubId}": {
            "get": {
                "tags": ["Clubs"],
                "summary": "Get a club",
                "parameters": [
                    {"name": "clubId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/clubs/{clubId}/follow": {
            "post": {
                "tags": ["Clubs"],
                "summary": "Follow a club",
                "parameters": [
                    {"name": "clubId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            },
            "delete": {
                "tags": ["Clubs"],
                "summary": "Unfollow a club",
                "parameters": [
                    {"name": "clubId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/api/v1/clubs/{clubId}/templates": {
            "get": {
                "tags": ["Templates"],
                "summary": "Resolved promotion ladder for a club",
                "parameters": [
                    {"name": "clubId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/clubs/{clubId}/promotion": {
            "get": {
                "tags": ["Promotions"],
                "summary": "Promotion progress for the caller in a club",
                "parameters": [
                    {"name": "clubId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No ladder configured", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/clubs/{clubId}/promotion/activities": {
            "post": {
                "tags": ["Promotions"],
                "summary": "Record a domain activity against the caller's progress",
                "parameters": [
                    {"name": "clubId", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RecordActivityRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/admin/templates": {
            "post": {
                "tags": ["Templates"],
                "summary": "Create a level template",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/admin/templates/{id}": {
            "put": {
                "tags": ["Templates"],
                "summary": "Replace a level template with a new version",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Templates"],
                "summary": "Deactivate a level template",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/api/v1/claims": {
            "post": {
                "tags": ["Claims"],
                "summary": "Submit an evidence claim for an approval mission",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Claim already pending", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["Claims"],
                "summary": "List claims",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "club_id", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/claims/{id}": {
            "get": {
                "tags": ["Claims"],
                "summary": "Get a claim",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/claims/{id}/review": {
            "post": {
                "tags": ["Claims"],
                "summary": "Approve or reject a pending claim",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already resolved", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/claims/{id}/cancel": {
            "post": {
                "tags": ["Claims"],
                "summary": "Cancel an own pending claim",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/events": {
            "get": {
                "tags": ["Events"],
                "summary": "List events",
                "parameters": [
                    {"name": "club_id", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Events"],
                "summary": "Create a draft event",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/events/{id}": {
            "get": {
                "tags": ["Events"],
                "summary": "Get an event",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Events"],
                "summary": "Update a draft or published event",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/events/{id}/publish": {
            "post": {
                "tags": ["Events"],
                "summary": "Publish a draft event",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/events/{id}/cancel": {
            "post": {
                "tags": ["Events"],
                "summary": "Cancel an event",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/events/{id}/finish": {
            "post": {
                "tags": ["Events"],
                "summary": "Mark a published event finished",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/orders": {
            "post": {
                "tags": ["Tickets"],
                "summary": "Open a pending ticket order",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/webhooks/payments": {
            "post": {
                "tags": ["Tickets"],
                "summary": "Payment provider webhook",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/tickets": {
            "get": {
                "tags": ["Tickets"],
                "summary": "List the caller's tickets",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/tickets/{id}/redeem": {
            "post": {
                "tags": ["Tickets"],
                "summary": "Redeem a ticket at the door",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already redeemed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/tickets/{id}/pdf": {
            "get": {
                "tags": ["Tickets"],
                "summary": "Download a ticket as PDF",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "produces": ["application/pdf"],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/share-links": {
            "post": {
                "tags": ["Referrals"],
                "summary": "Create a share link for a club or event",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["Referrals"],
                "summary": "List the caller's share links",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/r/{code}": {
            "get": {
                "tags": ["Referrals"],
                "summary": "Resolve a share link and redirect",
                "parameters": [
                    {"name": "code", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "302": {"description": "Found"}
                }
            }
        }
    },
    "definitions": {
        "RegisterRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "display_name": {"type": "string"},
                "referral_code": {"type": "string"}
            }
        },
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "RecordActivityRequest": {
            "type": "object",
            "properties": {
                "kind": {"type": "string"},
                "event_id": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
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
                "pagination": {"$ref": "#/definitions/Pagination"},
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
