// Package docs Console Chat API.
//
// Documentation of the console-chat relay REST surface. Live traffic goes over
// the /ws/chat websocket and /socket.io/.
//
//     Schemes: https
//     BasePath: /
//     Version: 1.0.0
//
//     Consumes:
//     - application/json
//
//     Produces:
//     - application/json
//
//     Security:
//     - bearer
//
//    SecurityDefinitions:
//    bearer:
//      type: apiKey
//      name: Authorization
//      in: header
//
// swagger:meta
package docs

import (
	"github.com/darkconsole/console-chat/models"
)

// swagger:route GET /health health healthEndpointID
// Lists the healthchex of the web service api.
// responses:
//   200: healthResponse

// Shows the current health of the api. true means it is alive, false means it is not.
// swagger:response healthResponse
type healthResponseWrapper struct {
	// in:body
	Body models.HealthCheckResponse
}

// swagger:route GET /api/v1/chats/{roomId} chat chatHistory
// Gets one page of a room's messages, oldest first.
// responses:
//   200: chatHistoryResponse
//   400: errorResponse
//   403: errorResponse

// swagger:parameters chatHistory
type chatHistoryParams struct {
	// in:path
	RoomID string `json:"roomId"`
	// in:query
	Limit int `json:"limit"`
	// in:query
	Page int `json:"page"`
}

// The messages of the requested page
// swagger:response chatHistoryResponse
type chatHistoryResponseWrapper struct {
	// in:body
	Body []models.Envelope
}

// swagger:route GET /api/v1/orders/{orderId}/messages chat orderMessages
// Gets the support thread of one order.
// responses:
//   200: chatHistoryResponse
//   403: errorResponse

// swagger:route DELETE /api/v1/chats/{roomId}/messages/{messageId} chat deleteMessage
// Deletes a message. Staff may delete any message, everyone else only their own.
// responses:
//   200: deletedResponse
//   403: errorResponse
//   404: errorResponse

// The id of the removed message
// swagger:response deletedResponse
type deletedResponseWrapper struct {
	// in:body
	Body models.DeletedNotice
}

// swagger:response errorResponse
type errorResponseWrapper struct {
	// in:body
	Body models.ErrorMessageResponse
}
