// Package reply defines the response contract shared by the RPC and HTTP transports.
package reply

import (
	"net/http"

	perrors "github.com/abgdnv/product-catalog/internal/errors"
)

const (
	MsgCreated = "Created"
	MsgSuccess = "Success"
	MsgUpdated = "Updated"
	MsgDeleted = "Deleted"
)

// Envelope wraps every successful reply.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Response   any    `json:"response"`
}

// ErrorBody is the structured error returned to callers.
type ErrorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func Created(payload any) Envelope {
	return Envelope{StatusCode: http.StatusCreated, Message: MsgCreated, Response: payload}
}

func Success(payload any) Envelope {
	return Envelope{StatusCode: http.StatusOK, Message: MsgSuccess, Response: payload}
}

func Updated(payload any) Envelope {
	return Envelope{StatusCode: http.StatusOK, Message: MsgUpdated, Response: payload}
}

func Deleted(payload any) Envelope {
	return Envelope{StatusCode: http.StatusOK, Message: MsgDeleted, Response: payload}
}

// FromError converts err into an ErrorBody. Errors outside the catalog taxonomy become 500.
func FromError(err error) ErrorBody {
	return ErrorBody{Status: perrors.StatusOf(err), Message: perrors.MessageOf(err)}
}

// BadRequest builds a 400 error body.
func BadRequest(message string) ErrorBody {
	return ErrorBody{Status: http.StatusBadRequest, Message: message}
}
