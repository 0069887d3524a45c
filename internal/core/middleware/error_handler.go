package middleware

import (
	"net/http"

	"github.com/Nzyazin/walletd/internal/core/logger"
	"github.com/Nzyazin/walletd/internal/core/response"
)

// ErrorHandler answers requests no route accepted, in the same envelope as
// every other failure.
type ErrorHandler struct {
	status  int
	code    string
	message string
	log     logger.Logger
}

func NotFoundHandler(log logger.Logger) http.Handler {
	return &ErrorHandler{status: http.StatusNotFound, code: response.CodeNotFound, message: "Not Found", log: log}
}

func MethodNotAllowedHandler(log logger.Logger) http.Handler {
	return &ErrorHandler{status: http.StatusMethodNotAllowed, code: response.CodeMethodNotAllowed, message: "Method Not Allowed", log: log}
}

func (eh *ErrorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	eh.log.Debug("unmatched request",
		logger.StringField("method", r.Method),
		logger.StringField("path", r.URL.Path),
		logger.IntField("status", eh.status),
	)
	response.Error(w, eh.status, eh.code, eh.message)
}
