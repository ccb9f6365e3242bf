package http

import (
	"errors"
	"net/http"

	"github.com/fyrsmithlabs/raglab/internal/document"
	"github.com/fyrsmithlabs/raglab/internal/rag"
	"github.com/fyrsmithlabs/raglab/internal/upstream"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// classify maps an error to a status code and client-facing detail.
//
// Upstream failures become 502 carrying the upstream message, so clients see
// the real cause (a missing model, an unreachable service). Invalid input is
// 422. Anything else is 500 with a generic detail.
func classify(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok {
			return he.Code, msg
		}
		return he.Code, http.StatusText(he.Code)
	}

	if detail, ok := upstreamDetail(err); ok {
		return http.StatusBadGateway, detail
	}

	switch {
	case errors.Is(err, rag.ErrEmptyQuestion),
		errors.Is(err, rag.ErrEmptySource):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, document.ErrUnreadablePDF):
		return http.StatusUnprocessableEntity, "could not extract text from PDF"
	}

	return http.StatusInternalServerError, "internal server error"
}

// upstreamDetail returns the message of the upstream error in err's chain,
// without the wrapping added by the pipeline.
func upstreamDetail(err error) (string, bool) {
	var unavailable *upstream.UnavailableError
	if errors.As(err, &unavailable) {
		return unavailable.Error(), true
	}
	var status *upstream.StatusError
	if errors.As(err, &status) {
		return status.Error(), true
	}
	var protocol *upstream.ProtocolError
	if errors.As(err, &protocol) {
		return protocol.Error(), true
	}
	return "", false
}

// handleError is the Echo HTTPErrorHandler.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, detail := classify(err)
	logger := requestLogger(c, s.logger)
	switch {
	case code >= http.StatusInternalServerError:
		logger.Error("request failed", zap.Int("status", code), zap.Error(err))
	case code != http.StatusNotFound:
		logger.Info("request rejected", zap.Int("status", code), zap.Error(err))
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(code)
	} else {
		werr = c.JSON(code, ErrorResponse{Detail: detail})
	}
	if werr != nil {
		logger.Warn("writing error response", zap.Error(werr))
	}
}
