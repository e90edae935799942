package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/savagetongue/mess-connect0209/apperrors"
)

type JSONResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Kind    string      `json:"kind,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func RespondJSON(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, JSONResponse{
		Status:  code >= 200 && code < 300,
		Message: message,
		Data:    data,
	})
}

// RespondError writes err with an explicit status code.
func RespondError(c *gin.Context, code int, err error) {
	resp := JSONResponse{
		Status:  false,
		Message: apperrors.MessageOf(err),
	}
	if kind := apperrors.KindOf(err); kind != apperrors.KindInternal {
		resp.Kind = string(kind)
	}
	c.JSON(code, resp)
}

// RespondAppError picks the status code from the error's kind. Internal
// failures are logged and answered with a generic message.
func RespondAppError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	code := StatusForKind(kind)
	if code >= http.StatusInternalServerError {
		ErrorLogger.WithFields(map[string]interface{}{
			"kind": kind,
			"path": c.Request.URL.Path,
		}).Error(err)
	}
	if kind == apperrors.KindInternal {
		c.JSON(code, JSONResponse{Status: false, Message: "internal server error", Kind: string(kind)})
		return
	}
	c.JSON(code, JSONResponse{Status: false, Message: apperrors.MessageOf(err), Kind: string(kind)})
}

func StatusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindValidation, apperrors.KindSignatureInvalid:
		return http.StatusBadRequest
	case apperrors.KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
