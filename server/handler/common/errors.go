package common

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/solusnoir/solus/media"
	"github.com/solusnoir/solus/server/resp"
	"github.com/solusnoir/solus/server/util"
	"github.com/solusnoir/solus/server/view"
	"github.com/solusnoir/solus/storage/local"
)

// Logger returns the request-scoped logger, or one built on the default
// logger when the request did not pass through the logging middleware.
func Logger(r *http.Request) *util.RequestLogger {
	if rl := util.FromContext(r.Context()); rl != nil {
		return rl
	}

	return util.WithRequest(log.Default(), r, "")
}

// LogAndWriteError logs an error with request context and maps known conditions to client responses.
func LogAndWriteError(w http.ResponseWriter, r *http.Request, op string, err error) {
	rl := Logger(r)

	var failure *media.Failure
	switch {
	case errors.As(err, &failure) && failure.Kind == media.KindValidation:
		rl.Infof("%s rejected: %v", op, err)
		resp.WriteInvalidRequest(w, err.Error())
	case errors.As(err, &failure) && failure.Kind == media.KindStorage:
		rl.Errorf("%s failed: %v", op, err)
		if !util.PrefersJSON(r) {
			view.RenderError(w, http.StatusInternalServerError, failure.Err.Error())
			return
		}
		resp.WriteInternalServerError(w, failure.Err.Error())
	case errors.Is(err, local.ErrNotFound), errors.Is(err, local.ErrInvalidName):
		resp.WriteNotFound(w, "not found")
	case errors.Is(err, util.ErrFileTooLarge):
		rl.Infof("%s rejected: %v", op, err)
		resp.WritePayloadTooLarge(w, err.Error())
	default:
		rl.Errorf("%s failed: %v", op, err)
		resp.WriteInternalServerError(w, fmt.Sprintf("%s failed", op))
	}
}
