package completion

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/solusnoir/solus/completion"
	"github.com/solusnoir/solus/server/handler/common"
	"github.com/solusnoir/solus/server/resp"
	"github.com/solusnoir/solus/server/state"
)

type request struct {
	Prompt string `json:"prompt"`
}

type response struct {
	Completion string `json:"completion"`
}

func HandleCompletion(st *state.SolusState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, int64(st.Cfg.Server.Limits.MaxPayloadSize))

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
			resp.WriteMessage(w, http.StatusBadRequest, completion.ErrNoPrompt.Error())
			return
		}

		text, err := st.Completion.Complete(r.Context(), req.Prompt)
		switch {
		case errors.Is(err, completion.ErrNoPrompt):
			resp.WriteMessage(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, completion.ErrRateLimited):
			resp.WriteMessage(w, http.StatusTooManyRequests, err.Error())
		case err != nil:
			common.Logger(r).Errorf("completion API error: %v", err)
			resp.WriteMessage(w, http.StatusInternalServerError, err.Error())
		default:
			resp.WriteOK(w, response{Completion: text})
		}
	}
}
