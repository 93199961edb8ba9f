package portfolio

import (
	"net/http"

	"github.com/solusnoir/solus/server/handler/common"
	"github.com/solusnoir/solus/server/resp"
	"github.com/solusnoir/solus/server/state"
	"github.com/solusnoir/solus/server/util"
	"github.com/solusnoir/solus/server/view"
)

// HandlePortfolio serves the catalog. A failed listing still answers 200
// with an empty, degraded view.
func HandlePortfolio(st *state.SolusState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := st.Catalog.Build(r.Context())
		if err != nil {
			common.Logger(r).Infof("serving degraded portfolio: %v", err)
		}

		if util.PrefersJSON(r) {
			resp.WriteOK(w, v)
			return
		}

		if err := view.Render(w, http.StatusOK, view.PagePortfolio, v); err != nil {
			common.LogAndWriteError(w, r, "render portfolio", err)
		}
	}
}
