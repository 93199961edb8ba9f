package home

import (
	"net/http"

	"github.com/solusnoir/solus/server/handler/common"
	"github.com/solusnoir/solus/server/resp"
	"github.com/solusnoir/solus/server/view"
)

func HandleHome() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := view.Render(w, http.StatusOK, view.PageHome, nil); err != nil {
			common.LogAndWriteError(w, r, "render home", err)
		}
	}
}

func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.WriteOK(w, map[string]string{"status": "ok"})
	}
}

func HandleNotFound() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view.RenderError(w, http.StatusNotFound, "Page not found")
	}
}
