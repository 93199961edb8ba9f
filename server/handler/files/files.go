package files

import (
	"net/http"

	"github.com/solusnoir/solus/media"
	"github.com/solusnoir/solus/server/handler/common"
	"github.com/solusnoir/solus/server/resp"
	"github.com/solusnoir/solus/server/state"
)

// HandleFile serves a stored upload by name, with range support.
func HandleFile(st *state.SolusState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("filename")

		f, err := st.Files.Open(name)
		if err != nil {
			common.LogAndWriteError(w, r, "serve file", err)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			common.LogAndWriteError(w, r, "serve file", err)
			return
		}
		if !info.Mode().IsRegular() {
			resp.WriteNotFound(w, "not found")
			return
		}

		if ct, ok := media.LookupContentType(name); ok {
			w.Header().Set("Content-Type", ct)
		}
		http.ServeContent(w, r, name, info.ModTime(), f)
	}
}
