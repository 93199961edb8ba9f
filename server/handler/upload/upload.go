package upload

import (
	"errors"
	"net/http"
	"slices"

	"github.com/solusnoir/solus/intake"
	"github.com/solusnoir/solus/server/auth"
	"github.com/solusnoir/solus/server/handler/common"
	"github.com/solusnoir/solus/server/middleware"
	"github.com/solusnoir/solus/server/resp"
	"github.com/solusnoir/solus/server/state"
	"github.com/solusnoir/solus/server/util"
	"github.com/solusnoir/solus/server/view"
)

const redirectTarget = "/portfolio"

func HandleUploadForm(st *state.SolusState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		exts := st.Allowed.Extensions()
		slices.Sort(exts)

		if err := view.Render(w, http.StatusOK, view.PageUpload, view.UploadData{Extensions: exts}); err != nil {
			common.LogAndWriteError(w, r, "render upload form", err)
		}
	}
}

func HandleUpload(st *state.SolusState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			values util.MultipartValues
			file   *util.MultipartFile
		)

		if util.IsMultipart(r) {
			maxMemory := int64(st.Cfg.Server.Limits.MaxMultipartMem)
			maxSize := int64(st.Cfg.Server.Limits.MaxFileSize)

			var err error
			values, file, err = util.ParseMultipartWithFirstFile(w, r, maxMemory, maxSize, []string{"file"})
			if err != nil {
				if errors.Is(err, util.ErrFileTooLarge) {
					common.LogAndWriteError(w, r, "upload", err)
					return
				}
				common.Logger(r).Infof("could not parse multipart body: %v", err)
				resp.WriteInvalidRequest(w, "Invalid multipart body")
				return
			}
		}
		if file != nil {
			defer file.Close()
		}

		r, ok := middleware.EnsureTokenForRequest(st.Verifier, w, r, auth.PopAccessToken(values))
		if !ok {
			return
		}
		if st.Verifier != nil && !auth.RequestHasScope(r, auth.ScopeMedia) {
			resp.WriteInsufficientScope(w, "The media scope is required to upload")
			return
		}

		receipt, err := st.Intake.Submit(r.Context(), submission(file))
		if err != nil {
			common.LogAndWriteError(w, r, "upload", err)
			return
		}

		receipt.State = intake.StateRedirected
		common.Logger(r).Infof("upload of %q %s, mirror %s", receipt.File.Name, receipt.State, receipt.Mirror)
		resp.WriteSeeOther(w, redirectTarget)
	}
}

func submission(file *util.MultipartFile) intake.Submission {
	switch {
	case file == nil:
		return intake.Submission{}
	case file.File == nil:
		return intake.Submission{Body: http.NoBody}
	default:
		return intake.Submission{Filename: file.Filename(), Body: file.File}
	}
}
