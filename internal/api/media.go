package api

import (
	"errors"
	"net/http"

	xerrors "Parry-QV/internal/errors"
	"Parry-QV/internal/pinning"
)

// handleUploadMedia 接收 multipart 表单中的 file 字段并转发到固定服务。
func (s *Server) handleUploadMedia(w http.ResponseWriter, r *http.Request) {
	if s.pinner == nil {
		unavailable(w, "媒体上传")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, pinning.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(pinning.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "file exceeds the upload limit"))
			return
		}
		badRequest(w, "expected a multipart form with a file field")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "missing file field")
		return
	}
	defer file.Close()

	result, err := s.pinner.PinFile(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}
