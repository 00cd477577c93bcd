package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"gwi.com/resume-screener/internal/core"
)

type ErrorResponse struct {
	Detail string `json:"detail"`
}

// statusFor maps service errors to an HTTP status and a client-facing
// message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrSessionNotFound):
		return http.StatusNotFound, "Session not found. Analyze resumes first to start a session."
	case errors.Is(err, core.ErrAllAnalysesFailed):
		return http.StatusInternalServerError, "None of the uploaded resumes could be analyzed"
	case errors.Is(err, core.ErrIndexBuildFailed):
		return http.StatusInternalServerError, "Failed to index the analyzed resumes"
	case errors.Is(err, core.ErrAnswerGenerationFailed):
		return http.StatusInternalServerError, "Failed to generate an answer"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}
