package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"gwi.com/resume-screener/internal/core"
)

// Uploads beyond this size are buffered to disk by ParseMultipartForm.
const multipartMemory = 8 << 20

type Analyzer interface {
	Analyze(ctx context.Context, jobDescription string, uploads []core.Upload) (*core.AnalysisResult, error)
}

type Answerer interface {
	Answer(ctx context.Context, sessionID, question string) (string, error)
}

type APIHandler struct {
	analyzer       Analyzer
	answerer       Answerer
	validate       *validator.Validate
	maxUploadBytes int64
	log            *zap.Logger
}

func NewAPIHandler(analyzer Analyzer, answerer Answerer, maxUploadBytes int64, log *zap.Logger) *APIHandler {
	return &APIHandler{
		analyzer:       analyzer,
		answerer:       answerer,
		validate:       validator.New(),
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

func (h *APIHandler) AnalyzeResumesHandler(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	jd := strings.TrimSpace(r.FormValue("jd"))
	if jd == "" {
		writeError(w, http.StatusBadRequest, "Job description (jd) is required")
		return
	}
	files := r.MultipartForm.File["resumes"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "At least one resume file (resumes) is required")
		return
	}

	uploads := make([]core.Upload, 0, len(files))
	for _, fh := range files {
		u := core.Upload{Filename: fh.Filename}
		if f, err := fh.Open(); err != nil {
			h.log.Warn("Could not open uploaded file", zap.String("filename", fh.Filename), zap.Error(err))
		} else {
			defer closeFile(f)
			u.Content = f
		}
		uploads = append(uploads, u)
	}

	result, err := h.analyzer.Analyze(r.Context(), jd, uploads)
	if err != nil {
		h.log.Error("Resume analysis failed", zap.Int("files", len(uploads)), zap.Error(err))
		status, detail := statusFor(err)
		writeError(w, status, detail)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type ChatRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
	Question  string `json:"question" validate:"required"`
}

type ChatResponse struct {
	Answer string `json:"answer"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.Question = strings.TrimSpace(req.Question)

	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationDetail(err))
		return
	}

	answer, err := h.answerer.Answer(r.Context(), req.SessionID, req.Question)
	if err != nil {
		status, detail := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.log.Error("Chat failed", zap.String("session_id", req.SessionID), zap.Error(err))
		}
		writeError(w, status, detail)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Answer: answer})
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request: " + err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on '%s' tag", e.Field(), e.Tag()))
	}
	sort.Strings(msgs)
	return "Invalid request: " + strings.Join(msgs, ", ")
}

func closeFile(f multipart.File) {
	_ = f.Close()
}
