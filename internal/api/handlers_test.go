package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gwi.com/resume-screener/internal/core"
	"gwi.com/resume-screener/internal/store"
)

type fakeAnalyzer struct {
	gotJD    string
	gotFiles map[string]string
	result   *core.AnalysisResult
	err      error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, jd string, uploads []core.Upload) (*core.AnalysisResult, error) {
	f.gotJD = jd
	f.gotFiles = map[string]string{}
	for _, u := range uploads {
		b, err := io.ReadAll(u.Content)
		if err != nil {
			return nil, err
		}
		f.gotFiles[u.Filename] = string(b)
	}
	return f.result, f.err
}

type fakeAnswerer struct {
	answer string
	err    error
}

func (f *fakeAnswerer) Answer(_ context.Context, sessionID, question string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("%s [%s]", f.answer, sessionID), nil
}

func newTestServer(a *fakeAnalyzer, q *fakeAnswerer, maxBytes int64) http.Handler {
	return NewRouter(NewAPIHandler(a, q, maxBytes, zap.NewNop()), zap.NewNop())
}

func multipartBody(t *testing.T, jd string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if jd != "" {
		require.NoError(t, mw.WriteField("jd", jd))
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile("resumes", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Detail
}

func TestAnalyzeResumesHandler(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &core.AnalysisResult{
		SessionID: "sess-1",
		Results: []store.AnalysisRecord{{
			ID: "r1", Filename: "ada.pdf", CandidateName: "Ada",
			MatchPercentage: store.NewMatchPercentage(88),
			Strengths:       []string{"Go"}, Weaknesses: []string{}, Summary: "Strong",
		}},
	}}
	srv := newTestServer(analyzer, &fakeAnswerer{}, 1<<20)

	body, ct := multipartBody(t, "Go engineer", map[string]string{"ada.pdf": "%PDF-ada", "bob.pdf": "%PDF-bob"})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze-resumes", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Go engineer", analyzer.gotJD)
	assert.Equal(t, map[string]string{"ada.pdf": "%PDF-ada", "bob.pdf": "%PDF-bob"}, analyzer.gotFiles)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "sess-1", got["sessionId"])
	results := got["results"].([]any)
	require.Len(t, results, 1)
	first := results[0].(map[string]any)
	assert.Equal(t, "Ada", first["candidate_name"])
	assert.EqualValues(t, 88, first["match_percentage"])
	assert.Equal(t, "ada.pdf", first["filename"])
}

func TestAnalyzeResumesHandlerBadRequests(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{}, &fakeAnswerer{}, 1<<20)

	tests := []struct {
		name   string
		jd     string
		files  map[string]string
		detail string
	}{
		{"missing jd", "", map[string]string{"a.pdf": "x"}, "jd"},
		{"blank jd", "   ", map[string]string{"a.pdf": "x"}, "jd"},
		{"missing resumes", "Go engineer", nil, "resumes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.jd, tt.files)
			req := httptest.NewRequest(http.MethodPost, "/api/analyze-resumes", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeDetail(t, rec), tt.detail)
		})
	}

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/analyze-resumes", strings.NewReader(`{"jd":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAnalyzeResumesHandlerServiceErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("batch: %w", core.ErrAllAnalysesFailed), http.StatusInternalServerError},
		{fmt.Errorf("%w: embed", core.ErrIndexBuildFailed), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		srv := newTestServer(&fakeAnalyzer{err: tt.err}, &fakeAnswerer{}, 1<<20)
		body, ct := multipartBody(t, "Go engineer", map[string]string{"a.pdf": "x"})
		req := httptest.NewRequest(http.MethodPost, "/api/analyze-resumes", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		assert.Equal(t, tt.status, rec.Code)
		assert.NotEmpty(t, decodeDetail(t, rec))
	}
}

func TestAnalyzeResumesHandlerRejectsOversizedUpload(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{}, &fakeAnswerer{}, 1024)

	body, ct := multipartBody(t, "Go engineer", map[string]string{"big.pdf": strings.Repeat("x", 4096)})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze-resumes", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.GreaterOrEqual(t, rec.Code, http.StatusBadRequest)
	assert.Less(t, rec.Code, http.StatusInternalServerError)
}

func postChat(srv http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestChatHandler(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{}, &fakeAnswerer{answer: "Ada knows Go"}, 0)

	rec := postChat(srv, `{"sessionId": "sess-1", "question": "Who knows Go?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Ada knows Go [sess-1]", resp.Answer)
}

func TestChatHandlerValidation(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{}, &fakeAnswerer{answer: "x"}, 0)

	tests := map[string]string{
		"malformed":        `{"sessionId": `,
		"missing session":  `{"question": "Who knows Go?"}`,
		"blank question":   `{"sessionId": "s", "question": "  "}`,
		"wrong field type": `{"sessionId": 12, "question": "q"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			rec := postChat(srv, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decodeDetail(t, rec))
		})
	}

	rec := postChat(srv, `{}`)
	detail := decodeDetail(t, rec)
	assert.Contains(t, detail, "SessionID")
	assert.Contains(t, detail, "Question")
}

func TestChatHandlerServiceErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("lookup: %w", core.ErrSessionNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: timeout", core.ErrAnswerGenerationFailed), http.StatusInternalServerError},
		{fmt.Errorf("something else"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		srv := newTestServer(&fakeAnalyzer{}, &fakeAnswerer{err: tt.err}, 0)
		rec := postChat(srv, `{"sessionId": "s", "question": "q"}`)
		assert.Equal(t, tt.status, rec.Code, tt.err.Error())
		assert.NotEmpty(t, decodeDetail(t, rec))
	}
}

func TestHealthHandler(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{}, &fakeAnswerer{}, 0)

	for _, path := range []string{"/api/health", "/api/health/"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	}
}
