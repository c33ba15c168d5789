package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/ecglabel/internal/annotation"
	"github.com/starford/ecglabel/internal/ingest"
	"github.com/starford/ecglabel/internal/models"
	"github.com/starford/ecglabel/internal/review"
	"github.com/starford/ecglabel/internal/storage"
	"github.com/starford/ecglabel/internal/testutil"
)

// testEnv sets up temp stores, a SQLite DB, the service and the router.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (http.Handler, *storage.FS) {
	t.Helper()
	return testEnvWithSSE(t, authToken, nil)
}

func testEnvWithSSE(t *testing.T, authToken string, sseHandler http.Handler) (http.Handler, *storage.FS) {
	t.Helper()
	docs, anns := testutil.TestStores(t)
	db := testutil.TestDB(t)
	logger := testutil.Logger()

	store := annotation.NewStore(anns, annotation.WithSaveHook(review.IndexHook(db, logger, nil)))
	svc := review.NewService(docs, store, db, ingest.New(docs), nil, logger)
	return NewRouter(svc, authToken != "", authToken, sseHandler, 10<<20), docs
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func addDoc(t *testing.T, docs *storage.FS, key string) {
	t.Helper()
	if err := docs.Write(context.Background(), key, testutil.MinimalPDF(1)); err != nil {
		t.Fatal(err)
	}
}

func TestListAndGetDocument(t *testing.T) {
	router, docs := testEnv(t, "")
	addDoc(t, docs, "r1.pdf")
	addDoc(t, docs, "r2.pdf")

	w := do(t, router, http.MethodGet, "/documents", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list DocumentListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 2 || len(list.Documents) != 2 {
		t.Errorf("list = %+v", list)
	}

	w = do(t, router, http.MethodGet, "/documents/r1.pdf", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")) {
		t.Error("body is not a PDF")
	}

	w = do(t, router, http.MethodGet, "/documents/missing.pdf", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing document = %d, want 404", w.Code)
	}
}

func TestSaveAndGetAnnotation(t *testing.T) {
	router, docs := testEnv(t, "")
	addDoc(t, docs, "report_001.pdf")

	w := do(t, router, http.MethodGet, "/documents/report_001.pdf/annotation", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("before save = %d, want 404", w.Code)
	}

	w = do(t, router, http.MethodPut, "/documents/report_001.pdf/annotation", SaveAnnotationRequest{
		Arrhythmias: []string{"Atrial Fibrillation"},
		CustomLabel: "Wenckebach",
		Notes:       "irregular",
		AnnotatedBy: "dr_smith",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("save status = %d, body = %s", w.Code, w.Body.String())
	}
	var saved SaveAnnotationResponse
	_ = json.Unmarshal(w.Body.Bytes(), &saved)
	if saved.Key != "report_001.json" {
		t.Errorf("key = %q", saved.Key)
	}

	w = do(t, router, http.MethodGet, "/documents/report_001.pdf/annotation", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var rec models.AnnotationRecord
	_ = json.Unmarshal(w.Body.Bytes(), &rec)
	if rec.Filename != "report_001.pdf" || rec.AnnotatedBy != "dr_smith" {
		t.Errorf("record = %+v", rec)
	}
	if len(rec.Arrhythmias) != 2 || rec.Arrhythmias[1] != "Wenckebach" {
		t.Errorf("arrhythmias = %v", rec.Arrhythmias)
	}
	if _, err := time.Parse(models.TimestampLayout, rec.Timestamp); err != nil {
		t.Errorf("timestamp %q: %v", rec.Timestamp, err)
	}

	w = do(t, router, http.MethodGet, "/documents/report_001.pdf/form", nil)
	var form models.Form
	_ = json.Unmarshal(w.Body.Bytes(), &form)
	if form.CustomLabel != "Wenckebach" || len(form.Selected) != 1 {
		t.Errorf("form = %+v", form)
	}
}

func TestSaveAnnotation_ValidationFailed(t *testing.T) {
	router, _ := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/documents/a.pdf/annotation", SaveAnnotationRequest{AnnotatedBy: "dr"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty submission = %d, want 422", w.Code)
	}
	var body errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if _, ok := body.Fields["arrhythmias"]; !ok {
		t.Errorf("fields = %v, want arrhythmias", body.Fields)
	}

	// Nothing was written.
	w = do(t, router, http.MethodGet, "/documents/a.pdf/annotation", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("after rejected save = %d, want 404", w.Code)
	}
}

func TestSaveAnnotation_InvalidJSON(t *testing.T) {
	router, _ := testEnv(t, "")
	req := httptest.NewRequest(http.MethodPut, "/documents/a.pdf/annotation", strings.NewReader("{"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON = %d, want 400", w.Code)
	}
}

func TestStatsAndSearch(t *testing.T) {
	router, _ := testEnv(t, "")
	for _, k := range []string{"a.pdf", "b.pdf"} {
		w := do(t, router, http.MethodPut, "/documents/"+k+"/annotation", SaveAnnotationRequest{
			Arrhythmias: []string{"Sinus Rhythm"},
			AnnotatedBy: "dr_" + k[:1],
		})
		if w.Code != http.StatusOK {
			t.Fatalf("save %s = %d", k, w.Code)
		}
	}

	w := do(t, router, http.MethodGet, "/annotations/stats", nil)
	var stats struct {
		Total  int      `json:"total"`
		Recent []string `json:"recent"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &stats)
	if stats.Total != 2 || len(stats.Recent) != 2 || stats.Recent[0] != "b.json" {
		t.Errorf("stats = %+v", stats)
	}

	w = do(t, router, http.MethodGet, "/annotations/labels", nil)
	if !strings.Contains(w.Body.String(), `"Sinus Rhythm"`) {
		t.Errorf("labels = %s", w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/annotations/search?annotated_by=dr_a", nil)
	var res AnnotationSearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if len(res.Records) != 1 || res.Records[0].Key != "a.json" {
		t.Errorf("search = %+v", res)
	}
}

func TestVocabulary(t *testing.T) {
	router, _ := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/vocabulary", nil)
	var v VocabularyResponse
	_ = json.Unmarshal(w.Body.Bytes(), &v)
	if len(v.Labels) != len(models.Vocabulary) {
		t.Errorf("labels = %d, want %d", len(v.Labels), len(models.Vocabulary))
	}
}

func TestSessionFlow(t *testing.T) {
	router, docs := testEnv(t, "")
	addDoc(t, docs, "one.pdf")
	addDoc(t, docs, "two.pdf")

	w := do(t, router, http.MethodPost, "/sessions", CreateSessionRequest{Annotator: "dr"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create session = %d", w.Code)
	}
	var v SessionView
	_ = json.Unmarshal(w.Body.Bytes(), &v)
	if v.ID == "" || v.Position.Number != 1 || v.Position.Total != 2 {
		t.Fatalf("view = %+v", v)
	}

	w = do(t, router, http.MethodPost, "/sessions/"+v.ID+"/next", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &v)
	if v.Position.Number != 2 {
		t.Errorf("after next = %d", v.Position.Number)
	}
	w = do(t, router, http.MethodPost, "/sessions/"+v.ID+"/next", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &v)
	if v.Position.Number != 2 {
		t.Errorf("next past end = %d, want clamped 2", v.Position.Number)
	}

	w = do(t, router, http.MethodPost, "/sessions/"+v.ID+"/jump", JumpRequest{Key: "nope.pdf"})
	if w.Code != http.StatusNotFound {
		t.Errorf("jump to unknown = %d, want 404", w.Code)
	}

	w = do(t, router, http.MethodPost, "/sessions/"+v.ID+"/sideways", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown action = %d, want 404", w.Code)
	}

	w = do(t, router, http.MethodDelete, "/sessions/"+v.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}
	w = do(t, router, http.MethodGet, "/sessions/"+v.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("deleted session = %d, want 404", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	router, _ := testEnv(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	// Minimal SSE handler stub: writes headers and blocks until context done.
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		<-r.Context().Done()
	})
	router, _ := testEnvWithSSE(t, "tok", sseHandler)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE without token = %d, want 401", w.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req = httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with token = %d, want 200", w.Code)
	}
}

// Upload tests.

func upload(t *testing.T, router http.Handler, files map[string][]byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write(data)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUpload_PDFAndZip(t *testing.T) {
	router, docs := testEnv(t, "")
	w := upload(t, router, map[string][]byte{
		"single.pdf": testutil.MinimalPDF(1),
		"batch.zip":  testutil.Zip(t, map[string][]byte{"in/zipped.pdf": testutil.MinimalPDF(2)}),
		"broken.pdf": []byte("nope"),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var rep UploadReport
	_ = json.Unmarshal(w.Body.Bytes(), &rep)
	if len(rep.Succeeded) != 2 || len(rep.Failed) != 1 {
		t.Errorf("report = %+v", rep)
	}
	if _, err := docs.Read(context.Background(), "zipped.pdf"); err != nil {
		t.Errorf("zipped.pdf not stored: %v", err)
	}
}

func TestUpload_AllFailed(t *testing.T) {
	router, _ := testEnv(t, "")
	w := upload(t, router, map[string][]byte{"notes.txt": []byte("x")})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("all failed = %d, want 422", w.Code)
	}
}

func TestUpload_MissingFilesField(t *testing.T) {
	router, _ := testEnv(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("wrong", "data")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing field = %d, want 400", w.Code)
	}
}
