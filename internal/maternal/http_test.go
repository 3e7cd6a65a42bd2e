package maternal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type stubFileStore struct {
	saved   int
	removed int
	err     error
}

func (s *stubFileStore) Save(maternalID int64, ext string, data []byte) (string, string, error) {
	if s.err != nil {
		return "", "", s.err
	}
	s.saved++
	return "file-stub", fmt.Sprintf("/tmp/%d/file-stub%s", maternalID, ext), nil
}

func (s *stubFileStore) Remove(path string) error {
	s.removed++
	return nil
}

func newTestHandlerRouter(t *testing.T) (*gin.Engine, *stubFileStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := newTestRepository(t)
	files := &stubFileStore{}
	handler := NewHandler(repo, files, 1024*1024)

	router := gin.New()
	router.POST("/api/v2/maternal", handler.Create)
	router.GET("/api/v2/maternal", handler.List)
	router.GET("/api/v2/maternal/:maternal_id", handler.Get)
	router.PUT("/api/v2/maternal/:maternal_id/info", handler.UpdateInfo)
	router.PUT("/api/v2/maternal/:maternal_id/pregnancy_history", handler.UpdatePregnancyHistory)
	router.PUT("/api/v2/maternal/:maternal_id/health_condition", handler.UpdateHealthCondition)
	router.DELETE("/api/v2/maternal/:maternal_id", handler.Delete)
	router.POST("/api/v2/maternal/:maternal_id/files", handler.UploadFile)
	router.GET("/api/v2/maternal/:maternal_id/files", handler.ListFiles)
	return router, files
}

type maternalEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, maternalEnvelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env maternalEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return rec, env
}

func createViaAPI(t *testing.T, router *gin.Engine) Info {
	t.Helper()
	rec, env := doJSON(t, router, http.MethodPost, "/api/v2/maternal", gin.H{
		"maternal_name": "山田花子",
		"maternal_age":  29,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var info Info
	if err := json.Unmarshal(env.Data, &info); err != nil {
		t.Fatalf("failed to decode created info: %v", err)
	}
	return info
}

func TestCreateHandler(t *testing.T) {
	router, _ := newTestHandlerRouter(t)
	info := createViaAPI(t, router)
	if info.ID == 0 || info.MaternalName != "山田花子" {
		t.Fatalf("unexpected created info: %+v", info)
	}
}

func TestGetHandlerNotFound(t *testing.T) {
	router, _ := newTestHandlerRouter(t)
	rec, env := doJSON(t, router, http.MethodGet, "/api/v2/maternal/999", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if env.Status != "error" {
		t.Fatalf("envelope status = %s, want error", env.Status)
	}
}

func TestGetHandlerInvalidID(t *testing.T) {
	router, _ := newTestHandlerRouter(t)
	rec, _ := doJSON(t, router, http.MethodGet, "/api/v2/maternal/abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUpdatePregnancyHistoryHandler(t *testing.T) {
	router, _ := newTestHandlerRouter(t)
	info := createViaAPI(t, router)

	path := fmt.Sprintf("/api/v2/maternal/%d/pregnancy_history", info.ID)
	rec, env := doJSON(t, router, http.MethodPut, path, gin.H{"pregnancy_history": "経産婦、前回帝王切開"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var updated Info
	if err := json.Unmarshal(env.Data, &updated); err != nil {
		t.Fatalf("failed to decode updated info: %v", err)
	}
	if updated.PregnancyHistory != "経産婦、前回帝王切開" {
		t.Fatalf("pregnancy_history = %q", updated.PregnancyHistory)
	}
	if updated.MaternalName != "山田花子" {
		t.Fatalf("unrelated field changed: %+v", updated)
	}
}

func TestUpdateHealthConditionHandlerMissingBody(t *testing.T) {
	router, _ := newTestHandlerRouter(t)
	info := createViaAPI(t, router)

	path := fmt.Sprintf("/api/v2/maternal/%d/health_condition", info.ID)
	rec, _ := doJSON(t, router, http.MethodPut, path, gin.H{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDeleteHandler(t *testing.T) {
	router, _ := newTestHandlerRouter(t)
	info := createViaAPI(t, router)

	path := fmt.Sprintf("/api/v2/maternal/%d", info.ID)
	rec, _ := doJSON(t, router, http.MethodDelete, path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec, _ = doJSON(t, router, http.MethodGet, path, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status after delete = %d, want 404", rec.Code)
	}
}

func TestUploadFileHandler(t *testing.T) {
	router, files := newTestHandlerRouter(t)
	info := createViaAPI(t, router)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fileWriter, err := writer.CreateFormFile("file", "echo.pdf")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := fileWriter.Write([]byte("%PDF-1.4\n% dummy pdf content\n")); err != nil {
		t.Fatalf("failed to write file content: %v", err)
	}
	if err := writer.WriteField("file_desc", "妊婦健診エコー"); err != nil {
		t.Fatalf("failed to write field: %v", err)
	}
	if err := writer.WriteField("check_date", "2026-08-01"); err != nil {
		t.Fatalf("failed to write field: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	path := fmt.Sprintf("/api/v2/maternal/%d/files", info.ID)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if files.saved != 1 {
		t.Fatalf("saved = %d, want 1", files.saved)
	}

	listRec, env := doJSON(t, router, http.MethodGet, path, nil)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list status = %d", listRec.Code)
	}
	var listed []MedicalFile
	if err := json.Unmarshal(env.Data, &listed); err != nil {
		t.Fatalf("failed to decode files: %v", err)
	}
	if len(listed) != 1 || listed[0].FileName != "echo.pdf" {
		t.Fatalf("unexpected files: %+v", listed)
	}
	if listed[0].FileType != "application/pdf" {
		t.Fatalf("file_type = %q, want application/pdf", listed[0].FileType)
	}
}

func TestUploadFileHandlerUnknownMaternal(t *testing.T) {
	router, _ := newTestHandlerRouter(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fileWriter, err := writer.CreateFormFile("file", "echo.pdf")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := fileWriter.Write([]byte("dummy")); err != nil {
		t.Fatalf("failed to write file content: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v2/maternal/999/files", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
