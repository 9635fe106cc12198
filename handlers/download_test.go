package handlers

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
)

func setupDownloadTest(t *testing.T, publicDir string) (*DownloadHandler, sqlmock.Sqlmock, *gin.Engine) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}

	handler := NewDownloadHandler(db, publicDir, zaptest.NewLogger(t))

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/api/download/:orderId/:templateId/:token", handler.Download)

	return handler, mock, router
}

func writeArtifact(t *testing.T, publicDir, relPath, content string) {
	t.Helper()
	fullPath := filepath.Join(publicDir, relPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		t.Fatalf("Failed to create artifact directory: %v", err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write artifact: %v", err)
	}
}

func TestDownload_Success(t *testing.T) {
	publicDir := t.TempDir()
	writeArtifact(t, publicDir, "uploads/templates/dashboard.xlsx", "xlsx-bytes")

	handler, mock, router := setupDownloadTest(t, publicDir)
	defer handler.db.Close()

	link := "/api/download/12/7/deadbeefdeadbeefdeadbeefdeadbeef"
	mock.ExpectQuery("SELECT download_link FROM orders WHERE id = \\$1").
		WithArgs(12).
		WillReturnRows(sqlmock.NewRows([]string{"download_link"}).AddRow(link))
	mock.ExpectQuery("SELECT name, file_path FROM templates WHERE id = \\$1").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"name", "file_path"}).
			AddRow("Financial Dashboard", "/uploads/templates/dashboard.xlsx"))
	mock.ExpectExec("UPDATE orders SET download_count").
		WithArgs(12).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest("GET", link, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if w.Body.String() != "xlsx-bytes" {
		t.Errorf("Expected file contents to be streamed, got %q", w.Body.String())
	}
	disposition := w.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, "Financial Dashboard.xlsx") {
		t.Errorf("Expected attachment filename in disposition, got %q", disposition)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestDownload_TokenMismatch(t *testing.T) {
	handler, mock, router := setupDownloadTest(t, t.TempDir())
	defer handler.db.Close()

	mock.ExpectQuery("SELECT download_link FROM orders WHERE id = \\$1").
		WithArgs(12).
		WillReturnRows(sqlmock.NewRows([]string{"download_link"}).
			AddRow("/api/download/12/7/deadbeefdeadbeefdeadbeefdeadbeef"))

	req := httptest.NewRequest("GET", "/api/download/12/7/00000000000000000000000000000000", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// A wrong token is indistinguishable from a missing order.
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestDownload_OrderNotFound(t *testing.T) {
	handler, mock, router := setupDownloadTest(t, t.TempDir())
	defer handler.db.Close()

	mock.ExpectQuery("SELECT download_link FROM orders WHERE id = \\$1").
		WithArgs(99).
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest("GET", "/api/download/99/7/deadbeefdeadbeefdeadbeefdeadbeef", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestDownload_InvalidOrderID(t *testing.T) {
	handler, mock, router := setupDownloadTest(t, t.TempDir())
	defer handler.db.Close()

	req := httptest.NewRequest("GET", "/api/download/abc/7/deadbeefdeadbeefdeadbeefdeadbeef", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unexpected database calls were made: %v", err)
	}
}

func TestDownload_FileMissing(t *testing.T) {
	handler, mock, router := setupDownloadTest(t, t.TempDir())
	defer handler.db.Close()

	link := "/api/download/12/7/deadbeefdeadbeefdeadbeefdeadbeef"
	mock.ExpectQuery("SELECT download_link FROM orders WHERE id = \\$1").
		WithArgs(12).
		WillReturnRows(sqlmock.NewRows([]string{"download_link"}).AddRow(link))
	mock.ExpectQuery("SELECT name, file_path FROM templates WHERE id = \\$1").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"name", "file_path"}).
			AddRow("Financial Dashboard", "/uploads/templates/gone.xlsx"))
	mock.ExpectExec("UPDATE orders SET download_count").
		WithArgs(12).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest("GET", link, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
	if !strings.Contains(w.Body.String(), "Template file unavailable") {
		t.Errorf("Expected unavailable message, got %s", w.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}
