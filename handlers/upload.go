package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxUploadSize = 10 << 20 // 10MB

type UploadHandler struct {
	uploadDir string
	logger    *zap.Logger
}

func NewUploadHandler(uploadDir string, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{
		uploadDir: uploadDir,
		logger:    logger,
	}
}

// UploadTemplate accepts an Excel workbook for the catalog.
func (h *UploadHandler) UploadTemplate(c *gin.Context) {
	file, err := c.FormFile("template")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "No template file uploaded"})
		return
	}

	if !isExcelFile(file) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Only Excel files are allowed"})
		return
	}

	h.saveUpload(c, file, "templates", "template")
}

// UploadImage accepts a catalog image (main image or thumbnail).
func (h *UploadHandler) UploadImage(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "No image file uploaded"})
		return
	}

	if !strings.HasPrefix(file.Header.Get("Content-Type"), "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Only image files are allowed"})
		return
	}

	h.saveUpload(c, file, "images", "image")
}

func (h *UploadHandler) saveUpload(c *gin.Context, file *multipart.FileHeader, subdir, field string) {
	if file.Size > maxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"message": "File exceeds the 10MB limit"})
		return
	}

	filename := uniqueFilename(field, filepath.Ext(file.Filename))
	dst := filepath.Join(h.uploadDir, subdir, filename)

	if err := c.SaveUploadedFile(file, dst); err != nil {
		h.logger.Error("Failed to save uploaded file", zap.String("field", field), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to save uploaded file"})
		return
	}

	h.logger.Info("File uploaded",
		zap.String("field", field),
		zap.String("filename", filename),
		zap.Int64("size", file.Size),
	)
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"filePath":     fmt.Sprintf("/uploads/%s/%s", subdir, filename),
		"originalName": file.Filename,
		"fileSize":     file.Size,
		"fileType":     file.Header.Get("Content-Type"),
	})
}

func isExcelFile(file *multipart.FileHeader) bool {
	switch file.Header.Get("Content-Type") {
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-excel":
		return true
	}
	// Content-Type is client-supplied; accept by extension as well.
	ext := strings.ToLower(filepath.Ext(file.Filename))
	return ext == ".xlsx" || ext == ".xls"
}

func uniqueFilename(field, ext string) string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%s-%d-%s%s", field, time.Now().UnixNano(), hex.EncodeToString(buf), ext)
}
