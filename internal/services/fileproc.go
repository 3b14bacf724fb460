package services

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"

	"conversa-backend/internal/logger"
	"conversa-backend/internal/models"

	"github.com/disintegration/imaging"
	"github.com/ledongthuc/pdf"
	"github.com/sirupsen/logrus"
	"github.com/unidoc/unioffice/document"
	"github.com/xuri/excelize/v2"

	// Register webp so image verification accepts webp uploads.
	_ "golang.org/x/image/webp"
)

// DetectFileType classifies an upload by filename extension, falling back to
// substring matching on the declared content type. Anything unrecognized is
// treated as an image rather than rejected.
func DetectFileType(filename, contentType string) models.FileType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return models.FileTypePDF
	case ".docx":
		return models.FileTypeDocx
	case ".xlsx":
		return models.FileTypeXlsx
	case ".png", ".jpg", ".jpeg", ".webp":
		return models.FileTypeImage
	}

	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "pdf"):
		return models.FileTypePDF
	case strings.Contains(ct, "word"), strings.Contains(ct, "document"):
		return models.FileTypeDocx
	case strings.Contains(ct, "sheet"), strings.Contains(ct, "excel"):
		return models.FileTypeXlsx
	}
	return models.FileTypeImage
}

// ExtractText extracts plain text from a PDF, DOCX or XLSX payload. Images
// yield nil. Extraction failures never propagate: they are converted into a
// placeholder string so the surrounding request can proceed.
func ExtractText(data []byte, fileType models.FileType) *string {
	var text string
	var err error

	switch fileType {
	case models.FileTypePDF:
		text, err = extractPDFText(data)
	case models.FileTypeDocx:
		text, err = extractDocxText(data)
	case models.FileTypeXlsx:
		text, err = extractXlsxText(data)
	default:
		return nil
	}

	if err != nil {
		logger.WithFields(logrus.Fields{
			"fileType": fileType,
			"error":    err.Error(),
		}).Warn("Text extraction failed, storing placeholder")
		placeholder := fmt.Sprintf("[Error extracting text: %v]", err)
		return &placeholder
	}
	return &text
}

func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var parts []string
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"page":  i,
				"error": err.Error(),
			}).Warn("Failed to extract text from PDF page")
			continue
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		parts = append(parts, pageText)
	}
	return strings.Join(parts, "\n\n"), nil
}

func extractDocxText(data []byte) (string, error) {
	doc, err := document.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open DOCX: %w", err)
	}
	defer doc.Close()

	var parts []string
	for _, para := range doc.Paragraphs() {
		var b strings.Builder
		for _, run := range para.Runs() {
			b.WriteString(run.Text())
		}
		if text := b.String(); strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func extractXlsxText(data []byte) (string, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to open XLSX: %w", err)
	}
	defer wb.Close()

	var parts []string
	for _, sheet := range wb.GetSheetList() {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}

		// GetRows drops trailing empty cells; pad every row to the
		// sheet's width so empty cells still render as blanks.
		maxCols := 0
		for _, row := range rows {
			if len(row) > maxCols {
				maxCols = len(row)
			}
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			for len(row) < maxCols {
				row = append(row, "")
			}
			lines = append(lines, strings.Join(row, " | "))
		}
		if len(lines) > 0 {
			parts = append(parts, fmt.Sprintf("Sheet: %s\n%s", sheet, strings.Join(lines, "\n")))
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// ImageToBase64 verifies the payload decodes as an image and returns it as a
// data URI suitable for inline transport to the completion API.
func ImageToBase64(data []byte, contentType string) (string, error) {
	if _, err := imaging.Decode(bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("invalid image data: %w", err)
	}
	b64 := base64.StdEncoding.EncodeToString(data)
	return fmt.Sprintf("data:%s;base64,%s", contentType, b64), nil
}
