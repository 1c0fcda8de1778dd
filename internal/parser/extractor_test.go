package parser

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"code.sajari.com/docconv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTikaExtractor_ExtractTextFromBytes(t *testing.T) {
	var gotHeaders http.Header
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tika":
			gotHeaders = r.Header.Clone()
			gotBody, _ = io.ReadAll(r.Body)
			assert.Equal(t, http.MethodPut, r.Method)
			_, _ = w.Write([]byte("Jane Doe\nSkills\nGo"))
		case "/meta":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"xmpTPg:NPages": "2", "X-Parsed-By": "org.apache.tika.parser.pdf.PDFParser"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	extractor := NewTikaExtractor(server.URL+"/", WithOCR(true), WithTimeout(5*time.Second))
	text, meta, err := extractor.ExtractTextFromBytes(context.Background(), []byte("%PDF-1.4"), "uploads/Jane.PDF", nil)
	require.NoError(t, err)

	assert.Equal(t, "Jane Doe\nSkills\nGo", text)
	assert.Equal(t, []byte("%PDF-1.4"), gotBody)
	assert.Equal(t, "application/pdf", gotHeaders.Get("Content-Type"), "扩展名大小写不敏感")
	assert.Equal(t, "ocr_only", gotHeaders.Get(tikaHeaderOCRStrategy), "开启 OCR 时 PDF 应使用 ocr_only")
	assert.Equal(t, "Jane.PDF", gotHeaders.Get(tikaHeaderResourceName))
	assert.Equal(t, "text/plain", gotHeaders.Get("Accept"))

	assert.Equal(t, "tika", meta["extractor"])
	assert.Equal(t, true, meta["ocr"])
	assert.Equal(t, "2", meta["xmpTPg:NPages"], "精简模式应保留页数")
	_, hasParsedBy := meta["X-Parsed-By"]
	assert.False(t, hasParsedBy, "精简模式不应保留非关键字段")
}

func TestTikaExtractor_DocxSkipsOCR(t *testing.T) {
	var ocrHeader, contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ocrHeader = r.Header.Get(tikaHeaderOCRStrategy)
		contentType = r.Header.Get("Content-Type")
		_, _ = w.Write([]byte("docx text"))
	}))
	defer server.Close()

	extractor := NewTikaExtractor(server.URL, WithOCR(true), WithMinimalMetadata(false))
	text, meta, err := extractor.ExtractTextFromBytes(context.Background(), []byte("PK"), "cv.docx", nil)
	require.NoError(t, err)
	assert.Equal(t, "docx text", text)
	assert.Empty(t, ocrHeader, "非 PDF 文件不应设置 OCR 策略")
	assert.Equal(t, tikaContentTypes[".docx"], contentType)
	assert.Equal(t, false, meta["ocr"])
}

func TestTikaExtractor_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	extractor := NewTikaExtractor(server.URL)
	_, _, err := extractor.ExtractTextFromBytes(context.Background(), []byte("x"), "a.pdf", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestDocconvExtractor_UnsupportedExtension(t *testing.T) {
	extractor := NewDocconvExtractor()
	_, _, err := extractor.ExtractTextFromBytes(context.Background(), []byte("x"), "cv.pdf", nil)
	assert.Error(t, err, "docconv 只处理 Office 格式")
}

func TestDocconvExtractor_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewDocconvExtractor().ExtractTextFromBytes(ctx, []byte("PK"), "cv.docx", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDocconvExtractor_CancelDuringConvert(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	extractor := NewDocconvExtractor()
	extractor.convert = func(io.Reader, string, bool) (*docconv.Response, error) {
		<-release
		return &docconv.Response{Body: "late"}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, _, err := extractor.ExtractTextFromBytes(ctx, []byte("PK"), "cv.docx", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second, "ctx 结束后不应等待转换完成")
}

func TestDocconvExtractor_ConvertResult(t *testing.T) {
	extractor := NewDocconvExtractor()
	var gotMime string
	extractor.convert = func(_ io.Reader, mimeType string, _ bool) (*docconv.Response, error) {
		gotMime = mimeType
		return &docconv.Response{Body: "Jane Doe\nSkills\nGo", Meta: map[string]string{"Author": "Jane"}}, nil
	}

	text, meta, err := extractor.ExtractTextFromBytes(context.Background(), []byte("PK"), "CV.DOCX", nil)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe\nSkills\nGo", text)
	assert.Equal(t, docconvMimeTypes[".docx"], gotMime, "扩展名不区分大小写")
	assert.Equal(t, "Jane", meta["Author"])
	assert.Equal(t, "docconv", meta["extractor"])

	extractor.convert = func(io.Reader, string, bool) (*docconv.Response, error) {
		return &docconv.Response{Error: "corrupt"}, nil
	}
	_, _, err = extractor.ExtractTextFromBytes(context.Background(), []byte("PK"), "cv.docx", nil)
	assert.ErrorContains(t, err, "corrupt")
}

func TestEinoPDFTextExtractor_InvalidPDF(t *testing.T) {
	extractor, err := NewEinoPDFTextExtractor(context.Background(), WithEinoTimeout(5*time.Second))
	require.NoError(t, err)

	_, _, err = extractor.ExtractTextFromBytes(context.Background(), []byte("not a pdf"), "broken.pdf", nil)
	assert.Error(t, err, "非 PDF 内容应返回错误")
}
