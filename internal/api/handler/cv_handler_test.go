package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"strings"
	"sync"
	"testing"

	"cv-agent-go/internal/agent"
	"cv-agent-go/internal/api/handler"
	"cv-agent-go/internal/api/router"
	"cv-agent-go/internal/constants"
	"cv-agent-go/internal/cvparser"
	"cv-agent-go/internal/processor"
	"cv-agent-go/internal/session"
	"cv-agent-go/internal/storage"
	"cv-agent-go/internal/types"

	"github.com/cloudwego/eino/schema"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCV = "Jane Doe\njane@example.com\n\nSkills\nGo, SQL"

type plainTextExtractor struct{}

func (plainTextExtractor) ExtractTextFromBytes(_ context.Context, data []byte, _ string, _ interface{}) (string, map[string]interface{}, error) {
	return string(data), nil, nil
}

type fakeAssistant struct {
	mu      sync.Mutex
	reply   string
	err     error
	corpora []string
	queries []string
}

func (a *fakeAssistant) Answer(_ context.Context, query, corpusText string, _ []*schema.Message) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queries = append(a.queries, query)
	a.corpora = append(a.corpora, corpusText)
	return a.reply, a.err
}

type fakeDocuments map[string]*types.CVDocument

func (f fakeDocuments) GetDocument(_ context.Context, id string) (*types.CVDocument, error) {
	if doc, ok := f[id]; ok {
		return doc, nil
	}
	return nil, storage.ErrDocumentNotFound
}

func newTestServer(t *testing.T, assistant handler.Assistant, apiKeys []string, opts ...handler.HandlerOption) *server.Hertz {
	t.Helper()
	registry := processor.NewExtractorRegistry().Register(plainTextExtractor{}, ".pdf", ".docx")
	proc, err := processor.NewCVProcessor(processor.Components{
		Extractors: registry,
		Builder:    cvparser.NewRegexRecordBuilder(),
	})
	require.NoError(t, err)

	sessions := session.NewManager(session.NewMemoryCorpusStore(0), agent.NewInMemoryChatMemory(0))
	cvHandler, err := handler.NewCVHandler(proc, sessions, assistant, opts...)
	require.NoError(t, err)

	h := server.Default()
	router.RegisterRoutes(h, cvHandler, apiKeys)
	return h
}

func multipartBody(t *testing.T, files map[string]string, order ...string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, name := range order {
		part, err := writer.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func upload(t *testing.T, h *server.Hertz, sessionID string, files map[string]string, order ...string) *protocol.Response {
	body, contentType := multipartBody(t, files, order...)
	w := ut.PerformRequest(h.Engine, "POST", "/api/v1/cv/upload",
		&ut.Body{Body: body, Len: body.Len()},
		ut.Header{Key: "Content-Type", Value: contentType},
		ut.Header{Key: "X-Session-ID", Value: sessionID},
	)
	return w.Result()
}

func getJSON(t *testing.T, h *server.Hertz, method, path, sessionID string, out interface{}) int {
	t.Helper()
	w := ut.PerformRequest(h.Engine, method, path, nil, ut.Header{Key: "X-Session-ID", Value: sessionID})
	resp := w.Result()
	if out != nil {
		require.NoError(t, json.Unmarshal(resp.Body(), out), "响应不是合法 JSON: %s", resp.Body())
	}
	return resp.StatusCode()
}

func chat(h *server.Hertz, sessionID, payload string) *protocol.Response {
	body := bytes.NewBufferString(payload)
	w := ut.PerformRequest(h.Engine, "POST", "/api/v1/chat",
		&ut.Body{Body: body, Len: body.Len()},
		ut.Header{Key: "Content-Type", Value: "application/json"},
		ut.Header{Key: "X-Session-ID", Value: sessionID},
	)
	return w.Result()
}

func TestCVHandler_SessionFlow(t *testing.T) {
	assistant := &fakeAssistant{reply: "Jane knows Go."}
	h := newTestServer(t, assistant, nil)
	const sid = "session-flow"

	resp := upload(t, h, sid, map[string]string{"jane.pdf": testCV, "notes.txt": "ignored"}, "jane.pdf", "notes.txt")
	require.Equal(t, 200, resp.StatusCode(), string(resp.Body()))

	var up handler.UploadResponse
	require.NoError(t, json.Unmarshal(resp.Body(), &up))
	assert.Equal(t, sid, up.SessionID)
	assert.NotEmpty(t, up.BatchID)
	assert.Equal(t, 1, up.DocumentCount, "不支持的扩展名不应生成文档")
	assert.Equal(t, 1, up.RecordCount)
	require.Len(t, up.Warnings, 1)
	assert.Equal(t, processor.WarningUnsupportedExtension, up.Warnings[0].Kind)
	assert.Equal(t, "Unsupported file extension for file notes.txt. Skipping this file.", up.Warnings[0].Message)
	require.Len(t, up.Documents, 1)
	assert.Equal(t, types.DocumentStatusParsed, up.Documents[0].Status)

	var summary []handler.SummaryItem
	require.Equal(t, 200, getJSON(t, h, "GET", "/api/v1/cv/summary", sid, &summary))
	require.Len(t, summary, 1)
	assert.Equal(t, []string{"Go", "SQL"}, summary[0].Raw.Skills)
	assert.Contains(t, summary[0].PrettyJSON, "\n    \"personal_info\": {", "pretty_json 应使用 4 空格缩进")

	resp = chat(h, sid, `{"message":"  What does Jane know?  "}`)
	require.Equal(t, 200, resp.StatusCode(), string(resp.Body()))
	var reply handler.ChatResponse
	require.NoError(t, json.Unmarshal(resp.Body(), &reply))
	assert.Equal(t, "Jane knows Go.", reply.Reply)
	assert.Equal(t, []types.ChatTurn{
		{Role: types.RoleUser, Content: "What does Jane know?"},
		{Role: types.RoleAssistant, Content: "Jane knows Go."},
	}, reply.Conversation)
	require.Len(t, assistant.corpora, 1)
	assert.Equal(t, testCV, assistant.corpora[0], "对话应使用会话语料")

	var history handler.ChatResponse
	require.Equal(t, 200, getJSON(t, h, "GET", "/api/v1/chat", sid, &history))
	assert.Len(t, history.Conversation, 2)
	assert.Empty(t, history.Reply)

	require.Equal(t, 200, getJSON(t, h, "POST", "/api/v1/chat/clear", sid, nil))
	require.Equal(t, 200, getJSON(t, h, "GET", "/api/v1/chat", sid, &history))
	assert.Empty(t, history.Conversation, "清空后对话记录应为空")
	require.Equal(t, 200, getJSON(t, h, "GET", "/api/v1/cv/summary", sid, &summary))
	assert.Len(t, summary, 1, "清空对话不影响语料")

	require.Equal(t, 200, getJSON(t, h, "DELETE", "/api/v1/session", sid, nil))
	require.Equal(t, 200, getJSON(t, h, "GET", "/api/v1/cv/summary", sid, &summary))
	assert.Empty(t, summary, "销毁会话后摘要应为空")
}

func TestCVHandler_UploadReplacesCorpusAndHistory(t *testing.T) {
	assistant := &fakeAssistant{reply: "ok"}
	h := newTestServer(t, assistant, nil)
	const sid = "replace"

	require.Equal(t, 200, upload(t, h, sid, map[string]string{"a.pdf": "Alice"}, "a.pdf").StatusCode())
	require.Equal(t, 200, chat(h, sid, `{"message":"hi"}`).StatusCode())
	require.Equal(t, 200, upload(t, h, sid, map[string]string{"b.docx": "Bob", "c.pdf": "Carol"}, "b.docx", "c.pdf").StatusCode())

	var history handler.ChatResponse
	require.Equal(t, 200, getJSON(t, h, "GET", "/api/v1/chat", sid, &history))
	assert.Empty(t, history.Conversation, "新的上传应重置对话记录")

	require.Equal(t, 200, chat(h, sid, `{"message":"who?"}`).StatusCode())
	assert.Equal(t, "Bob"+constants.CorpusSeparator+"Carol", assistant.corpora[1], "语料应整体替换而不是合并")
}

func TestCVHandler_EmptyUpload(t *testing.T) {
	h := newTestServer(t, &fakeAssistant{}, nil)

	w := ut.PerformRequest(h.Engine, "POST", "/api/v1/cv/upload", nil)
	resp := w.Result()
	assert.Equal(t, 400, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), constants.MsgNoFilesSelected)

	resp = upload(t, h, "empty", map[string]string{})
	assert.Equal(t, 400, resp.StatusCode(), "没有文件字段的表单也是空批次")
}

func TestCVHandler_ChatValidation(t *testing.T) {
	assistant := &fakeAssistant{reply: "unused"}
	h := newTestServer(t, assistant, nil)

	for _, payload := range []string{`{"message":""}`, `{"message":"   "}`, `{}`, ``} {
		resp := chat(h, "v", payload)
		assert.Equal(t, 400, resp.StatusCode(), "payload %q", payload)
		assert.Contains(t, string(resp.Body()), constants.MsgEmptyChatMessage)
	}
	assert.Empty(t, assistant.queries, "空消息不应调用模型")

	resp := chat(h, "v", `not json`)
	assert.Equal(t, 400, resp.StatusCode())
}

func TestCVHandler_ChatErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"瞬时失败返回 503", &agent.AnswerError{Transient: true, Err: errors.New("timeout")}, 503},
		{"其他失败返回 502", &agent.AnswerError{Err: errors.New("bad request")}, 502},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakeAssistant{err: tt.err}, nil)
			resp := chat(h, "e", `{"message":"hello"}`)
			assert.Equal(t, tt.status, resp.StatusCode())

			var history handler.ChatResponse
			require.Equal(t, 200, getJSON(t, h, "GET", "/api/v1/chat", "e", &history))
			assert.Empty(t, history.Conversation, "失败的对话不应写入记录")
		})
	}
}

func TestCVHandler_SessionResolution(t *testing.T) {
	h := newTestServer(t, &fakeAssistant{}, nil)

	w := ut.PerformRequest(h.Engine, "GET", "/api/v1/chat", nil)
	minted := string(w.Result().Header.Peek("X-Session-ID"))
	assert.NotEmpty(t, minted, "缺少会话标识时应生成新的会话")
	cookie := protocol.AcquireCookie()
	defer protocol.ReleaseCookie(cookie)
	cookie.SetKey("cv_session")
	require.True(t, w.Result().Header.Cookie(cookie), "应写回会话 Cookie")
	assert.Equal(t, minted, string(cookie.Value()))

	w = ut.PerformRequest(h.Engine, "GET", "/api/v1/chat", nil, ut.Header{Key: "Cookie", Value: "cv_session=from-cookie"})
	var resp handler.ChatResponse
	require.NoError(t, json.Unmarshal(w.Result().Body(), &resp))
	assert.Equal(t, "from-cookie", resp.SessionID)

	w = ut.PerformRequest(h.Engine, "GET", "/api/v1/chat", nil,
		ut.Header{Key: "Cookie", Value: "cv_session=from-cookie"},
		ut.Header{Key: "X-Session-ID", Value: "from-header"},
	)
	require.NoError(t, json.Unmarshal(w.Result().Body(), &resp))
	assert.Equal(t, "from-header", resp.SessionID, "请求头优先于 Cookie")
}

func TestCVHandler_GetDocument(t *testing.T) {
	docs := fakeDocuments{"doc-1": {ID: "doc-1", OriginalFilename: "jane.pdf", Status: types.DocumentStatusParsed}}
	h := newTestServer(t, &fakeAssistant{}, nil, handler.WithDocumentReader(docs))

	var doc types.CVDocument
	require.Equal(t, 200, getJSON(t, h, "GET", "/api/v1/cv/documents/doc-1", "d", &doc))
	assert.Equal(t, "jane.pdf", doc.OriginalFilename)

	assert.Equal(t, 404, getJSON(t, h, "GET", "/api/v1/cv/documents/missing", "d", nil))

	h = newTestServer(t, &fakeAssistant{}, nil)
	assert.Equal(t, 503, getJSON(t, h, "GET", "/api/v1/cv/documents/doc-1", "d", nil), "未配置 MySQL 时不可用")
}

func TestNewCVHandler_RequiresDependencies(t *testing.T) {
	_, err := handler.NewCVHandler(nil, nil, nil)
	assert.Error(t, err)
}

func TestPrettyRecord(t *testing.T) {
	out, err := handler.PrettyRecord(cvparser.BuildRecord("Jane"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "{\n    \"personal_info\": {\n        \"emails\": []"), out)
}
