package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"cv-agent-go/internal/agent"
	"cv-agent-go/internal/constants"
	"cv-agent-go/internal/logger"
	"cv-agent-go/internal/processor"
	"cv-agent-go/internal/session"
	"cv-agent-go/internal/storage"
	"cv-agent-go/internal/types"

	"github.com/cloudwego/eino/schema"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
)

const (
	defaultSessionHeader = "X-Session-ID"
	defaultSessionCookie = "cv_session"
	uploadFormField      = "file"
)

// BatchProcessor 处理一次上传批次
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, files []types.UploadedFile) (*processor.BatchResult, error)
}

// Assistant 基于语料回答问题
type Assistant interface {
	Answer(ctx context.Context, query, corpusText string, history []*schema.Message) (string, error)
}

// DocumentReader 按 ID 读取已持久化的文档
type DocumentReader interface {
	GetDocument(ctx context.Context, documentID string) (*types.CVDocument, error)
}

// CVHandler 简历上传、摘要与对话接口
type CVHandler struct {
	processor     BatchProcessor
	sessions      *session.Manager
	assistant     Assistant
	documents     DocumentReader
	sessionHeader string
	sessionCookie string
	logger        zerolog.Logger
}

type HandlerOption func(*CVHandler)

// WithDocumentReader 启用 GET /cv/documents/:id
func WithDocumentReader(r DocumentReader) HandlerOption {
	return func(h *CVHandler) {
		h.documents = r
	}
}

func WithSessionKeys(header, cookie string) HandlerOption {
	return func(h *CVHandler) {
		if header != "" {
			h.sessionHeader = header
		}
		if cookie != "" {
			h.sessionCookie = cookie
		}
	}
}

func WithHandlerLogger(l zerolog.Logger) HandlerOption {
	return func(h *CVHandler) {
		h.logger = l
	}
}

// NewCVHandler 创建处理器，三个核心依赖都不能为空
func NewCVHandler(proc BatchProcessor, sessions *session.Manager, assistant Assistant, opts ...HandlerOption) (*CVHandler, error) {
	if proc == nil || sessions == nil || assistant == nil {
		return nil, errors.New("CVHandler 需要 processor、session manager 和 assistant")
	}
	h := &CVHandler{
		processor:     proc,
		sessions:      sessions,
		assistant:     assistant,
		sessionHeader: defaultSessionHeader,
		sessionCookie: defaultSessionCookie,
		logger:        logger.Component("cv_handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// UploadResponse POST /cv/upload 的响应
type UploadResponse struct {
	SessionID     string              `json:"session_id"`
	BatchID       string              `json:"batch_id"`
	DocumentCount int                 `json:"document_count"`
	RecordCount   int                 `json:"record_count"`
	Documents     []DocumentSummary   `json:"documents"`
	Warnings      []processor.Warning `json:"warnings"`
}

// DocumentSummary 上传响应中单个文档的概要
type DocumentSummary struct {
	ID               string               `json:"id"`
	OriginalFilename string               `json:"original_filename"`
	Status           types.DocumentStatus `json:"status"`
	StorageRef       string               `json:"storage_ref,omitempty"`
}

// SummaryItem GET /cv/summary 中的一条记录
type SummaryItem struct {
	Raw        *types.CVRecord `json:"raw"`
	PrettyJSON string          `json:"pretty_json"`
}

// ChatRequest POST /chat 的请求体
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse 对话接口的响应
type ChatResponse struct {
	SessionID    string           `json:"session_id"`
	Reply        string           `json:"reply,omitempty"`
	Conversation []types.ChatTurn `json:"conversation"`
}

// HandleUpload POST /api/v1/cv/upload
// 成功处理后替换会话语料并清空对话记录
func (h *CVHandler) HandleUpload(ctx context.Context, c *app.RequestContext) {
	sessionID := h.resolveSession(c)

	var files []types.UploadedFile
	form, err := c.MultipartForm()
	if err == nil {
		files, err = readUploadedFiles(form.File[uploadFormField])
		if err != nil {
			h.logger.Error().Err(err).Str("session_id", sessionID).Msg("读取上传文件失败")
			c.JSON(consts.StatusBadRequest, utils.H{"error": "读取上传文件失败"})
			return
		}
	}

	result, err := h.processor.ProcessBatch(ctx, files)
	if errors.Is(err, processor.ErrEmptyBatch) {
		c.JSON(consts.StatusBadRequest, utils.H{"error": constants.MsgNoFilesSelected})
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("处理上传批次失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
		return
	}

	if err := h.sessions.ReplaceCorpus(ctx, sessionID, result.Corpus); err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("替换会话语料失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "保存会话语料失败"})
		return
	}

	resp := UploadResponse{
		SessionID:     sessionID,
		BatchID:       result.Corpus.BatchID,
		DocumentCount: len(result.Documents),
		RecordCount:   len(result.Corpus.Records),
		Documents:     make([]DocumentSummary, 0, len(result.Documents)),
		Warnings:      result.Warnings,
	}
	if resp.Warnings == nil {
		resp.Warnings = []processor.Warning{}
	}
	for _, doc := range result.Documents {
		resp.Documents = append(resp.Documents, DocumentSummary{
			ID:               doc.ID,
			OriginalFilename: doc.OriginalFilename,
			Status:           doc.Status,
			StorageRef:       doc.StorageRef,
		})
	}

	h.logger.Info().
		Str("session_id", sessionID).
		Str("batch_id", resp.BatchID).
		Int("documents", resp.DocumentCount).
		Int("records", resp.RecordCount).
		Int("warnings", len(resp.Warnings)).
		Msg("上传批次处理完成")
	c.JSON(consts.StatusOK, resp)
}

// HandleSummary GET /api/v1/cv/summary
func (h *CVHandler) HandleSummary(ctx context.Context, c *app.RequestContext) {
	sessionID := h.resolveSession(c)

	items := []SummaryItem{}
	corpus, err := h.sessions.Corpus(ctx, sessionID)
	if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("读取会话语料失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "读取会话语料失败"})
		return
	}
	if corpus != nil {
		for _, record := range corpus.Records {
			pretty, err := PrettyRecord(record)
			if err != nil {
				c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
				return
			}
			items = append(items, SummaryItem{Raw: record, PrettyJSON: pretty})
		}
	}
	c.JSON(consts.StatusOK, items)
}

// PrettyRecord 以 4 个空格缩进渲染记录
func PrettyRecord(record *types.CVRecord) (string, error) {
	data, err := json.MarshalIndent(record, "", "    ")
	if err != nil {
		return "", fmt.Errorf("序列化简历记录失败: %w", err)
	}
	return string(data), nil
}

// HandleGetDocument GET /api/v1/cv/documents/:id
func (h *CVHandler) HandleGetDocument(ctx context.Context, c *app.RequestContext) {
	if h.documents == nil {
		c.JSON(consts.StatusServiceUnavailable, utils.H{"error": "未配置文档存储"})
		return
	}
	documentID := c.Param("id")
	if documentID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "id 不能为空"})
		return
	}

	doc, err := h.documents.GetDocument(ctx, documentID)
	if errors.Is(err, storage.ErrDocumentNotFound) {
		c.JSON(consts.StatusNotFound, utils.H{"error": "文档不存在"})
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("document_id", documentID).Msg("读取文档记录失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "读取文档记录失败"})
		return
	}
	c.JSON(consts.StatusOK, doc)
}

// HandleChat POST /api/v1/chat
func (h *CVHandler) HandleChat(ctx context.Context, c *app.RequestContext) {
	sessionID := h.resolveSession(c)

	var req ChatRequest
	if len(c.Request.Body()) > 0 {
		if err := c.BindJSON(&req); err != nil {
			c.JSON(consts.StatusBadRequest, utils.H{"error": "请求体不是合法的 JSON"})
			return
		}
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": constants.MsgEmptyChatMessage})
		return
	}

	corpusText, err := h.sessions.CorpusText(ctx, sessionID)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("读取会话语料失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "读取会话语料失败"})
		return
	}
	history, err := h.sessions.History(ctx, sessionID)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("读取对话记录失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "读取对话记录失败"})
		return
	}

	reply, err := h.assistant.Answer(ctx, message, corpusText, history)
	if err != nil {
		status := consts.StatusBadGateway
		if errors.Is(err, agent.ErrTransient) {
			status = consts.StatusServiceUnavailable
		}
		c.JSON(status, utils.H{"error": err.Error()})
		return
	}

	if err := h.sessions.AppendTurn(ctx, sessionID, message, reply); err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("写入对话记录失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "写入对话记录失败"})
		return
	}

	h.respondConversation(ctx, c, sessionID, reply)
}

// HandleHistory GET /api/v1/chat
func (h *CVHandler) HandleHistory(ctx context.Context, c *app.RequestContext) {
	h.respondConversation(ctx, c, h.resolveSession(c), "")
}

// HandleClearChat POST /api/v1/chat/clear
// 只清空对话记录，语料保留
func (h *CVHandler) HandleClearChat(ctx context.Context, c *app.RequestContext) {
	sessionID := h.resolveSession(c)
	if err := h.sessions.ClearHistory(ctx, sessionID); err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("清空对话记录失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "清空对话记录失败"})
		return
	}
	c.JSON(consts.StatusOK, ChatResponse{SessionID: sessionID, Conversation: []types.ChatTurn{}})
}

// HandleDestroySession DELETE /api/v1/session
func (h *CVHandler) HandleDestroySession(ctx context.Context, c *app.RequestContext) {
	sessionID := h.resolveSession(c)
	if err := h.sessions.Destroy(ctx, sessionID); err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("销毁会话失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "销毁会话失败"})
		return
	}
	c.JSON(consts.StatusOK, utils.H{"session_id": sessionID, "status": "destroyed"})
}

func (h *CVHandler) respondConversation(ctx context.Context, c *app.RequestContext, sessionID, reply string) {
	history, err := h.sessions.History(ctx, sessionID)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("读取对话记录失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "读取对话记录失败"})
		return
	}
	c.JSON(consts.StatusOK, ChatResponse{
		SessionID:    sessionID,
		Reply:        reply,
		Conversation: session.Turns(history),
	})
}

// resolveSession 依次读取请求头和 Cookie，都没有时生成新的会话 ID
// 结果总是写回响应头和 Cookie
func (h *CVHandler) resolveSession(c *app.RequestContext) string {
	sessionID := strings.TrimSpace(string(c.GetHeader(h.sessionHeader)))
	if sessionID == "" {
		sessionID = strings.TrimSpace(string(c.Cookie(h.sessionCookie)))
	}
	if sessionID == "" {
		sessionID = session.NewSessionID()
	}
	c.Header(h.sessionHeader, sessionID)
	c.SetCookie(h.sessionCookie, sessionID, 0, "/", "", protocol.CookieSameSiteLaxMode, false, true)
	return sessionID
}

// readUploadedFiles 按表单顺序读取文件内容
func readUploadedFiles(headers []*multipart.FileHeader) ([]types.UploadedFile, error) {
	files := make([]types.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("打开文件 %s 失败: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("读取文件 %s 失败: %w", fh.Filename, err)
		}
		files = append(files, types.UploadedFile{Filename: fh.Filename, Data: data})
	}
	return files, nil
}
