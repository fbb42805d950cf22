// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"docuchat-go/internal/model"
	"docuchat-go/internal/pipeline"
	"docuchat-go/internal/service"
	"docuchat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

// Upload 处理文档上传请求。请求体是一批 (filename, base64Content)，
// 任一文件失败则整个调用失败，响应中标明出错的文件。
func (h *DocumentHandler) Upload(c *gin.Context) {
	var files []model.UploadFileInput
	if err := c.ShouldBindJSON(&files); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "请求体格式错误"})
		return
	}
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "没有待上传的文件"})
		return
	}

	if err := h.docService.Upload(c.Request.Context(), files); err != nil {
		log.Error("Upload: ingestion failed", err)
		status := http.StatusInternalServerError
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) && stageErr.Stage == pipeline.StageExtract {
			// 源文件损坏属于客户端问题，不值得重试
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// List 返回所有已存储的原始文档。
func (h *DocumentHandler) List(c *gin.Context) {
	infos, err := h.docService.List(c.Request.Context())
	if err != nil {
		log.Error("List: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取文档列表失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "获取文档列表成功",
		"data":    infos,
	})
}

// Status 返回摄取台账中的全部文档记录。
func (h *DocumentHandler) Status(c *gin.Context) {
	docs, err := h.docService.Status()
	if err != nil {
		log.Error("Status: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取摄取状态失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "获取摄取状态成功",
		"data":    docs,
	})
}

// Download 为文档生成限时下载链接。
func (h *DocumentHandler) Download(c *gin.Context) {
	fileName := c.Query("fileName")
	if fileName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少文件名"})
		return
	}

	url, err := h.docService.DownloadURL(c.Request.Context(), fileName)
	if err != nil {
		log.Warnf("Download: failed for file %s, err: %v", fileName, err)
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "文件下载链接生成成功",
		"data":    gin.H{"url": url},
	})
}

// Reindex 投递一个重建索引任务。
func (h *DocumentHandler) Reindex(c *gin.Context) {
	fileName := c.Param("fileName")
	if fileName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少文件名"})
		return
	}

	if err := h.docService.Reindex(c.Request.Context(), fileName); err != nil {
		log.Warnf("Reindex: failed for file %s, err: %v", fileName, err)
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "重建索引任务已提交",
	})
}
