package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openscholar/exchange/app/database"
	"github.com/openscholar/exchange/app/doi"
	"github.com/openscholar/exchange/app/tasks"
)

func NewHandler(articleRepo database.ArticleRepository, journalRepo database.JournalRepository,
	responder ResponderInterface, registrar *doi.Registrar, scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		articleRepo: articleRepo,
		journalRepo: journalRepo,
		responder:   responder,
		registrar:   registrar,
		scheduler:   scheduler,
	}
}

// GetOAI serves the harvest endpoint. Protocol-level errors are reported
// inside the XML body at 200, per the harvesting standard.
func (h *Handler) GetOAI(c *gin.Context) {
	body, status := h.responder.Respond(c.Request.URL.Query())

	c.Header("Content-Type", "text/xml; charset=UTF-8")
	c.String(status, body)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if articleCount, err := h.articleRepo.GetArticleCount(); err == nil {
		health["published_articles"] = articleCount
	}

	if journalCount, err := h.journalRepo.GetJournalCount(); err == nil {
		health["journals"] = journalCount
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{}

	if articleCount, err := h.articleRepo.GetArticleCount(); err == nil {
		stats["published_articles"] = articleCount
	}

	if journalCount, err := h.journalRepo.GetJournalCount(); err == nil {
		stats["journals"] = journalCount
	}

	if doiStats, err := h.articleRepo.GetDOIStats(); err == nil {
		stats["registrations"] = map[string]int{
			"unset":      doiStats.Unset,
			"pending":    doiStats.Pending,
			"registered": doiStats.Registered,
			"failed":     doiStats.Failed,
		}
	}

	c.JSON(http.StatusOK, stats)
}

// APIRegisterDOI triggers registration for a published article. The work is
// enqueued for the background workers; the response only confirms acceptance.
func (h *Handler) APIRegisterDOI(c *gin.Context) {
	article, ok := h.loadArticle(c)
	if !ok {
		return
	}

	if article.DOI != "" {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Article already has a registered DOI",
			"doi":     article.DOI,
		})
		return
	}

	if article.Status != database.StatusPublished {
		c.JSON(http.StatusConflict, gin.H{"error": "Article is not published"})
		return
	}

	if article.DOIStatus == database.DOIStatusPending {
		c.JSON(http.StatusConflict, gin.H{"error": "Registration already in progress"})
		return
	}

	task := tasks.NewRegisterDOITask(article.ID, h.registrar)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing registration task", "article", article.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue registration task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Registration task enqueued successfully",
		"task": gin.H{
			"id":   task.ID,
			"type": task.Type,
		},
	})
}

// APIRetryDOI clears a failed registration and runs the full sequence again
func (h *Handler) APIRetryDOI(c *gin.Context) {
	article, ok := h.loadArticle(c)
	if !ok {
		return
	}

	if article.DOIStatus == database.DOIStatusPending {
		c.JSON(http.StatusConflict, gin.H{"error": "Registration already in progress"})
		return
	}

	task := tasks.NewRetryDOITask(article.ID, h.registrar)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing retry task", "article", article.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue retry task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Retry task enqueued successfully",
		"task": gin.H{
			"id":   task.ID,
			"type": task.Type,
		},
	})
}

// APIGetRegistration reports an article's registration state
func (h *Handler) APIGetRegistration(c *gin.Context) {
	article, ok := h.loadArticle(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"article_id": article.ID,
		"slug":       article.Slug,
		"status":     article.DOIStatus,
		"doi":        article.DOI,
		"batch_id":   article.DOIBatchID,
	})
}

// loadArticle resolves the :id path parameter, accepting either the database
// id or the URL slug.
func (h *Handler) loadArticle(c *gin.Context) (*database.Article, bool) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing article id parameter"})
		return nil, false
	}

	article, err := h.articleRepo.GetArticle(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_article", "article", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return nil, false
	}

	if article == nil {
		article, err = h.articleRepo.GetArticleBySlug(id)
		if err != nil {
			slog.Error("Database error", "operation", "get_article_by_slug", "article", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return nil, false
		}
	}

	if article == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Article not found"})
		return nil, false
	}

	return article, true
}
