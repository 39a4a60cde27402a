package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"catalogsync/internal/logger"
	"catalogsync/internal/reconcile"
	"catalogsync/internal/services/syncrun"
)

type SyncHandler struct {
	service *syncrun.Service
	logger  *logger.Logger
}

func NewSyncHandler(service *syncrun.Service, logger *logger.Logger) *SyncHandler {
	return &SyncHandler{
		service: service,
		logger:  logger,
	}
}

func (h *SyncHandler) Check(c *gin.Context) {
	h.run(c, reconcile.OpCheck)
}

func (h *SyncHandler) Missing(c *gin.Context) {
	h.run(c, reconcile.OpSyncMissing)
}

func (h *SyncHandler) Stock(c *gin.Context) {
	h.run(c, reconcile.OpStockOnly)
}

func (h *SyncHandler) Fields(c *gin.Context) {
	h.run(c, reconcile.OpAllFields)
}

type confirmRequest struct {
	Confirm bool `json:"confirm"`
}

// Comprehensive deletes rows, so the caller must confirm explicitly.
func (h *SyncHandler) Comprehensive(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Confirm {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Comprehensive sync deletes products missing from the store; send {\"confirm\": true} to proceed"})
		return
	}
	h.run(c, reconcile.OpComprehensive)
}

// run executes op inline, or queues it for the worker when ?async=true.
func (h *SyncHandler) run(c *gin.Context, op reconcile.Operation) {
	projectID := c.Param("id")

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		req, err := h.service.Enqueue(c.Request.Context(), projectID, op, "api")
		if err != nil {
			respondError(c, h.logger, err, "Failed to queue sync")
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"data": req})
		return
	}

	// a client that hangs up does not abort a run halfway through
	result, err := h.service.Run(context.WithoutCancel(c.Request.Context()), projectID, op)
	if err != nil {
		respondError(c, h.logger, err, "Sync failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
