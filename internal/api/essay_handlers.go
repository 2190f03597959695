package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"toolbox/internal/model"
	"toolbox/internal/tts"
	"toolbox/internal/utils"
)

type createEssayRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	VoiceID string `json:"voiceId"`
}

type processEssayRequest struct {
	VoiceID string `json:"voiceId"`
}

// listEssays returns all essays, newest first. Completed essays get a direct
// audio link for the dashboard player.
func (h *Handler) listEssays(c *gin.Context) {
	essays, err := h.store.ListEssays(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	for i := range essays {
		decorateAudioURL(&essays[i])
	}

	utils.Success(c, gin.H{"items": essays})
}

// createEssay validates input, persists the record and queues audio
// processing. The response does not wait for synthesis; clients poll the
// record's status.
func (h *Handler) createEssay(c *gin.Context) {
	var req createEssayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "invalid request body")
		return
	}

	// Validation happens before anything is persisted.
	if strings.TrimSpace(req.Content) == "" {
		h.writeError(c, fmt.Errorf("content is required: %w", model.ErrValidation))
		return
	}

	title := req.Title
	if title == "" {
		title = model.DefaultTitle
	}
	voice := req.VoiceID
	if voice == "" {
		voice = tts.DefaultVoice
	}

	essay, err := h.store.CreateEssay(c.Request.Context(), title, req.Content, voice)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.processor.Start(essay.ID, voice)

	utils.SuccessStatus(c, http.StatusCreated, gin.H{"essayId": essay.ID})
}

// getEssay returns a single essay record.
func (h *Handler) getEssay(c *gin.Context) {
	essay, err := h.store.GetEssay(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	decorateAudioURL(essay)
	utils.Success(c, gin.H{"essay": essay})
}

// deleteEssay removes an essay record. No cascading state: the record store
// drops the attached audio with the record.
func (h *Handler) deleteEssay(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.DeleteEssay(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}

	utils.Success(c, gin.H{"essayId": id})
}

// processEssay re-triggers audio processing, optionally with a new voice.
// It answers as soon as the record is marked processing.
func (h *Handler) processEssay(c *gin.Context) {
	id := c.Param("id")

	// The body is optional; an absent voiceId keeps the stored voice.
	var req processEssayRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.processor.Trigger(c.Request.Context(), id, req.VoiceID); err != nil {
		h.writeError(c, err)
		return
	}

	utils.Success(c, gin.H{"essayId": id})
}

// getEssayAudio streams the synthesized MP3 for an essay.
func (h *Handler) getEssayAudio(c *gin.Context) {
	contentType, data, err := h.store.GetAudio(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Data(http.StatusOK, contentType, data)
}

func decorateAudioURL(essay *model.Essay) {
	if essay.HasAudio() {
		essay.AudioURL = "/api/essays/" + essay.ID + "/audio"
	}
}
