package api

import (
	"fmt"
	"net/http"
	"plugin-store/catalog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func parseAnnouncementID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBindError(c, fmt.Errorf("invalid announcement id: %w", err))
		return uuid.Nil, false
	}

	return id, true
}

func bindAnnouncement(c *gin.Context) (catalog.AnnouncementRequest, bool) {
	var req announcementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return catalog.AnnouncementRequest{}, false
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	return catalog.AnnouncementRequest{Title: req.Title, Text: req.Text, Active: active}, true
}

func (s *Server) listAnnouncements(c *gin.Context) {
	announcements, err := s.service.ListAnnouncements(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]announcementResponse, 0, len(announcements))
	for i := range announcements {
		out = append(out, newAnnouncementResponse(&announcements[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) currentAnnouncements(c *gin.Context) {
	announcements, err := s.service.CurrentAnnouncements(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]currentAnnouncementResponse, 0, len(announcements))
	for i := range announcements {
		out = append(out, newCurrentAnnouncementResponse(&announcements[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createAnnouncement(c *gin.Context) {
	req, ok := bindAnnouncement(c)
	if !ok {
		return
	}

	announcement, err := s.service.CreateAnnouncement(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newAnnouncementResponse(announcement))
}

func (s *Server) getAnnouncement(c *gin.Context) {
	id, ok := parseAnnouncementID(c)
	if !ok {
		return
	}

	announcement, err := s.service.GetAnnouncement(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newAnnouncementResponse(announcement))
}

func (s *Server) updateAnnouncement(c *gin.Context) {
	id, ok := parseAnnouncementID(c)
	if !ok {
		return
	}
	req, ok := bindAnnouncement(c)
	if !ok {
		return
	}

	announcement, err := s.service.UpdateAnnouncement(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newAnnouncementResponse(announcement))
}

func (s *Server) deleteAnnouncement(c *gin.Context) {
	id, ok := parseAnnouncementID(c)
	if !ok {
		return
	}

	if err := s.service.DeleteAnnouncement(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
