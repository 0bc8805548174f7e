package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"plugin-store/catalog"
	"plugin-store/orm"
	"plugin-store/ratelimit"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type submitForm struct {
	Name        string                `form:"name"         binding:"required"`
	Author      string                `form:"author"       binding:"required"`
	Description string                `form:"description"  binding:"required"`
	Tags        []string              `form:"tags"`
	VersionName string                `form:"version_name" binding:"required"`
	Image       string                `form:"image"        binding:"omitempty,url"`
	File        *multipart.FileHeader `form:"file"         binding:"required"`
	Force       bool                  `form:"force"`
}

func (s *Server) listPlugins(c *gin.Context) {
	var query listQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondBindError(c, err)
		return
	}

	direction := orm.SortDirection(query.SortDirection)
	if direction == "" {
		direction = orm.SortAsc
	}

	artifacts, err := s.service.List(c.Request.Context(), catalog.ListRequest{
		Query:         query.Query,
		Tags:          catalog.SplitTags(query.Tags...),
		IncludeHidden: query.Hidden,
		SortBy:        orm.SortType(query.SortBy),
		SortDirection: direction,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newPluginListResponse(artifacts, s.service.CDNURL()))
}

func (s *Server) incrementInstalls(c *gin.Context) {
	pluginName := c.Param("name")
	versionName := c.Param("version")

	isUpdate := true
	if raw, ok := c.GetQuery("isUpdate"); ok {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			respondBindError(c, fmt.Errorf("isUpdate: %w", err))
			return
		}
		isUpdate = parsed
	}

	ctx := c.Request.Context()
	key := ratelimit.IncrementKey(pluginName, ratelimit.ClientID(c.ClientIP()))

	allowed, err := s.limiter.Allow(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("plugin", pluginName).Msg("rate limiter unavailable, allowing request")
		allowed = true
	}
	if !allowed {
		s.metrics.RecordInstall(isUpdate, "limited")
		c.Status(http.StatusTooManyRequests)

		return
	}

	found, err := s.service.Increment(ctx, pluginName, versionName, isUpdate)
	if err != nil {
		s.metrics.RecordInstall(isUpdate, "error")
		respondError(c, err)

		return
	}
	if !found {
		s.metrics.RecordInstall(isUpdate, "not_found")
		c.Status(http.StatusNotFound)

		return
	}

	if err := s.limiter.Hit(ctx, key); err != nil {
		log.Warn().Err(err).Str("plugin", pluginName).Msg("failed to record rate limit hit")
	}
	s.metrics.RecordInstall(isUpdate, "ok")
	c.Status(http.StatusOK)
}

func (s *Server) checkAuth(c *gin.Context) {
	c.String(http.StatusOK, "Success")
}

func (s *Server) submitPlugin(c *gin.Context) {
	var form submitForm
	if err := c.ShouldBind(&form); err != nil {
		s.metrics.RecordSubmission("invalid")
		respondBindError(c, err)

		return
	}

	content, err := readFormFile(form.File)
	if err != nil {
		s.metrics.RecordSubmission("invalid")
		respondBindError(c, err)

		return
	}

	artifact, err := s.service.Submit(c.Request.Context(), catalog.SubmitRequest{
		Name:        form.Name,
		Author:      form.Author,
		Description: form.Description,
		Tags:        catalog.SplitTags(form.Tags...),
		VersionName: form.VersionName,
		ImageURL:    form.Image,
		File:        content,
		Force:       form.Force,
	})
	if err != nil {
		s.metrics.RecordSubmission("rejected")
		respondError(c, err)

		return
	}

	s.metrics.RecordSubmission("accepted")
	c.JSON(http.StatusCreated, newPluginResponse(artifact, s.service.CDNURL()))
}

func readFormFile(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("opening uploaded file: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("reading uploaded file: %w", err)
	}

	return content, nil
}

func (s *Server) updatePlugin(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	visible := true
	if req.Visible != nil {
		visible = *req.Visible
	}

	versions := make([]catalog.VersionPayload, 0, len(req.Versions))
	for _, v := range req.Versions {
		versions = append(versions, catalog.VersionPayload{Name: v.Name, Hash: v.Hash})
	}

	artifact, err := s.service.Replace(c.Request.Context(), catalog.ReplaceRequest{
		ID:          req.ID,
		Name:        req.Name,
		Author:      req.Author,
		Description: req.Description,
		Tags:        catalog.SplitTags(req.Tags...),
		Visible:     visible,
		Versions:    versions,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newPluginResponse(artifact, s.service.CDNURL()))
}

func (s *Server) deletePlugin(c *gin.Context) {
	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := s.service.Delete(c.Request.Context(), req.ID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
