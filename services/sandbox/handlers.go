// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sandbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/datary/pkg/datary"
	"github.com/AleutianAI/datary/pkg/tabular"
	"github.com/AleutianAI/datary/services/sandbox/store"
)

// maxBlobSize bounds multipart payload uploads.
const maxBlobSize = 256 << 20

// =============================================================================
// Request bodies
// =============================================================================

type signInForm struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

type createRepoForm struct {
	Name        string `form:"name" binding:"required"`
	Category    string `form:"category"`
	Description string `form:"description"`
	Visibility  string `form:"visibility" binding:"omitempty,oneof=public private commercial"`
	License     string `form:"licenseName"`
	Amount      int    `form:"amount" binding:"omitempty,min=0"`
	Currency    string `form:"currency"`
	Modality    string `form:"modality"`
	Interval    string `form:"interval"`
	Period      int    `form:"period" binding:"omitempty,min=1"`
}

type commitForm struct {
	Message string `form:"message"`
}

type changeForm struct {
	Action   string `form:"action" binding:"required,oneof=add modify remove"`
	Filemode string `form:"filemode"`
	Dirname  string `form:"dirname"`
	Basename string `form:"basename"`
	Inode    string `form:"inode"`
	Kern     string `form:"kern"`
	Meta     string `form:"meta"`
}

// originalBody is the stored form of a dataset.
type originalBody struct {
	Kern any              `json:"__kern"`
	Meta tabular.Metadata `json:"__meta"`
}

// =============================================================================
// Errors
// =============================================================================

// fail maps store errors to HTTP statuses and aborts the request.
func (s *Server) fail(c *gin.Context, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, store.ErrInvalidChange):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("sandbox request failed", "op", op, "path", c.Request.URL.Path, "error", err)
	} else {
		s.logger.Debug("sandbox request rejected", "op", op, "status", status, "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (s *Server) badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// =============================================================================
// Sessions
// =============================================================================

func (s *Server) signIn(c *gin.Context) {
	var form signInForm
	if err := c.ShouldBind(&form); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing credentials"})
		return
	}
	token, err := s.store.SignIn(c.Request.Context(), form.Username, form.Password)
	if err != nil {
		s.fail(c, "signIn", err)
		return
	}
	c.Header(datary.TokenHeader, token)
	c.JSON(http.StatusOK, gin.H{"username": form.Username})
}

func (s *Server) signOut(c *gin.Context) {
	if err := s.store.SignOut(c.Request.Context(), c.GetString(tokenKey)); err != nil {
		s.fail(c, "signOut", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// =============================================================================
// Repositories
// =============================================================================

func (s *Server) listRepos(c *gin.Context) {
	user, _ := GetUser(c)
	repos, err := s.store.ListRepos(c.Request.Context(), user)
	if err != nil {
		s.fail(c, "listRepos", err)
		return
	}
	c.JSON(http.StatusOK, repos)
}

func (s *Server) createRepo(c *gin.Context) {
	var form createRepoForm
	if err := c.ShouldBind(&form); err != nil {
		s.badRequest(c, err)
		return
	}
	user, _ := GetUser(c)
	repo, err := s.store.CreateRepo(c.Request.Context(), user, store.Repo{
		Name:        form.Name,
		Description: form.Description,
		Category:    form.Category,
		Visibility:  form.Visibility,
		License:     form.License,
		Amount:      form.Amount,
		Currency:    form.Currency,
		Modality:    form.Modality,
		Interval:    form.Interval,
		Period:      form.Period,
	})
	if err != nil {
		s.fail(c, "createRepo", err)
		return
	}
	s.logger.Info("repo created", "repo", repo.UUID, "name", repo.Name, "owner", user.Username)
	c.JSON(http.StatusCreated, repo)
}

func (s *Server) getRepo(c *gin.Context) {
	repo, err := s.store.Repo(c.Request.Context(), c.Param("repo"))
	if err != nil {
		s.fail(c, "getRepo", err)
		return
	}
	c.JSON(http.StatusOK, repo)
}

func (s *Server) deleteRepo(c *gin.Context) {
	if err := s.store.DeleteRepo(c.Request.Context(), c.Param("repo")); err != nil {
		s.fail(c, "deleteRepo", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) commit(c *gin.Context) {
	var form commitForm
	if err := c.ShouldBind(&form); err != nil {
		s.badRequest(c, err)
		return
	}
	commit, err := s.store.Commit(c.Request.Context(), c.Param("repo"), form.Message)
	if err != nil {
		s.fail(c, "commit", err)
		return
	}
	s.metrics.CommitsTotal.Inc()
	s.logger.Info("commit created", "repo", commit.Repo, "sha1", commit.SHA1, "files", len(commit.Files))
	c.JSON(http.StatusCreated, gin.H{"sha1": commit.SHA1, "parent": commit.Parent, "message": commit.Message})
}

func (s *Server) commitFiletree(c *gin.Context) {
	commit, err := s.store.GetCommit(c.Request.Context(), c.Param("sha1"))
	if err != nil {
		s.fail(c, "commitFiletree", err)
		return
	}
	if ns := c.Query("namespace"); ns != "" && ns != commit.Repo {
		s.fail(c, "commitFiletree", fmt.Errorf("%w: commit %s in %s", store.ErrNotFound, commit.SHA1, ns))
		return
	}
	c.JSON(http.StatusOK, s.filetree("commitFiletree", commit.Files))
}

// =============================================================================
// Workdirs
// =============================================================================

func (s *Server) workdirFiletree(c *gin.Context) {
	wdir, err := s.store.Workdir(c.Request.Context(), c.Param("wdir"))
	if err != nil {
		s.fail(c, "workdirFiletree", err)
		return
	}
	c.JSON(http.StatusOK, s.filetree("workdirFiletree", wdir.Files))
}

func (s *Server) filetree(op string, files map[string]string) map[string]any {
	tree, conflicts := store.FilesToTree(files)
	for _, err := range conflicts {
		s.logger.Warn("file left out of the filetree", "op", op, "error", err)
	}
	return tree
}

func (s *Server) workdirChanges(c *gin.Context) {
	changes, err := s.store.WorkdirChanges(c.Request.Context(), c.Param("wdir"))
	if err != nil {
		s.fail(c, "workdirChanges", err)
		return
	}
	c.JSON(http.StatusOK, changes)
}

func (s *Server) applyChange(c *gin.Context) {
	var form changeForm
	if err := c.ShouldBind(&form); err != nil {
		s.badRequest(c, err)
		return
	}
	payload, err := changePayload(c, form)
	if err != nil {
		s.badRequest(c, err)
		return
	}

	inode, err := s.store.ApplyChange(c.Request.Context(), c.Param("wdir"), store.ChangeRequest{
		Action:   form.Action,
		Filemode: form.Filemode,
		Dirname:  form.Dirname,
		Basename: form.Basename,
		Inode:    form.Inode,
		Payload:  payload,
	})
	if err != nil {
		s.fail(c, "applyChange", err)
		return
	}
	s.metrics.ChangesTotal.WithLabelValues(form.Action).Inc()
	c.JSON(http.StatusOK, gin.H{"inode": inode})
}

// changePayload decodes the dataset of an add or modify change, from the
// "blob" multipart file when present and from the kern/meta fields
// otherwise.
func changePayload(c *gin.Context, form changeForm) (*tabular.Payload, error) {
	if form.Action == datary.ChangeRemove {
		return nil, nil
	}

	if header, err := c.FormFile("blob"); err == nil {
		f, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("open blob: %w", err)
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxBlobSize))
		if err != nil {
			return nil, fmt.Errorf("read blob: %w", err)
		}
		var payload tabular.Payload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("decode blob: %w", err)
		}
		return &payload, nil
	}

	payload := &tabular.Payload{Meta: tabular.Metadata{}}
	if form.Kern != "" {
		if err := json.Unmarshal([]byte(form.Kern), &payload.Kern); err != nil {
			return nil, fmt.Errorf("decode kern: %w", err)
		}
	}
	if form.Meta != "" && form.Meta != "null" {
		if err := json.Unmarshal([]byte(form.Meta), &payload.Meta); err != nil {
			return nil, fmt.Errorf("decode meta: %w", err)
		}
	}
	return payload, nil
}

func (s *Server) clearChanges(c *gin.Context) {
	if err := s.store.ClearChanges(c.Request.Context(), c.Param("wdir")); err != nil {
		s.fail(c, "clearChanges", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// =============================================================================
// Datasets
// =============================================================================

func (s *Server) metadata(c *gin.Context) {
	dataset, err := s.store.Dataset(c.Request.Context(), c.Param("dataset"))
	if err != nil {
		s.fail(c, "metadata", err)
		return
	}
	c.JSON(http.StatusOK, dataset.Meta)
}

func (s *Server) original(c *gin.Context) {
	dataset, err := s.store.Dataset(c.Request.Context(), c.Param("dataset"))
	if err != nil {
		s.fail(c, "original", err)
		return
	}
	c.JSON(http.StatusOK, originalBody{Kern: dataset.Kern, Meta: dataset.Meta})
}

// =============================================================================
// Search
// =============================================================================

func (s *Server) categories(c *gin.Context) {
	c.JSON(http.StatusOK, datary.DefaultCategories)
}

func (s *Server) members(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(datary.DefaultMemberLimit)))
	if err != nil || limit < 0 {
		s.badRequest(c, fmt.Errorf("invalid limit %q", c.Query("limit")))
		return
	}
	users, err := s.store.Members(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, "members", err)
		return
	}
	members := make([]datary.Member, 0, len(users))
	for _, u := range users {
		members = append(members, datary.Member{UUID: u.UUID, Username: u.Username, Name: u.Username})
	}
	c.JSON(http.StatusOK, members)
}
