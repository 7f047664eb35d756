package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zerotwo/postcode-atlas/services/api/db"
)

// cleanCode uppercases a postcode and strips all whitespace so lookups
// match the stored space-free form regardless of how the caller spells it.
func cleanCode(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), ""))
}

// parseLimit reads the limit query parameter, applying the configured
// default and ceiling. Returns -1 on an unparseable value.
func (s *Server) parseLimit(c *gin.Context) int {
	limit := s.cfg.DefaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return -1
		}
		limit = parsed
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}
	return limit
}

func (s *Server) handleGetPostcode(c *gin.Context) {
	code := cleanCode(c.Param("code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "postcode is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	postcode, found, err := s.store.GetPostcode(ctx, code)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "postcode not found"})
		return
	}

	c.JSON(http.StatusOK, postcode)
}

func (s *Server) handleNearest(c *gin.Context) {
	code := cleanCode(c.Param("code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "postcode is required"})
		return
	}

	limit := s.parseLimit(c)
	if limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	// Confirm the origin exists so we can distinguish "unknown postcode"
	// from "no neighbours".
	_, found, err := s.store.GetPostcode(ctx, code)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "postcode not found"})
		return
	}

	nearby, err := s.store.Nearest(ctx, code, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"postcode": code,
		"count":    len(nearby),
		"nearest":  nearby,
	})
}

func (s *Server) handleAutocomplete(c *gin.Context) {
	prefix := cleanCode(c.Query("q"))
	if len(prefix) < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q must be at least 2 characters"})
		return
	}

	limit := s.parseLimit(c)
	if limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	postcodes, err := s.store.Autocomplete(ctx, prefix, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query":     prefix,
		"count":     len(postcodes),
		"postcodes": postcodes,
	})
}

func (s *Server) handleSearchAddresses(c *gin.Context) {
	limit := s.parseLimit(c)
	if limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	query := db.AddressQuery{
		PostcodeNoSpace: cleanCode(c.Query("postcode")),
		Street:          strings.TrimSpace(c.Query("street")),
		City:            strings.TrimSpace(c.Query("city")),
		Limit:           limit,
	}
	if query.PostcodeNoSpace == "" && query.Street == "" && query.City == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one of postcode, street, city is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	addresses, err := s.store.SearchAddresses(ctx, query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":     len(addresses),
		"addresses": addresses,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	status, err := s.store.Status(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, status)
}
