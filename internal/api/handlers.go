package api

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tasaciones/server/internal/auth"
	"tasaciones/server/internal/geometry"
	"tasaciones/server/internal/imagekit"
	"tasaciones/server/internal/models"
	"tasaciones/server/internal/sheets"
	"tasaciones/server/internal/store"
	"tasaciones/server/internal/valuation"
)

const (
	sessionCookie    = "session_id"
	sessionCookieAge = 30 * 24 * time.Hour
)

type Handler struct {
	sessions *store.Manager
	signer   *imagekit.Signer
	locator  geometry.Locator
	logger   *logrus.Logger
}

type ImportRequest struct {
	URL string `json:"url" binding:"required"`
}

type ValuationResponse struct {
	store.State
	Summary models.Summary `json:"summary"`
}

// NewHandler wires the session manager to the HTTP surface. signer and
// locator are optional and disable their endpoints when nil.
func NewHandler(sessions *store.Manager, signer *imagekit.Signer, locator geometry.Locator, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Handler{
		sessions: sessions,
		signer:   signer,
		locator:  locator,
		logger:   logger,
	}
}

// session resolves the caller's store, issuing an anonymous session cookie
// when needed
func (h *Handler) session(c *gin.Context) (*store.Store, bool) {
	userID := auth.UserID(c)

	anonymousID, err := c.Cookie(sessionCookie)
	if userID == "" && (err != nil || anonymousID == "") {
		anonymousID = uuid.NewString()
		c.SetCookie(sessionCookie, anonymousID, int(sessionCookieAge.Seconds()), "/", "", false, true)
	}

	s, err := h.sessions.Get(c.Request.Context(), userID, anonymousID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to open valuation session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open valuation session"})
		return nil, false
	}
	return s, true
}

// existingSession is session for read-only routes: anonymous callers
// without an open session get nil instead of a new store
func (h *Handler) existingSession(c *gin.Context) (*store.Store, bool) {
	if auth.UserID(c) != "" {
		return h.session(c)
	}

	anonymousID, err := c.Cookie(sessionCookie)
	if err != nil || anonymousID == "" {
		return nil, true
	}
	s, _ := h.sessions.Lookup("", anonymousID)
	return s, true
}

func confirmer(c *gin.Context) store.Confirmer {
	if ok, _ := strconv.ParseBool(c.Query("confirm")); ok {
		return store.Approve
	}
	return store.Decline
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNegativeSurface),
		errors.Is(err, models.ErrUnknownSurfaceType),
		errors.Is(err, models.ErrNegativeDays),
		errors.Is(err, store.ErrEmptyAddress),
		errors.Is(err, store.ErrSnapshotLimit),
		errors.Is(err, store.ErrEmptySheetURL),
		errors.Is(err, sheets.ErrInvalidSheetURL):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotConfirmed):
		return http.StatusConflict
	case errors.Is(err, store.ErrComparableNotFound),
		errors.Is(err, store.ErrValuationNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrImportUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, sheets.ErrFetchFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(c *gin.Context, err error, msg string) {
	status := statusFor(err)
	entry := h.logger.WithError(err).WithFields(logrus.Fields{
		"route":  c.FullPath(),
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error(msg)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	entry.Debug(msg)
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) GetValuation(c *gin.Context) {
	s, ok := h.existingSession(c)
	if !ok {
		return
	}

	if s == nil {
		state := store.DefaultState()
		c.JSON(http.StatusOK, ValuationResponse{
			State:   state,
			Summary: valuation.Evaluate(state.Target, state.Comparables),
		})
		return
	}

	c.JSON(http.StatusOK, ValuationResponse{
		State:   s.Snapshot(),
		Summary: s.Summary(),
	})
}

func (h *Handler) UpdateTarget(c *gin.Context) {
	var patch models.TargetPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.logger.WithError(err).Debug("Failed to parse target patch")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	s, ok := h.session(c)
	if !ok {
		return
	}

	target, err := s.UpdateTarget(patch)
	if err != nil {
		h.respondError(c, err, "Failed to update target")
		return
	}
	c.JSON(http.StatusOK, target)
}

func (h *Handler) AddComparable(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, s.AddComparable())
}

func (h *Handler) UpdateComparable(c *gin.Context) {
	var patch models.ComparablePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.logger.WithError(err).Debug("Failed to parse comparable patch")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	s, ok := h.session(c)
	if !ok {
		return
	}

	if err := s.UpdateComparable(c.Param("id"), patch); err != nil {
		h.respondError(c, err, "Failed to update comparable")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) DeleteComparable(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	if err := s.DeleteComparable(c.Param("id")); err != nil {
		h.respondError(c, err, "Failed to delete comparable")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) NewValuation(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	if err := s.NewValuation(c.Request.Context(), confirmer(c)); err != nil {
		h.respondError(c, err, "Failed to start a new valuation")
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *Handler) ListValuations(c *gin.Context) {
	s, ok := h.existingSession(c)
	if !ok {
		return
	}
	if s == nil {
		c.JSON(http.StatusOK, []models.SavedValuation{})
		return
	}
	c.JSON(http.StatusOK, s.Snapshot().SavedValuations)
}

func (h *Handler) SaveValuation(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	saved, err := s.SaveValuation(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "Failed to save valuation")
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h *Handler) DeleteValuation(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	if err := s.DeleteValuation(c.Request.Context(), c.Param("id"), confirmer(c)); err != nil {
		h.respondError(c, err, "Failed to delete valuation")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) LoadValuation(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	if err := s.LoadValuationByID(c.Request.Context(), c.Param("id"), confirmer(c)); err != nil {
		h.respondError(c, err, "Failed to load valuation")
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *Handler) ImportSpreadsheet(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": store.ErrEmptySheetURL.Error()})
		return
	}

	s, ok := h.session(c)
	if !ok {
		return
	}

	created, err := s.ImportFromSpreadsheet(c.Request.Context(), req.URL)
	if err != nil {
		h.respondError(c, err, "Failed to import spreadsheet")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"imported":    len(created),
		"comparables": created,
	})
}

func (h *Handler) GetProximity(c *gin.Context) {
	if h.locator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Geocoding is disabled"})
		return
	}

	s, ok := h.existingSession(c)
	if !ok {
		return
	}

	state := store.DefaultState()
	if s != nil {
		state = s.Snapshot()
	}
	c.JSON(http.StatusOK, geometry.Distances(c.Request.Context(), h.locator, state.Target, state.Comparables, h.logger))
}

// Logout closes the caller's session and forgets the anonymous cookie
func (h *Handler) Logout(c *gin.Context) {
	userID := auth.UserID(c)
	anonymousID, _ := c.Cookie(sessionCookie)

	closed := false
	if userID != "" {
		closed = h.sessions.Remove(userID, "") || closed
	}
	if anonymousID != "" {
		closed = h.sessions.Remove("", anonymousID) || closed
		c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	}

	h.logger.WithFields(logrus.Fields{
		"authenticated": userID != "",
		"closed":        closed,
	}).Info("Session logged out")
	c.Status(http.StatusNoContent)
}

func (h *Handler) ImageKitAuth(c *gin.Context) {
	if h.signer == nil {
		h.logger.WithError(imagekit.ErrMissingCredentials).Error("Could not generate auth parameters")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Could not generate auth parameters",
			"details": imagekit.ErrMissingCredentials.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, h.signer.AuthenticationParameters())
}
