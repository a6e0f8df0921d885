package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/promptforge/promptstore/internal/logging"
	"github.com/promptforge/promptstore/internal/store"
	"github.com/promptforge/promptstore/pkg/models"
)

// API holds the server's dependencies
type API struct {
	store *store.Store
	log   *logging.Logger
}

// respondStoreError maps store error kinds onto HTTP statuses
func respondStoreError(c *gin.Context, err error) {
	var se *store.StoreError
	if !errors.As(err, &se) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch se.Kind {
	case store.KindValidation:
		status = http.StatusBadRequest
	case store.KindUserNotFound:
		status = http.StatusNotFound
	case store.KindUserExists:
		status = http.StatusConflict
	case store.KindLockTimeout:
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{"error": se.Error(), "kind": string(se.Kind)})
}

type createUserRequest struct {
	Email string `json:"email" binding:"required"`
	Name  string `json:"name"`
	Plan  string `json:"plan"`
}

func (api *API) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := models.NewUser(req.Email, req.Name, req.Plan)
	if err := api.store.SaveUser(c.Request.Context(), user); err != nil {
		respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

func (api *API) getUser(c *gin.Context) {
	user, err := api.store.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (api *API) updateUser(c *gin.Context) {
	var update store.UserUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := api.store.UpdateUser(c.Request.Context(), c.Param("id"), update)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (api *API) deleteUser(c *gin.Context) {
	if err := api.store.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		respondStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (api *API) listUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	result, err := api.store.ListUsers(c.Request.Context(), page, limit)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (api *API) searchUsers(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}

	users, err := api.store.SearchUsers(c.Request.Context(), query)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

func (api *API) getUserByEmail(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter email is required"})
		return
	}

	user, err := api.store.GetUserByEmail(c.Request.Context(), email)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (api *API) updateUsage(c *gin.Context) {
	var delta models.UsageDelta
	if err := c.ShouldBindJSON(&delta); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	usage, err := api.store.UpdateUsage(c.Request.Context(), c.Param("id"), delta)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, usage)
}

func (api *API) getUsage(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter date is required"})
		return
	}

	usage, err := api.store.GetUsage(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	if usage == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no usage recorded for date"})
		return
	}
	c.JSON(http.StatusOK, usage)
}

func (api *API) getUsageSummary(c *gin.Context) {
	month := c.Query("month")
	if month == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter month is required"})
		return
	}

	summary, err := api.store.GetMonthlyUsageSummary(c.Request.Context(), c.Param("id"), month)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (api *API) updateSubscription(c *gin.Context) {
	var update store.SubscriptionUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := api.store.UpdateSubscription(c.Request.Context(), c.Param("id"), update)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (api *API) getActiveSubscriptions(c *gin.Context) {
	users, err := api.store.GetActiveSubscriptions(c.Request.Context())
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

func (api *API) getExpiringSubscriptions(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a non-negative integer"})
		return
	}

	users, err := api.store.GetExpiringSubscriptions(c.Request.Context(), days)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

type createBackupRequest struct {
	Description string `json:"description"`
}

func (api *API) createBackup(c *gin.Context) {
	var req createBackupRequest
	// Body is optional; a bare POST creates an undescribed backup
	_ = c.ShouldBindJSON(&req)

	info, err := api.store.Backup(c.Request.Context(), req.Description)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (api *API) listBackups(c *gin.Context) {
	backups, err := api.store.ListBackups(c.Request.Context())
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"backups": backups, "count": len(backups)})
}

func (api *API) restoreBackup(c *gin.Context) {
	if err := api.store.Restore(c.Request.Context(), c.Param("id")); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "restored", "backup_id": c.Param("id")})
}

func (api *API) getStats(c *gin.Context) {
	stats, err := api.store.GetStorageStats(c.Request.Context())
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (api *API) validateData(c *gin.Context) {
	report, err := api.store.ValidateData(c.Request.Context())
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (api *API) healthCheck(c *gin.Context) {
	status := api.store.HealthCheck(c.Request.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
