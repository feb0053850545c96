package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourlink/marketplace-backend/internal/middleware"
	"github.com/tourlink/marketplace-backend/internal/models"
	"github.com/tourlink/marketplace-backend/pkg/apperror"
)

// respondError writes err as an apperror JSON body. Internal causes are
// logged here and never leave the process.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	appErr := apperror.As(err)

	entry := logger.WithFields(logrus.Fields{
		"path": c.Request.URL.Path,
		"code": appErr.Code,
	})
	switch {
	case appErr.HTTPStatus >= 500:
		entry.WithError(appErr.Err).Error(appErr.Message)
	case appErr.Err != nil:
		entry.WithError(appErr.Err).Warn(appErr.Message)
	}

	_ = c.Error(err)
	c.JSON(appErr.HTTPStatus, appErr.Response())
}

// bindError turns a gin binding failure into a validation AppError with
// one message per offending field.
func bindError(err error) *apperror.AppError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.Validation("invalid request body")
	}

	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe)] = fieldMessage(fe)
	}
	return apperror.Validation("request validation failed").WithDetails(map[string]any{"fields": fields})
}

// fieldPath drops the root struct name: purchase_units[0].amount.value
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a valid UUID"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "datetime":
		return fmt.Sprintf("must match %s", fe.Param())
	case "payment_method":
		return "must be one of stripe, transfer, cash"
	case "iso_currency":
		return "must be a 3-letter ISO 4217 code"
	case "url":
		return "must be a valid URL"
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

// actorFrom returns the authenticated actor or writes 401
func actorFrom(c *gin.Context, logger *logrus.Logger) (models.Actor, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		respondError(c, logger, apperror.Unauthorized("authentication required"))
		return models.Actor{}, false
	}
	return actor, true
}

// pathID parses the :id route parameter or writes 422
func pathID(c *gin.Context, logger *logrus.Logger, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, logger, apperror.Validation(fmt.Sprintf("invalid %s id", name)))
		return uuid.Nil, false
	}
	return id, true
}
