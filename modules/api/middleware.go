package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/docshare/domain/share"
	"github.com/example/docshare/modules/docs"
	"github.com/example/docshare/modules/identity"
	"github.com/example/docshare/modules/store"
)

const currentUserKey = "currentUser"

// requireAuth resolves the bearer token to an account and stores it in
// the request locals.
func (m *APIModule) requireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error:   "unauthorized",
				Message: "Missing bearer token",
			})
		}

		user, err := m.identity.Service().CurrentUser(c.UserContext(), strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error:   "unauthorized",
				Message: "Invalid or expired token",
			})
		}

		c.Locals(currentUserKey, user)
		return c.Next()
	}
}

// currentUser returns the authenticated account set by requireAuth.
func currentUser(c *fiber.Ctx) *store.User {
	user, _ := c.Locals(currentUserKey).(*store.User)
	return user
}

// domainError maps domain errors to HTTP responses.
func domainError(c *fiber.Ctx, err error) error {
	var code int
	var name string

	switch {
	case errors.Is(err, share.ErrNotFound),
		errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrDocumentNotFound):
		code, name = fiber.StatusNotFound, "not_found"
	case errors.Is(err, share.ErrRoomInactive):
		code, name = fiber.StatusGone, "room_inactive"
	case errors.Is(err, share.ErrNotPermitted):
		code, name = fiber.StatusForbidden, "forbidden"
	case errors.Is(err, share.ErrEmptyMessage),
		errors.Is(err, share.ErrMessageTooLong),
		errors.Is(err, share.ErrTitleInvalid),
		errors.Is(err, identity.ErrWeakPassword):
		code, name = fiber.StatusBadRequest, "invalid_request"
	case errors.Is(err, identity.ErrEmailTaken):
		code, name = fiber.StatusConflict, "email_taken"
	case errors.Is(err, identity.ErrInvalidCredentials):
		code, name = fiber.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, docs.ErrUploadTooLarge):
		code, name = fiber.StatusRequestEntityTooLarge, "upload_too_large"
	case errors.Is(err, docs.ErrChecksumMismatch):
		code, name = fiber.StatusConflict, "checksum_mismatch"
	default:
		code, name = fiber.StatusInternalServerError, "internal_error"
	}

	msg := err.Error()
	if code == fiber.StatusInternalServerError {
		msg = "Internal Server Error"
	}
	return c.Status(code).JSON(ErrorResponse{Error: name, Message: msg})
}
