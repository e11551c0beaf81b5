package service

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"kinship/internal/models"
)

const (
	maxDescriptionLen = 2000
	maxContentLen     = 10000
	maxUsernameLen    = 50
	minPasswordLen    = 8

	// DefaultMaxUploadBytes is used when no upload limit is configured.
	DefaultMaxUploadBytes int64 = 10 * 1024 * 1024

	defaultImageContentType = "application/octet-stream"
)

// reservedUsernames collide with fixed /users routes.
var reservedUsernames = map[string]bool{"me": true, "others": true}

func validateDescription(description string) error {
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		return models.NewValidationError(fmt.Sprintf("Description too long (max %d characters)", maxDescriptionLen))
	}
	return nil
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return models.NewValidationError("Content is required")
	}
	if utf8.RuneCountInString(content) > maxContentLen {
		return models.NewValidationError(fmt.Sprintf("Content too long (max %d characters)", maxContentLen))
	}
	return nil
}

func validateUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return models.NewValidationError("Username is required")
	}
	if utf8.RuneCountInString(username) > maxUsernameLen {
		return models.NewValidationError(fmt.Sprintf("Username too long (max %d characters)", maxUsernameLen))
	}
	if strings.ContainsAny(username, " /\t\n") {
		return models.NewValidationError("Username may not contain spaces or slashes")
	}
	if reservedUsernames[strings.ToLower(username)] {
		return models.NewValidationError(fmt.Sprintf("Username %q is reserved", username))
	}
	return nil
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return models.NewValidationError("A valid email address is required")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen {
		return models.NewValidationError(fmt.Sprintf("Password must be at least %d characters long", minPasswordLen))
	}
	return nil
}

// validateImage enforces that at most one image mode is supplied and that an
// upload is non-empty and within the size limit.
func validateImage(imageURL string, upload *models.ImageUpload, maxBytes int64) error {
	if upload == nil {
		return nil
	}
	if strings.TrimSpace(imageURL) != "" {
		return models.NewInvalidOperationError("Provide either an image URL or an uploaded image, not both")
	}
	if upload.Size() == 0 {
		return models.NewValidationError("Uploaded image is empty")
	}
	if upload.Size() > maxBytes {
		return models.NewValidationError(fmt.Sprintf("Uploaded image exceeds %d bytes", maxBytes))
	}
	return nil
}

func contentTypeOrDefault(contentType string) string {
	if contentType == "" {
		return defaultImageContentType
	}
	return contentType
}
