package server

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"strconv"
	"strings"
	"unicode"

	"kinship/internal/middleware"
	"kinship/internal/models"
	"kinship/internal/repository"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

const (
	defaultPaginationLimit = 20
	maxPaginationLimit     = 100
)

// parsePagination extracts limit and offset query parameters.
func parsePagination(c *fiber.Ctx) repository.Page {
	limit := c.QueryInt("limit", defaultPaginationLimit)
	if limit <= 0 {
		limit = defaultPaginationLimit
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}

	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	return repository.Page{Limit: limit, Offset: offset}
}

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(param), 10, 32)
	if err != nil || id == 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+humanizeParam(param)))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// humanizeParam converts a route param name into a human-readable label.
// Examples: "id" -> "ID", "userId" -> "user ID", "commentId" -> "comment ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if strings.HasSuffix(param, "Id") {
		words := splitCamel(param[:len(param)-2])
		return strings.ToLower(strings.Join(words, " ")) + " ID"
	}
	return param
}

// splitCamel splits a camelCase string into words.
func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	return append(words, s[start:])
}

// statusForError maps an AppError code to its HTTP status. Errors that are
// not AppErrors are internal.
func statusForError(err error) int {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		return fiber.StatusInternalServerError
	}
	switch appErr.Code {
	case models.CodeNotFound:
		return fiber.StatusNotFound
	case models.CodeConflict:
		return fiber.StatusConflict
	case models.CodeForbidden:
		return fiber.StatusForbidden
	case models.CodeInvalidOperation, models.CodeValidation:
		return fiber.StatusBadRequest
	case models.CodeUnauthorized:
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err with the status its code maps to. Internal errors
// are logged and their cause is never sent to the client.
func respondError(c *fiber.Ctx, err error) error {
	appErr := models.AsAppError(err)
	status := statusForError(appErr)
	if status == fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request error",
			slog.String("path", c.Path()), slog.String("error", err.Error()))
	}
	return models.RespondWithError(c, status, appErr)
}

// isMultipart reports whether the request carries a multipart form.
func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEMultipartForm)
}

// formImage reads the optional "image" file of a multipart request. It
// returns nil when no file was sent. Files over maxBytes are rejected
// before they are read into memory.
func formImage(c *fiber.Ctx, maxBytes int64) (*models.ImageUpload, error) {
	file, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, multipart.ErrMessageTooLarge) {
			return nil, models.NewValidationError("Image exceeds the maximum upload size")
		}
		// A form without the field is not an error.
		return nil, nil
	}
	if maxBytes > 0 && file.Size > maxBytes {
		return nil, models.NewValidationError("Image exceeds the maximum upload size")
	}

	src, err := file.Open()
	if err != nil {
		return nil, models.NewValidationError("Unable to read uploaded file")
	}
	defer func() { _ = src.Close() }()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, models.NewValidationError("Unable to read uploaded file")
	}

	return &models.ImageUpload{
		Name:        file.Filename,
		ContentType: file.Header.Get(fiber.HeaderContentType),
		Data:        data,
	}, nil
}

// sendImage writes stored image bytes with their declared type.
func sendImage(c *fiber.Ctx, img *models.ImageContent) error {
	c.Set(fiber.HeaderContentType, img.ContentType)
	c.Set(fiber.HeaderCacheControl, "private, max-age=60")
	if img.Name != "" {
		c.Set(fiber.HeaderContentDisposition, "inline; filename="+strconv.Quote(img.Name))
	}
	return c.Status(fiber.StatusOK).Send(img.Data)
}
