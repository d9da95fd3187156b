package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"docfabric/internal/service"
	"docfabric/internal/storage"
)

// parseID validates the :id route parameter.
func parseID(c *fiber.Ctx) (string, bool) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// queryInt reads an optional integer query parameter. ok is false when the value is present
// but malformed.
func queryInt(c *fiber.Ctx, key string, fallback int) (n int, ok bool) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ListDocuments godoc
// @Summary List documents
// @Description Newest first. Offsets past the end return an empty page.
// @Tags documents
// @Produce json
// @Param limit query int false "page size (1-100)" default(20)
// @Param offset query int false "items to skip" default(0)
// @Success 200 {object} model.DocumentList
// @Failure 400 {object} errorPayload
// @Router /documents [get]
func ListDocuments(docSvc service.DocumentService, cfg RouteConfig) fiber.Handler {
	cfg = cfg.withDefaults()
	return func(c *fiber.Ctx) error {
		limit, ok := queryInt(c, "limit", cfg.DefaultListLimit)
		if !ok || limit < 1 || limit > cfg.MaxListLimit {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and "+strconv.Itoa(cfg.MaxListLimit))
		}
		offset, ok := queryInt(c, "offset", 0)
		if !ok || offset < 0 {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "offset must be a non-negative integer")
		}

		res, err := docSvc.List(c.UserContext(), limit, offset)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// uploadFailure is a rejected multipart request, already shaped for the error body.
type uploadFailure struct {
	code    string
	message string
}

func (f *uploadFailure) write(c *fiber.Ctx) error {
	return writeError(c, fiber.StatusBadRequest, f.code, f.message)
}

// openUpload opens the multipart "file" field. The caller closes the returned file.
func openUpload(c *fiber.Ctx) (service.Upload, io.Closer, *uploadFailure) {
	fh, err := c.FormFile("file")
	if err != nil {
		return service.Upload{}, nil, &uploadFailure{"FILE_REQUIRED", "file is required"}
	}
	f, err := fh.Open()
	if err != nil {
		return service.Upload{}, nil, &uploadFailure{"FILE_OPEN_ERROR", "cannot open uploaded file"}
	}
	return service.Upload{Filename: fh.Filename, Reader: f}, f, nil
}

var errInvalidMetadata = errors.New("metadata must be a JSON object of strings")

func parseMetadata(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, errInvalidMetadata
	}
	return meta, nil
}

// UploadDocument godoc
// @Summary Upload a document
// @Tags documents
// @Accept mpfd
// @Produce json
// @Param file formData file true "document content"
// @Param metadata formData string false "JSON object of string values"
// @Success 201 {object} model.Document
// @Failure 400 {object} errorPayload
// @Failure 413 {object} errorPayload
// @Failure 422 {object} errorPayload
// @Router /documents [post]
func UploadDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		meta, err := parseMetadata(c.FormValue("metadata"))
		if err != nil {
			return writeError(c, fiber.StatusUnprocessableEntity, "INVALID_METADATA", err.Error())
		}

		in, f, failure := openUpload(c)
		if failure != nil {
			return failure.write(c)
		}
		defer f.Close()
		in.Metadata = meta

		doc, err := docSvc.Create(c.UserContext(), in)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(doc)
	}
}

// GetDocument godoc
// @Summary Get document metadata
// @Tags documents
// @Produce json
// @Param id path string true "document id"
// @Success 200 {object} model.Document
// @Failure 404 {object} errorPayload
// @Router /documents/{id} [get]
func GetDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		doc, err := docSvc.Get(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(doc)
	}
}

// ReplaceDocument godoc
// @Summary Replace document content
// @Description Filename, metadata and created_at are kept.
// @Tags documents
// @Accept mpfd
// @Produce json
// @Param id path string true "document id"
// @Param file formData file true "new content"
// @Success 200 {object} model.Document
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /documents/{id} [put]
func ReplaceDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		in, f, failure := openUpload(c)
		if failure != nil {
			return failure.write(c)
		}
		defer f.Close()

		doc, err := docSvc.Replace(c.UserContext(), id, in)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(doc)
	}
}

// DeleteDocument godoc
// @Summary Delete a document
// @Tags documents
// @Param id path string true "document id"
// @Success 204
// @Failure 404 {object} errorPayload
// @Router /documents/{id} [delete]
func DeleteDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := docSvc.Delete(c.UserContext(), id); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GetContent godoc
// @Summary Read a window of document text
// @Tags documents
// @Produce json
// @Param id path string true "document id"
// @Param offset query int false "first character" default(0)
// @Param limit query int false "maximum characters; omitted means the rest"
// @Success 200 {object} model.DocumentContent
// @Failure 404 {object} errorPayload
// @Failure 416 {object} errorPayload
// @Router /documents/{id}/content [get]
func GetContent(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		offset, ok := queryInt(c, "offset", 0)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "offset must be an integer")
		}
		limit, ok := queryInt(c, "limit", service.NoLimit)
		if !ok || (c.Query("limit") != "" && limit < 0) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer")
		}

		content, err := docSvc.Content(c.UserContext(), id, service.Window{Offset: offset, Limit: limit})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(content)
	}
}

// DownloadOriginal godoc
// @Summary Download the original file
// @Description Redirects to a presigned URL when the storage backend supports it.
// @Tags documents
// @Produce octet-stream
// @Param id path string true "document id"
// @Success 200 {file} binary
// @Success 307
// @Failure 404 {object} errorPayload
// @Router /documents/{id}/original [get]
func DownloadOriginal(docSvc service.DocumentService, cfg RouteConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		if cfg.PresignTTL > 0 {
			url, err := docSvc.PresignOriginal(c.UserContext(), id, cfg.PresignTTL)
			switch {
			case err == nil:
				return c.Redirect(url, fiber.StatusTemporaryRedirect)
			case !errors.Is(err, storage.ErrPresignUnsupported):
				return writeServiceError(c, err)
			}
		}

		rc, doc, err := docSvc.Original(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		c.Set(fiber.HeaderContentType, doc.ContentType)
		c.Set(fiber.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
		// fasthttp closes rc once the body has been written.
		return c.SendStream(rc, int(doc.SizeBytes))
	}
}
