package httpapi

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loqalabs/loqa-clone/internal/clone"
	"github.com/loqalabs/loqa-clone/internal/languages"
)

type cloneResponse struct {
	AudioURL string `json:"audio_url"`
	JobID    string `json:"job_id"`
	Language string `json:"language"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) clone(c *gin.Context) {
	if h.maxUpload > 0 {
		if c.Request.ContentLength > h.maxUpload {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "Uploaded file is too large."})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}

	fh, err := c.FormFile("reference_audio")
	in := clone.Input{
		Text:     c.PostForm("text"),
		Language: c.PostForm("language"),
	}
	switch {
	case tooLarge(err):
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "Uploaded file is too large."})
		return
	case err == nil && fh.Filename != "":
		f, openErr := fh.Open()
		if openErr != nil {
			h.log.Error("failed to open upload", slogError(openErr))
			c.JSON(http.StatusInternalServerError, errorResponse{Error: openErr.Error()})
			return
		}
		defer f.Close()
		in.Filename = fh.Filename
		in.Reader = f
	}

	out, err := h.opts.Service.Clone(c.Request.Context(), in)
	if err != nil {
		_ = c.Error(err)
		c.JSON(statusFor(err), errorResponse{Error: clone.MessageOf(err)})
		return
	}
	c.JSON(http.StatusOK, cloneResponse{AudioURL: out.URL, JobID: out.JobID, Language: out.LanguageCode})
}

func statusFor(err error) int {
	if clone.KindOf(err) == clone.KindInput {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func tooLarge(err error) bool {
	if err == nil {
		return false
	}
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge)
}

func (h *handlers) output(c *gin.Context) {
	path, err := h.opts.Files.Path(c.Param("filename"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid file name."})
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, errorResponse{Error: "File not found."})
		return
	}
	c.Header("Content-Type", "audio/wav")
	c.File(path)
}

func (h *handlers) languages(c *gin.Context) {
	c.JSON(http.StatusOK, languages.All())
}

func (h *handlers) health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *handlers) ready(c *gin.Context) {
	if h.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := h.opts.Ready(ctx); err != nil {
			c.String(http.StatusServiceUnavailable, "not ready: %s", err.Error())
			return
		}
	}
	c.String(http.StatusOK, "ready")
}
