package handlers

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"captionflow/internal/dispatch"
	"captionflow/internal/httpkit"
	"captionflow/internal/media"
	apperrors "captionflow/internal/pkg/errors"
)

const queuedMessage = "The video has been queued for processing"

// maxFieldBytes bounds a plain multipart form value.
const maxFieldBytes = 8 << 10

type ProcessVideoRequest struct {
	VideoID        string `json:"videoId"`
	VideoURL       string `json:"videoUrl"`
	VideoExtension string `json:"videoExtension"`
	AudioID        string `json:"audioId,omitempty"`
	AudioURL       string `json:"audioUrl,omitempty"`
	AudioExtension string `json:"audioExtension,omitempty"`
	VideoWidth     *int   `json:"videoWidth,omitempty"`
	VideoHeight    *int   `json:"videoHeight,omitempty"`
	WebhookURL     string `json:"webhookUrl,omitempty"`
	Pipeline       string `json:"pipeline,omitempty"`
}

type ProcessVideoResponse struct {
	Message    string `json:"message"`
	JobID      string `json:"jobId"`
	WorkflowID string `json:"workflowId"`
}

// PostVideo accepts either a JSON body referencing hosted files or a
// multipart upload, and dispatches the first stage of the pipeline.
func (h *Handler) PostVideo(w http.ResponseWriter, r *http.Request) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		in  dispatch.JobInput
		err error
	)
	switch mediaType {
	case "multipart/form-data":
		in, err = h.readMultipart(r)
	case "application/json", "":
		in, err = readJSON(r)
	default:
		return apperrors.Validationf("unsupported content type %q", mediaType).
			WithField("fields", []string{"Content-Type"})
	}
	if err != nil {
		return err
	}

	res, err := h.dispatcher.Submit(r.Context(), in)
	if err != nil {
		if in.Video.URL == "" {
			h.discardUploads(in)
		}
		return asFieldError(err)
	}

	httpkit.WriteJSON(w, http.StatusAccepted, ProcessVideoResponse{
		Message:    queuedMessage,
		JobID:      res.JobID,
		WorkflowID: res.WorkflowID,
	})
	return nil
}

func readJSON(r *http.Request) (dispatch.JobInput, error) {
	var req ProcessVideoRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		msg := "invalid json body"
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			msg = "request body too large"
		case errors.Is(err, httpkit.ErrEmptyBody):
			msg = "request body is empty"
		}
		return dispatch.JobInput{}, apperrors.Validation(msg).WithField("fields", []string{"body"})
	}
	return req.toInput()
}

func (req ProcessVideoRequest) toInput() (dispatch.JobInput, error) {
	var fe fieldErrors

	if strings.TrimSpace(req.VideoID) == "" {
		fe.add("videoId", "videoId is required")
	}
	if !isHTTPURL(req.VideoURL) {
		fe.add("videoUrl", "videoUrl must be an absolute http(s) URL")
	}
	if strings.TrimSpace(req.VideoExtension) == "" {
		fe.add("videoExtension", "videoExtension is required")
	}
	if req.AudioURL != "" {
		if !isHTTPURL(req.AudioURL) {
			fe.add("audioUrl", "audioUrl must be an absolute http(s) URL")
		}
		if strings.TrimSpace(req.AudioExtension) == "" {
			fe.add("audioExtension", "audioExtension is required with audioUrl")
		}
	}
	dims := dimensions(req.VideoWidth, req.VideoHeight, &fe)
	if req.WebhookURL != "" && !isHTTPURL(req.WebhookURL) {
		fe.add("webhookUrl", "webhookUrl must be an absolute http(s) URL")
	}
	if !fe.empty() {
		return dispatch.JobInput{}, fe.err()
	}

	in := dispatch.JobInput{
		Pipeline:   req.Pipeline,
		Video:      dispatch.Source{ID: req.VideoID, URL: req.VideoURL, Extension: req.VideoExtension},
		Dimensions: dims,
		WebhookURL: req.WebhookURL,
	}
	if req.AudioURL != "" {
		in.Audio = &dispatch.Source{ID: req.AudioID, URL: req.AudioURL, Extension: req.AudioExtension}
	}
	return in, nil
}

// readMultipart streams uploaded files into the media directory as
// <uuid><ext> and collects the plain form fields.
func (h *Handler) readMultipart(r *http.Request) (dispatch.JobInput, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return dispatch.JobInput{}, apperrors.Validation("invalid multipart body").WithField("fields", []string{"body"})
	}
	if err := os.MkdirAll(h.mediaDir, 0o755); err != nil {
		return dispatch.JobInput{}, apperrors.Wrap(err, "httpapi.upload", "media directory unavailable")
	}

	var (
		in     dispatch.JobInput
		fe     fieldErrors
		form   = map[string]string{}
		stored []string
	)
	cleanup := func() {
		for _, p := range stored {
			_ = os.Remove(p)
		}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			cleanup()
			return dispatch.JobInput{}, apperrors.Validation("invalid multipart body").WithField("fields", []string{"body"})
		}

		name := part.FormName()
		switch {
		case name == "videoFile" || name == "audioFile":
			src, path, err := h.storeUpload(part)
			part.Close()
			if err != nil {
				cleanup()
				var ve *apperrors.Error
				if apperrors.As(err, &ve) && ve.Code == apperrors.CodeValidation {
					return dispatch.JobInput{}, ve.WithField("fields", []string{name})
				}
				return dispatch.JobInput{}, err
			}
			stored = append(stored, path)
			if name == "videoFile" {
				in.Video = src
			} else {
				in.Audio = &src
			}
		case part.FileName() == "":
			b, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
			part.Close()
			if err != nil {
				cleanup()
				return dispatch.JobInput{}, apperrors.Validation("invalid multipart body").WithField("fields", []string{name})
			}
			form[name] = strings.TrimSpace(string(b))
		default:
			part.Close()
		}
	}

	if in.Video.ID == "" {
		fe.add("videoFile", "videoFile is required")
	}
	width := optionalInt("videoWidth", form["videoWidth"], &fe)
	height := optionalInt("videoHeight", form["videoHeight"], &fe)
	in.Dimensions = dimensions(width, height, &fe)
	in.WebhookURL = form["webhookUrl"]
	if in.WebhookURL != "" && !isHTTPURL(in.WebhookURL) {
		fe.add("webhookUrl", "webhookUrl must be an absolute http(s) URL")
	}
	in.Pipeline = form["pipeline"]

	if !fe.empty() {
		cleanup()
		return dispatch.JobInput{}, fe.err()
	}
	return in, nil
}

func (h *Handler) storeUpload(part *multipart.Part) (dispatch.Source, string, error) {
	ext := media.NormalizeExtension(filepath.Ext(part.FileName()))
	if ext == "" {
		return dispatch.Source{}, "", apperrors.Validation("uploaded file has no extension")
	}

	id := uuid.NewString()
	path := filepath.Join(h.mediaDir, id+ext)
	f, err := os.Create(path)
	if err != nil {
		return dispatch.Source{}, "", apperrors.Wrap(err, "httpapi.upload", "create upload file")
	}
	if _, err := io.Copy(f, part); err != nil {
		f.Close()
		_ = os.Remove(path)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return dispatch.Source{}, "", apperrors.Validation("upload too large")
		}
		return dispatch.Source{}, "", apperrors.Wrap(err, "httpapi.upload", "write upload file")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return dispatch.Source{}, "", apperrors.Wrap(err, "httpapi.upload", "close upload file")
	}
	return dispatch.Source{ID: id, Extension: ext}, path, nil
}

// discardUploads removes files stored for a request whose dispatch failed.
func (h *Handler) discardUploads(in dispatch.JobInput) {
	srcs := []dispatch.Source{in.Video}
	if in.Audio != nil {
		srcs = append(srcs, *in.Audio)
	}
	for _, s := range srcs {
		if s.ID == "" || s.URL != "" {
			continue
		}
		_ = os.Remove(filepath.Join(h.mediaDir, s.ID+media.NormalizeExtension(s.Extension)))
	}
}

func dimensions(width, height *int, fe *fieldErrors) *media.VideoDimensions {
	switch {
	case width == nil && height == nil:
		return nil
	case width == nil:
		fe.add("videoWidth", "videoWidth is required with videoHeight")
	case height == nil:
		fe.add("videoHeight", "videoHeight is required with videoWidth")
	case *width <= 0 || *height <= 0:
		fe.add("videoWidth", "video dimensions must be positive")
	default:
		return &media.VideoDimensions{Width: *width, Height: *height}
	}
	return nil
}

func optionalInt(field, raw string, fe *fieldErrors) *int {
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		fe.add(field, field+" must be an integer")
		return nil
	}
	return &n
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
