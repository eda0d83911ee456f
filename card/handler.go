package card

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
)

// DefaultMaxImageBytes bounds an uploaded photo.
const DefaultMaxImageBytes = 10 << 20

// Handler serves card generation over HTTP. It accepts a multipart form with the
// fields image, name and birthday and streams the workflow events as NDJSON.
//
// A malformed form is answered with 400 before anything is streamed, so a payment
// gateway in front of the handler does not charge for it. Once streaming starts the
// status is 200 and failures are reported as an error event.
type Handler struct {
	Workflow *Workflow

	// MaxImageBytes bounds the image field. Zero means DefaultMaxImageBytes.
	MaxImageBytes int64

	// Timeout bounds one workflow run. Zero means no limit.
	Timeout time.Duration
}

func (h *Handler) maxImageBytes() int64 {
	if h.MaxImageBytes <= 0 {
		return DefaultMaxImageBytes
	}
	return h.MaxImageBytes
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, err := h.parse(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The run outlives a disconnected client: the card is paid for once the
	// stream starts.
	ctx := context.WithoutCancel(r.Context())
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	_, _ = h.Workflow.Run(ctx, req, NewNDJSONWriter(w))
}

// Validate checks the form of r without running the workflow. It consumes the
// body, so pass a clone.
func (h *Handler) Validate(r *http.Request) error {
	_, err := h.parse(nil, r)
	return err
}

// parse reads the multipart form. Only the form shape is checked here.
func (h *Handler) parse(w http.ResponseWriter, r *http.Request) (Request, error) {
	limit := h.maxImageBytes()
	if w != nil {
		r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	}
	err := r.ParseMultipartForm(limit)
	// Parts over limit spill to temp files; the request is the only owner.
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return Request{}, errors.New("image is too large")
		}
		return Request{}, errors.New("expected a multipart form")
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return Request{}, errors.New("image is required")
	}
	defer file.Close()
	if header.Size > limit {
		return Request{}, errors.New("image is too large")
	}
	image, err := io.ReadAll(io.LimitReader(file, limit))
	if err != nil || len(image) == 0 {
		return Request{}, errors.New("image is required")
	}

	name := r.FormValue("name")
	if name == "" {
		return Request{}, errors.New("name is required")
	}
	birthday := r.FormValue("birthday")
	if birthday == "" {
		return Request{}, errors.New("birthday is required")
	}

	return Request{Image: image, Name: name, Birthday: birthday}, nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
