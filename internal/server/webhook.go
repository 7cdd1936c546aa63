package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"

	"github.com/renderbox/overlay-api/internal/job"
)

// webhookBodyLimit caps how much of an upstream payload is read.
const webhookBodyLimit = 2 << 20

// rawPreviewLimit caps the raw-body echo in /webhook/test responses.
const rawPreviewLimit = 2048

// mp4URLRe matches the first MP4 URL anywhere inside a string value.
var mp4URLRe = regexp.MustCompile(`(?i)https?://[^\s"']+\.mp4(?:\?[^\s"']*)?`)

// preferredMediaKeys are checked before a full payload walk, so a
// well-known field wins over an MP4 URL buried in free text.
var preferredMediaKeys = []string{"media_url", "url", "file", "mp4", "video", "source", "original"}

// requestIDKeys are probed, in order, for an upstream correlation id.
var requestIDKeys = []string{"id", "media_id", "session_id", "uid", "filename"}

// Webhook handles POST /webhook requests from upstream media services.
// The payload shape is not under our control: it may be JSON of any
// nesting, or form-encoded. The first MP4 URL found anywhere in it is
// queued as an async render with the default overlay. Replies are
// always 200: upstreams retry on non-2xx, and a payload we cannot use
// now is a payload we cannot use on the fifth retry either.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, _ := h.decodeWebhookPayload(r)

	mediaURL := findMP4(payload)
	upstreamID := findRequestID(payload)

	if mediaURL == "" {
		h.logger.Warn("webhook payload has no MP4 URL",
			slog.String("upstream_id", upstreamID),
		)
		writeJSON(w, http.StatusOK, WebhookResponse{
			Status: "ignored",
			Reason: "no_mp4_in_payload",
			ID:     upstreamID,
		})
		return
	}

	created, err := h.service.Submit(r.Context(), job.RenderInput{Input: mediaURL})
	if err != nil {
		// Logged, not surfaced: a retry storm from the upstream would
		// only deepen the capacity problem.
		h.logger.Warn("webhook render dropped",
			slog.String("media_url", mediaURL),
			slog.String("upstream_id", upstreamID),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusOK, WebhookResponse{
			Status:   "dropped",
			Reason:   "capacity_exceeded",
			MediaURL: mediaURL,
			ID:       upstreamID,
		})
		return
	}

	h.logger.Info("webhook render queued",
		slog.String("job_id", created.ID),
		slog.String("media_url", mediaURL),
		slog.String("upstream_id", upstreamID),
	)
	writeJSON(w, http.StatusOK, WebhookResponse{
		Status:   "queued",
		MediaURL: mediaURL,
		ID:       created.ID,
	})
}

// WebhookTest handles POST /webhook/test requests: it echoes what was
// received, to help inspect an upstream's test button output.
func (h *Handlers) WebhookTest(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))

	var parsed any
	_ = json.Unmarshal(raw, &parsed)

	r.Body = io.NopCloser(bytes.NewReader(raw))
	var form url.Values
	if err := r.ParseForm(); err == nil && len(r.PostForm) > 0 {
		form = r.PostForm
	}

	preview := raw
	if len(preview) > rawPreviewLimit {
		preview = preview[:rawPreviewLimit]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"headers":     r.Header,
		"json":        parsed,
		"form":        form,
		"raw_preview": string(preview),
	})
}

// decodeWebhookPayload parses the request body as JSON, falling back to
// form encoding. An unparseable body yields a nil payload, which the
// caller reports as ignored rather than erroring.
func (h *Handlers) decodeWebhookPayload(r *http.Request) (any, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	var payload any
	if jsonErr := json.Unmarshal(raw, &payload); jsonErr == nil {
		return payload, nil
	}

	if formErr := r.ParseForm(); formErr == nil && len(r.PostForm) > 0 {
		form := make(map[string]any, len(r.PostForm))
		for key, values := range r.PostForm {
			items := make([]any, len(values))
			for i, v := range values {
				items[i] = v
			}
			form[key] = items
		}
		return form, nil
	}

	return nil, nil
}

// findMP4 recursively searches a decoded payload for the first MP4 URL.
// Maps are probed at well-known keys first, then exhaustively.
func findMP4(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return mp4URLRe.FindString(val)
	case map[string]any:
		for _, key := range preferredMediaKeys {
			if inner, ok := val[key]; ok {
				if u := findMP4(inner); u != "" {
					return u
				}
			}
		}
		for _, inner := range val {
			if u := findMP4(inner); u != "" {
				return u
			}
		}
		return ""
	case []any:
		for _, inner := range val {
			if u := findMP4(inner); u != "" {
				return u
			}
		}
		return ""
	default:
		return ""
	}
}

// findRequestID picks an upstream correlation id from the payload's
// top-level keys, if one is present.
func findRequestID(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range requestIDKeys {
		inner, present := m[key]
		if !present {
			continue
		}
		switch val := inner.(type) {
		case string:
			return val
		case float64:
			return jsonNumberString(val)
		}
	}
	return ""
}

// jsonNumberString renders a JSON number without a trailing ".0" for
// integral values.
func jsonNumberString(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}
