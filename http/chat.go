package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/fwojciec/medic"
	medicjson "github.com/fwojciec/medic/json"
	"github.com/go-chi/chi/v5/middleware"
)

// Multipart form fields carrying JSON documents rather than scalars.
var jsonFormFields = map[string]bool{
	"consultation_data":    true,
	"vitals_data":          true,
	"habits_data":          true,
	"conditions_data":      true,
	"ai_consultation_data": true,
}

// handleChat serves a buffered chat response, or a stream when the body
// asks for one. forceTools enables the tool registry regardless of the
// request's use_tools flag.
func (s *Server) handleChat(forceTools bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, stream, err := decodeChat(w, r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if forceTools {
			req.UseTools = true
		}
		if stream {
			s.streamChat(w, r, req)
			return
		}

		resp, err := s.chat.Collect(r.Context(), req)
		if err != nil {
			s.logger.Warn("chat failed",
				"request_id", middleware.GetReqID(r.Context()),
				"error", err,
			)
			resp.Message = errorMessage(err)
			s.writeResponse(w, statusCode(err), *resp)
			return
		}
		s.writeResponse(w, http.StatusOK, *resp)
	}
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, _, err := decodeChat(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.streamChat(w, r, req)
}

// streamChat writes each event as one SSE data frame. The connection closes
// after the terminal event, or early when the client goes away.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, req medic.ChatRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, errors.New("streaming not supported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range s.chat.Stream(r.Context(), req) {
		data, err := medicjson.MarshalEvent(ev, s.now())
		if err != nil {
			s.logger.Error("encode event", "kind", ev.Kind(), "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			s.logger.Debug("client gone", "error", err)
			continue
		}
		flusher.Flush()
	}
}

func (s *Server) writeResponse(w http.ResponseWriter, code int, resp medic.Response) {
	data, err := medicjson.MarshalResponse(resp)
	if err != nil {
		http.Error(w, medic.Apology, http.StatusInternalServerError)
		return
	}
	s.writeBody(w, code, "application/json", data)
}

// decodeChat reads a JSON body or a multipart form whose "image" part
// carries the attachment.
func decodeChat(w http.ResponseWriter, r *http.Request) (medic.ChatRequest, bool, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return medicjson.DecodeChatRequest(r.Body)
	}
	return decodeChatForm(r)
}

func decodeChatForm(r *http.Request) (medic.ChatRequest, bool, error) {
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		return medic.ChatRequest{}, false, fmt.Errorf("parse form: %v: %w", err, medic.ErrValidation)
	}

	// Form values are re-encoded as a JSON body so both encodings share one
	// decoder.
	fields := make(map[string]any, len(r.MultipartForm.Value))
	for key, vals := range r.MultipartForm.Value {
		if len(vals) == 0 {
			continue
		}
		v := vals[0]
		switch {
		case key == "stream" || key == "use_tools":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return medic.ChatRequest{}, false, fmt.Errorf("field %s: %v: %w", key, err, medic.ErrValidation)
			}
			fields[key] = b
		case jsonFormFields[key]:
			if !json.Valid([]byte(v)) {
				return medic.ChatRequest{}, false, fmt.Errorf("field %s: invalid json: %w", key, medic.ErrValidation)
			}
			fields[key] = json.RawMessage(v)
		default:
			fields[key] = v
		}
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return medic.ChatRequest{}, false, fmt.Errorf("encode form: %w", err)
	}
	req, stream, err := medicjson.DecodeChatRequest(bytes.NewReader(body))
	if err != nil {
		return medic.ChatRequest{}, false, err
	}

	f, hdr, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return req, stream, nil
	}
	if err != nil {
		return medic.ChatRequest{}, false, fmt.Errorf("image part: %v: %w", err, medic.ErrValidation)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return medic.ChatRequest{}, false, fmt.Errorf("read image part: %v: %w", err, medic.ErrValidation)
	}
	req.Image = &medic.Image{
		Data:     data,
		MimeType: hdr.Header.Get("Content-Type"),
		Filename: hdr.Filename,
	}
	return req, stream, nil
}
