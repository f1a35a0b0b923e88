package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/teemow/vapormail/internal/inbox"
	"github.com/teemow/vapormail/internal/logging"
	"github.com/teemow/vapormail/internal/mailtm"
)

// maxExportPages caps how many pages an inbox export fetches upstream.
const maxExportPages = 10

type messageResponse struct {
	ID             string    `json:"id"`
	From           string    `json:"from"`
	Subject        string    `json:"subject"`
	Intro          string    `json:"intro"`
	Seen           bool      `json:"seen"`
	HasAttachments bool      `json:"hasAttachments"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toMessageResponse(m mailtm.Message) messageResponse {
	return messageResponse{
		ID:             m.ID,
		From:           inbox.FormatSender(m),
		Subject:        m.Subject,
		Intro:          m.Intro,
		Seen:           m.Seen,
		HasAttachments: m.HasAttachments,
		CreatedAt:      m.CreatedAt,
	}
}

// handleAPIMessages lists the inbox. An optional q parameter filters
// the fetched page by subject, preview, sender, and recipient.
func (s *Server) handleAPIMessages(w http.ResponseWriter, r *http.Request) {
	token, ok := s.requireToken(w, r)
	if !ok {
		return
	}

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		page = n
	}

	list, err := s.mail.Messages(r.Context(), token, page, mailtm.DefaultPageSize)
	if err != nil {
		s.logger.Error("message listing failed", logging.Err(err))
		respondMailError(w, err)
		return
	}

	msgs := inbox.Filter(list.Messages, r.URL.Query().Get("q"))
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"messages": out,
		"total":    list.Total,
		"page":     page,
	})
}

// handleAPIMessage returns the full message and marks it seen. A
// failure to mark is logged but does not fail the read.
func (s *Server) handleAPIMessage(w http.ResponseWriter, r *http.Request) {
	token, ok := s.requireToken(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	detail, err := s.mail.Message(r.Context(), token, id)
	if err != nil {
		respondMailError(w, err)
		return
	}

	if !detail.Seen {
		if err := s.mail.MarkSeen(r.Context(), token, id); err != nil {
			s.logger.Warn("marking message seen failed", logging.Err(err))
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"id":             detail.ID,
		"from":           inbox.FormatSender(detail.Message),
		"subject":        detail.Subject,
		"intro":          detail.Intro,
		"seen":           true,
		"hasAttachments": detail.HasAttachments,
		"createdAt":      detail.CreatedAt,
		"text":           detail.Text,
		"html":           detail.HTML,
	})
}

// handleAPIMessageDelete deletes a message upstream.
func (s *Server) handleAPIMessageDelete(w http.ResponseWriter, r *http.Request) {
	token, ok := s.requireToken(w, r)
	if !ok {
		return
	}

	if err := s.mail.DeleteMessage(r.Context(), token, r.PathValue("id")); err != nil {
		respondMailError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAPIExport downloads the inbox in the requested format.
func (s *Server) handleAPIExport(w http.ResponseWriter, r *http.Request) {
	token, ok := s.requireToken(w, r)
	if !ok {
		return
	}

	format := r.URL.Query().Get("format")
	msgs, err := s.fetchAllMessages(r.Context(), token)
	if err != nil {
		respondMailError(w, err)
		return
	}

	result, err := inbox.Export(msgs, format, time.Now())
	if err != nil {
		respondError(w, http.StatusBadRequest, "unsupported export format")
		return
	}

	if s.metrics != nil {
		s.metrics.RecordExport(r.Context(), format)
	}
	s.logger.Info("inbox exported",
		logging.Operation("inbox.export"),
		"format", format,
		"messages", len(msgs))

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	_, _ = w.Write(result.Content)
}

// fetchAllMessages pages through the inbox up to maxExportPages.
func (s *Server) fetchAllMessages(ctx context.Context, token string) ([]mailtm.Message, error) {
	var all []mailtm.Message
	for page := 1; page <= maxExportPages; page++ {
		list, err := s.mail.Messages(ctx, token, page, mailtm.DefaultPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, list.Messages...)
		if len(list.Messages) == 0 || len(all) >= list.Total {
			break
		}
	}
	return all, nil
}
