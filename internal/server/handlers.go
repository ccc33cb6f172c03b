package server

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/elparko/CaseTracker/internal/analytics"
	"github.com/elparko/CaseTracker/internal/apperr"
	"github.com/elparko/CaseTracker/internal/audio"
	"github.com/elparko/CaseTracker/internal/cases"
	"github.com/elparko/CaseTracker/internal/workflow"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type listParams struct {
	Skip  int `json:"skip" validate:"gte=0"`
	Limit int `json:"limit" validate:"gte=1,lte=1000"`
}

type searchParams struct {
	Text      string   `json:"q" validate:"max=500"`
	Tags      []string `json:"tags" validate:"dive,max=64"`
	Favorites bool     `json:"favorites"`
}

type removeTagsRequest struct {
	Tags []string `json:"tags" validate:"required,min=1,dive,required,max=64"`
}

type removeTagsResponse struct {
	CaseID  string   `json:"case_id"`
	Tags    []string `json:"tags"`
	Message string   `json:"message"`
}

type tagsResponse struct {
	Tags            []string       `json:"tags"`
	TagCounts       map[string]int `json:"tag_counts"`
	TotalUniqueTags int            `json:"total_unique_tags"`
}

type suggestResponse struct {
	Suggestions []string `json:"suggestions"`
}

type summaryResponse struct {
	analytics.Summary
	GoalProgress float64 `json:"goal_progress"`
}

type analyzeRequest struct {
	Transcription string   `json:"transcription" validate:"required,max=200000"`
	Tags          []string `json:"tags" validate:"dive,max=64"`
	Notes         string   `json:"notes" validate:"max=20000"`
}

type analyzeResponse struct {
	CaseID        string       `json:"case_id"`
	Transcription string       `json:"transcription"`
	Analysis      cases.Record `json:"analysis"`
}

type transcribeResponse struct {
	Transcription string `json:"transcription"`
}

type healthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if len(s.opts.Checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		resp.Services = make(map[string]string, len(s.opts.Checks))
		for name, p := range s.opts.Checks {
			if err := p.Ping(ctx); err != nil {
				resp.Services[name] = "unavailable"
				resp.Status = "degraded"
				continue
			}
			resp.Services[name] = "ok"
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) listCases(w http.ResponseWriter, r *http.Request) {
	params := listParams{Skip: 0, Limit: 100}
	if err := queryInt(r, "skip", &params.Skip); err != nil {
		s.respondError(w, err)
		return
	}
	if err := queryInt(r, "limit", &params.Limit); err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.validate.Struct(params); err != nil {
		s.respondError(w, err)
		return
	}

	recs, err := s.svc.List(r.Context(), params.Skip, params.Limit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, recs)
}

func (s *Server) createCase(w http.ResponseWriter, r *http.Request) {
	var d cases.Draft
	if err := decodeJSON(r, &d); err != nil {
		s.respondError(w, err)
		return
	}
	// Recordings only enter through upload-audio.
	d.AudioReference = ""
	if err := s.validate.Struct(d); err != nil {
		s.respondError(w, err)
		return
	}

	rec, err := s.svc.Create(r.Context(), d)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, rec)
}

func (s *Server) getCase(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Get(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) updateCase(w http.ResponseWriter, r *http.Request) {
	var p cases.Patch
	if err := decodeJSON(r, &p); err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.validate.Struct(p); err != nil {
		s.respondError(w, err)
		return
	}

	rec, err := s.svc.Update(r.Context(), chi.URLParam(r, "caseID"), p)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) deleteCase(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), chi.URLParam(r, "caseID")); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, messageResponse{Message: "case deleted"})
}

func (s *Server) removeTags(w http.ResponseWriter, r *http.Request) {
	var req removeTagsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.respondError(w, err)
		return
	}

	id := chi.URLParam(r, "caseID")
	rec, err := s.svc.RemoveTags(r.Context(), id, req.Tags)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, removeTagsResponse{CaseID: id, Tags: rec.Tags, Message: "tags removed"})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := searchParams{
		Text:      q.Get("q"),
		Tags:      splitList(q["tags"]),
		Favorites: q.Get("favorites") == "true",
	}
	if err := s.validate.Struct(params); err != nil {
		s.respondError(w, err)
		return
	}

	query := cases.Query{Text: params.Text, Tags: params.Tags, FavoritesOnly: params.Favorites}
	if q.Has("specialty") {
		query.Specialty = cases.StringPtr(q.Get("specialty"))
	}
	recs, err := s.svc.Search(r.Context(), query)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, recs)
}

func (s *Server) listTags(w http.ResponseWriter, r *http.Request) {
	vocab, err := s.svc.Vocabulary(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, tagsResponse{
		Tags:            vocab.All(),
		TagCounts:       vocab.Counts(),
		TotalUniqueTags: vocab.Len(),
	})
}

func (s *Server) suggestTags(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	got, err := s.svc.SuggestTags(r.Context(), q.Get("q"), splitList(q["exclude"]))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, suggestResponse{Suggestions: got})
}

func (s *Server) analyticsSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.svc.Analytics(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, summaryResponse{Summary: sum, GoalProgress: sum.GoalProgress()})
}

// transcribeOnly converts an uploaded recording to text without saving
// anything.
func (s *Server) transcribeOnly(w http.ResponseWriter, r *http.Request) {
	p, err := readUpload(w, r)
	if err != nil {
		s.respondError(w, err)
		return
	}

	sess := s.newSession()
	defer func() { _ = sess.Discard() }()
	if err := sess.Import(p); err != nil {
		s.respondError(w, err)
		return
	}
	text, err := sess.Transcribe(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, transcribeResponse{Transcription: text})
}

// analyzeTranscription finalizes a case from typed or previously
// transcribed text.
func (s *Server) analyzeTranscription(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.respondError(w, err)
		return
	}

	sess := s.newSession()
	rec, err := s.finalize(r.Context(), sess, func() error {
		if err := sess.ManualEntry(); err != nil {
			return err
		}
		return sess.Edit(req.Transcription)
	}, req.Tags, req.Notes)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, analyzeResponse{CaseID: rec.ID, Transcription: rec.Transcription, Analysis: rec})
}

// uploadAudio runs an uploaded recording through transcription and analysis
// in one request and keeps the audio with the case.
func (s *Server) uploadAudio(w http.ResponseWriter, r *http.Request) {
	p, err := readUpload(w, r)
	if err != nil {
		s.respondError(w, err)
		return
	}

	sess := s.newSession()
	rec, err := s.finalize(r.Context(), sess, func() error {
		if err := sess.Import(p); err != nil {
			return err
		}
		_, err := sess.Transcribe(r.Context())
		return err
	}, splitList(r.MultipartForm.Value["tags"]), r.FormValue("notes"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, analyzeResponse{CaseID: rec.ID, Transcription: rec.Transcription, Analysis: rec})
}

// finalize brings sess to Reviewing with prepare, applies tags and notes
// and analyzes. The session is discarded on any failure.
func (s *Server) finalize(ctx context.Context, sess *workflow.Session, prepare func() error, tagList []string, notes string) (cases.Record, error) {
	rec, err := func() (cases.Record, error) {
		if err := prepare(); err != nil {
			return cases.Record{}, err
		}
		if len(tagList) > 0 {
			if err := sess.AddTags(tagList...); err != nil {
				return cases.Record{}, err
			}
		}
		if notes != "" {
			if err := sess.SetNotes(notes); err != nil {
				return cases.Record{}, err
			}
		}
		return sess.Analyze(ctx)
	}()
	if err != nil {
		if derr := sess.Discard(); derr != nil {
			s.log.Debug("discard session", zap.Error(derr))
		}
		return cases.Record{}, err
	}
	return rec, nil
}

// readUpload reads the "audio" part of a multipart request.
func readUpload(w http.ResponseWriter, r *http.Request) (audio.Payload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		return audio.Payload{}, apperr.Wrap(apperr.KindValidation, "expected a multipart upload with an audio file", err)
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		return audio.Payload{}, apperr.Wrap(apperr.KindValidation, "missing audio file", err)
	}
	defer file.Close()

	format, err := audio.FormatForFile(header.Filename)
	if err != nil {
		return audio.Payload{}, err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return audio.Payload{}, apperr.Wrap(apperr.KindValidation, "read audio file", err)
	}
	if len(data) == 0 {
		return audio.Payload{}, apperr.Validation("audio file is empty")
	}

	p := audio.Payload{Data: data, Format: format}
	if d, ok := audio.WAVDuration(data); ok {
		p.Duration = d
	}
	return p, nil
}

func queryInt(r *http.Request, key string, dst *int) error {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return apperr.Validation(key + " must be an integer")
	}
	*dst = n
	return nil
}

// splitList accepts both repeated parameters and comma-separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
