package server

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/user/sqeleton/internal/store"
)

// Request bodies. Times and durations are milliseconds. now_ms is a pointer
// so a missing value can be told apart from the epoch.

type enqueueBody struct {
	Payload  []byte `json:"payload"`
	Priority int64  `json:"priority"`
	TTRMs    int64  `json:"ttr_ms"`
	DelayMs  int64  `json:"delay_ms"`
	NowMs    *int64 `json:"now_ms"`
}

type reserveBody struct {
	NowMs *int64 `json:"now_ms"`
}

type releaseBody struct {
	Priority int64  `json:"priority"`
	DelayMs  int64  `json:"delay_ms"`
	NowMs    *int64 `json:"now_ms"`
}

type buryBody struct {
	Reason string `json:"reason"`
}

type kickBody struct {
	N int `json:"n"`
}

type wipeBody struct {
	Queue string `json:"queue"`
	All   bool   `json:"all"`
}

func requireNowMs(ms *int64) (time.Time, error) {
	if ms == nil {
		return time.Time{}, store.NewInvalidArgument("now_ms is required")
	}
	if err := store.ValidateNowMs(*ms); err != nil {
		return time.Time{}, err
	}
	return store.FromMillis(*ms), nil
}

// queueParam returns the {queue} segment decoded. chi routes on RawPath
// when the client escaped characters such as '/', and then hands back the
// segment still escaped.
func queueParam(r *http.Request) (string, error) {
	q := chi.URLParam(r, "queue")
	if r.URL.RawPath == "" {
		return q, nil
	}
	dec, err := url.PathUnescape(q)
	if err != nil {
		return "", store.NewInvalidArgument("bad queue name %q: %v", q, err)
	}
	return dec, nil
}

func badBody(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error(), string(store.ErrorCodeInvalidArgument))
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var body enqueueBody
	if err := decodeJSON(r, &body); err != nil {
		badBody(w, err)
		return
	}
	now, err := requireNowMs(body.NowMs)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	queue, err := queueParam(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	ttr, err := store.MillisDuration("ttr", body.TTRMs)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	delay, err := store.MillisDuration("delay", body.DelayMs)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	id, err := s.store.Enqueue(r.Context(), store.EnqueueRequest{
		Queue:    queue,
		Payload:  body.Payload,
		Priority: body.Priority,
		TTR:      ttr,
		Delay:    delay,
		Now:      now,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	var body reserveBody
	if err := decodeJSON(r, &body); err != nil {
		badBody(w, err)
		return
	}
	now, err := requireNowMs(body.NowMs)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	queue, err := queueParam(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	job, err := s.store.Dequeue(r.Context(), queue, now)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*store.Job{"job": job})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	var body releaseBody
	if err := decodeJSON(r, &body); err != nil {
		badBody(w, err)
		return
	}
	now, err := requireNowMs(body.NowMs)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	delay, err := store.MillisDuration("delay", body.DelayMs)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.store.Release(r.Context(), chi.URLParam(r, "id"), body.Priority, delay, now); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

func (s *Server) handleBury(w http.ResponseWriter, r *http.Request) {
	var body buryBody
	if err := decodeJSON(r, &body); err != nil {
		badBody(w, err)
		return
	}
	if err := s.store.Bury(r.Context(), chi.URLParam(r, "id"), body.Reason); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "buried"})
}

func (s *Server) handleKick(w http.ResponseWriter, r *http.Request) {
	var body kickBody
	if err := decodeJSON(r, &body); err != nil {
		badBody(w, err)
		return
	}
	queue, err := queueParam(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	n, err := s.store.Kick(r.Context(), queue, body.N)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"kicked": n})
}

func (s *Server) handleWipe(w http.ResponseWriter, r *http.Request) {
	var body wipeBody
	if err := decodeJSON(r, &body); err != nil {
		badBody(w, err)
		return
	}
	var scope store.WipeScope
	switch {
	case body.All && body.Queue != "":
		writeStoreError(w, store.NewInvalidArgument("wipe takes either all or queue, not both"))
		return
	case body.All:
		scope = store.WipeAll()
	case body.Queue != "":
		scope = store.WipeQueue(body.Queue)
	}
	n, err := s.store.Wipe(r.Context(), scope)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListQueues(w http.ResponseWriter, r *http.Request) {
	queues, err := s.store.ListQueues(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if queues == nil {
		queues = []store.QueueStats{}
	}
	writeJSON(w, http.StatusOK, map[string][]store.QueueStats{"queues": queues})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	queue, err := queueParam(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	st, err := s.store.Stats(r.Context(), queue)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
