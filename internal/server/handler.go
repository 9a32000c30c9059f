/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/fxamacker/cbor/v2"
	"github.com/kentakayama/trust-anchor/internal/anchor"
	"github.com/kentakayama/trust-anchor/internal/domain/model"
	"github.com/kentakayama/trust-anchor/internal/journal"
	"github.com/kentakayama/trust-anchor/internal/metrics"
	"github.com/kentakayama/trust-anchor/internal/util"
)

const (
	maxRequestBodyBytes = 1 << 20 // 1 MiB is far more than any command or receipt.
	maxEventsPerPage    = 1000
)

const (
	contentTypeCOSE = "application/cose"
	contentTypeCBOR = "application/cbor"
	contentTypeText = "text/plain; charset=utf-8"
)

type handler struct {
	engine    *anchor.Engine
	journal   *journal.Journal
	mux       *http.ServeMux
	debugCBOR bool
	logger    *log.Logger
}

type responseSpec struct {
	status      int
	body        []byte
	contentType string
}

func newHandler(engine *anchor.Engine, j *journal.Journal, m *metrics.Metrics, debugCBOR bool, logger *log.Logger) *handler {
	h := &handler{
		engine:    engine,
		journal:   j,
		mux:       http.NewServeMux(),
		debugCBOR: debugCBOR,
		logger:    logger,
	}
	h.mux.HandleFunc("POST /anchor/commands", h.postCommand)
	h.mux.HandleFunc("POST /anchor/receipts", h.postReceipt)
	h.mux.HandleFunc("GET /anchor/commands/seq", h.getCommandSeq)
	h.mux.HandleFunc("GET /anchor/owner", h.getOwner)
	h.mux.HandleFunc("GET /anchor/devices/{hw_id}", h.getDevice)
	h.mux.HandleFunc("GET /anchor/firmware/{fw_hash}", h.getFirmware)
	h.mux.HandleFunc("GET /anchor/counters/{hw_id}", h.getCounter)
	h.mux.HandleFunc("GET /anchor/status/{hw_id}", h.getStatus)
	h.mux.HandleFunc("GET /anchor/events", h.getEvents)
	h.mux.HandleFunc("GET /anchor/checkpoint", h.getCheckpoint)
	if m != nil {
		h.mux.Handle("GET /metrics", m.Handler())
	}
	return h
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *handler) readBody(w http.ResponseWriter, r *http.Request, contentType string) ([]byte, bool) {
	if r.Header.Get("Content-Type") != contentType {
		h.logger.Printf("content type mismatch: expected %s, actual %v", contentType, r.Header.Get("Content-Type"))
		http.Error(w, "This endpoint only accepts Content-Type: "+contentType, http.StatusUnsupportedMediaType)
		return nil, false
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		h.logger.Printf("failed reading request body: %v", err)
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return nil, false
	}
	if err := r.Body.Close(); err != nil {
		h.logger.Printf("failed closing request body: %v", err)
		http.Error(w, "failed to close request body", http.StatusBadRequest)
		return nil, false
	}

	if h.debugCBOR {
		if s, err := util.RenderCBORBytes(body); err == nil {
			h.logger.Printf("%s %s\n%s", r.Method, r.URL.Path, s)
		}
	}
	return body, true
}

func (h *handler) postCommand(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r, contentTypeCOSE)
	if !ok {
		return
	}

	opened, err := anchor.OpenCommand(body)
	if err != nil {
		h.logger.Printf("rejected command envelope: %v", err)
		http.Error(w, "invalid command", http.StatusBadRequest)
		return
	}
	cmd := opened.Command

	err = h.engine.Dispatch(r.Context(), opened.Caller, opened.Seq, cmd)
	switch {
	case err == nil:
		h.writeResponse(w, responseSpec{status: http.StatusNoContent})
	case errors.Is(err, anchor.ErrAccessDenied):
		h.writeCBOR(w, http.StatusForbidden, anchor.NotOwnerFault())
	case errors.Is(err, anchor.ErrStaleCommand):
		http.Error(w, "stale command sequence number", http.StatusConflict)
	case errors.Is(err, anchor.ErrUnknownOpcode):
		http.Error(w, "invalid command", http.StatusBadRequest)
	default:
		h.logger.Printf("command %s failed: %v", cmd.Op, err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *handler) postReceipt(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r, contentTypeCBOR)
	if !ok {
		return
	}

	receipt, err := anchor.DecodeReceipt(body)
	if err != nil {
		h.logger.Printf("failed to parse receipt: %v", err)
		http.Error(w, "invalid receipt", http.StatusBadRequest)
		return
	}

	ev, err := h.engine.VerifyReceipt(r.Context(), receipt)
	if err != nil {
		_, rejected := anchor.ReasonOf(err)
		// a journal failure does not undo the decision
		if !rejected && !errors.Is(err, anchor.ErrJournal) {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
	}
	h.writeCBOR(w, http.StatusOK, ev)
}

func (h *handler) getCommandSeq(w http.ResponseWriter, r *http.Request) {
	seq, err := h.engine.CommandSeq(r.Context())
	h.writeQuery(w, seq, err)
}

func (h *handler) getOwner(w http.ResponseWriter, r *http.Request) {
	owner := h.engine.Owner()
	h.writeCBOR(w, http.StatusOK, owner[:])
}

func (h *handler) getDevice(w http.ResponseWriter, r *http.Request) {
	hwID, ok := h.hwIDParam(w, r)
	if !ok {
		return
	}
	authorized, err := h.engine.IsAuthorized(r.Context(), hwID)
	h.writeQuery(w, authorized, err)
}

func (h *handler) getFirmware(w http.ResponseWriter, r *http.Request) {
	fwHash, err := model.ParseHash(r.PathValue("fw_hash"))
	if err != nil {
		http.Error(w, "invalid fw_hash", http.StatusBadRequest)
		return
	}
	approved, err := h.engine.IsApprovedFirmware(r.Context(), fwHash)
	h.writeQuery(w, approved, err)
}

func (h *handler) getCounter(w http.ResponseWriter, r *http.Request) {
	hwID, ok := h.hwIDParam(w, r)
	if !ok {
		return
	}
	counter, err := h.engine.Counter(r.Context(), hwID)
	h.writeQuery(w, counter, err)
}

func (h *handler) getStatus(w http.ResponseWriter, r *http.Request) {
	hwID, ok := h.hwIDParam(w, r)
	if !ok {
		return
	}
	status, err := h.engine.Status(r.Context(), hwID)
	h.writeQuery(w, status, err)
}

// getEvents answers with the journal entries in the same [seq, recorded_at,
// event] form that is hashed into the tree.
func (h *handler) getEvents(w http.ResponseWriter, r *http.Request) {
	since, err := uintQuery(r, "since", 0)
	if err != nil {
		http.Error(w, "invalid since", http.StatusBadRequest)
		return
	}
	limit, err := uintQuery(r, "limit", maxEventsPerPage)
	if err != nil || limit == 0 || limit > maxEventsPerPage {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return
	}

	events, err := h.journal.Since(r.Context(), since, int(limit))
	if err != nil {
		h.writeQuery(w, nil, err)
		return
	}
	entries := make([]cbor.RawMessage, 0, len(events))
	for _, e := range events {
		leaf, err := journal.LeafData(e)
		if err != nil {
			h.writeQuery(w, nil, err)
			return
		}
		entries = append(entries, leaf)
	}
	h.writeCBOR(w, http.StatusOK, entries)
}

func (h *handler) getCheckpoint(w http.ResponseWriter, r *http.Request) {
	signed, err := h.journal.SignedCheckpoint()
	if err != nil {
		h.logger.Printf("failed to sign checkpoint: %v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.writeResponse(w, responseSpec{
		status:      http.StatusOK,
		body:        signed,
		contentType: contentTypeText,
	})
}

func (h *handler) hwIDParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	// decimal or 0x-prefixed hex
	hwID, err := strconv.ParseUint(r.PathValue("hw_id"), 0, 64)
	if err != nil {
		http.Error(w, "invalid hw_id", http.StatusBadRequest)
		return 0, false
	}
	return hwID, true
}

func uintQuery(r *http.Request, name string, def uint64) (uint64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

func (h *handler) writeQuery(w http.ResponseWriter, v any, err error) {
	if err != nil {
		h.logger.Printf("query failed: %v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.writeCBOR(w, http.StatusOK, v)
}

func (h *handler) writeCBOR(w http.ResponseWriter, status int, v any) {
	body, err := cbor.Marshal(v)
	if err != nil {
		h.logger.Printf("failed to encode response: %v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.writeResponse(w, responseSpec{
		status:      status,
		body:        body,
		contentType: contentTypeCBOR,
	})
}

func (h *handler) writeResponse(w http.ResponseWriter, spec responseSpec) {
	w.Header().Set("Server", "trust-anchor")

	if len(spec.body) > 0 {
		for k, v := range defaultHeaders {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", spec.contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(spec.body)))
		w.WriteHeader(spec.status)
		if _, err := w.Write(spec.body); err != nil {
			h.logger.Printf("failed writing response body: %v", err)
		}
		return
	}

	w.WriteHeader(spec.status)
}

var defaultHeaders = map[string]string{
	"Cache-Control":           "no-store",
	"X-Content-Type-Options":  "nosniff",
	"Content-Security-Policy": "default-src 'none'",
	"Referrer-Policy":         "no-referrer",
}
