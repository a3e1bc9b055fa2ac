package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-functions/internal/docstore"
	"github.com/hackgods/clinic-functions/internal/functions"
	"github.com/hackgods/clinic-functions/internal/records"
)

const maxBodyBytes = 1 << 20

func callableHandler(fns map[string]functions.Callable, timeout time.Duration, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		fn, ok := fns[name]
		if !ok {
			writeCallableError(w, &functions.Error{Code: functions.CodeNotFound, Message: "Function " + name + " not found"})
			return
		}

		var req CallableRequest
		if err := decodeBody(r, &req); err != nil {
			writeCallableError(w, &functions.Error{Code: functions.CodeInvalidArgument, Message: "Request body must be {\"data\": ...}"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		result, err := fn(ctx, CallerFromContext(r.Context()), req.Data)
		if err != nil {
			fe := functions.AsError(err)
			if fe.Code == functions.CodeInternal {
				log.Error().Err(err).Str("callable", name).Str("request_id", GetRequestID(r.Context())).Msg("callable failed")
			}
			writeCallableError(w, fe)
			return
		}

		writeJSON(w, http.StatusOK, CallableResponse{Result: result})
	}
}

func httpFunctionHandler(fns map[string]functions.HTTPFunc, timeout time.Duration, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		fn, ok := fns[name]
		if !ok {
			writeError(w, http.StatusNotFound, "function_not_found", name)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		result, err := fn(ctx)
		if err != nil {
			log.Error().Err(err).Str("function", name).Str("request_id", GetRequestID(r.Context())).Msg("http function failed")
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// documentCollections are the collections clients may write through the
// document API. scheduled_deletions is owned by the expiry sweeper.
var documentCollections = map[string]bool{
	records.Users:               true,
	records.Patients:            true,
	records.Professionals:       true,
	records.LegacyProfessionals: true,
	records.Appointments:        true,
	records.Reviews:             true,
	records.Availability:        true,
	records.Notifications:       true,
	records.ProviderRequests:    true,
	records.AppointmentRequests: true,
}

type documentHandler struct {
	store *docstore.Client
	now   func() time.Time
}

// collection resolves the {collection} parameter and checks the caller.
func (h *documentHandler) collection(w http.ResponseWriter, r *http.Request) (string, bool) {
	if CallerFromContext(r.Context()) == nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "a bearer token is required")
		return "", false
	}
	coll := chi.URLParam(r, "collection")
	if !documentCollections[coll] {
		writeError(w, http.StatusNotFound, "unknown_collection", coll)
		return "", false
	}
	return coll, true
}

func (h *documentHandler) create(w http.ResponseWriter, r *http.Request) {
	coll, ok := h.collection(w, r)
	if !ok {
		return
	}
	data, ok := h.readDocument(w, r)
	if !ok {
		return
	}

	id, err := h.store.Add(r.Context(), coll, data)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, DocumentResponse{Collection: coll, ID: id, Data: data})
}

func (h *documentHandler) replace(w http.ResponseWriter, r *http.Request) {
	coll, ok := h.collection(w, r)
	if !ok {
		return
	}
	data, ok := h.readDocument(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.store.Set(r.Context(), coll, id, data); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentResponse{Collection: coll, ID: id, Data: data})
}

func (h *documentHandler) update(w http.ResponseWriter, r *http.Request) {
	coll, ok := h.collection(w, r)
	if !ok {
		return
	}
	var fields map[string]any
	if err := decodeBody(r, &fields); err != nil || len(fields) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "body must be a non-empty JSON object")
		return
	}
	fields["updatedAt"] = h.now().UTC()

	id := chi.URLParam(r, "id")
	if err := h.store.Update(r.Context(), coll, id, fields); err != nil {
		writeStoreError(w, err)
		return
	}

	doc, err := h.store.Get(r.Context(), coll, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentResponse{Collection: coll, ID: id, Data: doc.Data})
}

func (h *documentHandler) get(w http.ResponseWriter, r *http.Request) {
	coll, ok := h.collection(w, r)
	if !ok {
		return
	}

	doc, err := h.store.Get(r.Context(), coll, chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentResponse{Collection: coll, ID: doc.ID, Data: doc.Data})
}

func (h *documentHandler) delete(w http.ResponseWriter, r *http.Request) {
	coll, ok := h.collection(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), coll, chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readDocument decodes a document body and stamps createdAt when the client
// left it out.
func (h *documentHandler) readDocument(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var data map[string]any
	if err := decodeBody(r, &data); err != nil || data == nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "body must be a JSON object")
		return nil, false
	}
	if _, ok := data["createdAt"]; !ok {
		data["createdAt"] = h.now().UTC()
	}

	stored, err := docstore.Encode(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return nil, false
	}
	return stored, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "document_not_found", err.Error())
	case errors.Is(err, docstore.ErrInvalidQuery), errors.Is(err, docstore.ErrBatchTooLarge):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// decodeBody decodes a JSON body. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
