// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ghostlightlabs/gatekeeper/pkg/logger"
)

// maxWebhookBodyBytes bounds how much of a delivery body is read.
const maxWebhookBodyBytes = 5 << 20 // 5 MiB

// Handler serves POST /webhooks/{provider}: it verifies the delivery's
// signature and responds 200 on accepted, 400 on invalid signature, 405 on
// any other method.
type Handler struct {
	verifier *Verifier
}

// NewHandler creates a Handler.
func NewHandler(verifier *Verifier) *Handler {
	return &Handler{verifier: verifier}
}

// ServeHTTP handles an inbound delivery.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	provider := chi.URLParam(r, "provider")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	if err := h.verifier.Verify(provider, r, body); err != nil {
		logger.Warnw("webhook delivery rejected",
			"provider", provider,
			"error", err,
		)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid signature"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorw("failed to write webhook response", "error", err)
	}
}
