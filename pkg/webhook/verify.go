// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // provider-mandated legacy scheme
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghostlightlabs/gatekeeper/pkg/audit"
	"github.com/ghostlightlabs/gatekeeper/pkg/errors"
)

// signaturePrefix is the prefix on HMAC-SHA256 signature values.
const signaturePrefix = "sha256="

// maxDeliveryLog bounds the in-memory forensic log.
const maxDeliveryLog = 1000

// Verifier verifies inbound webhook deliveries against provider-specific
// HMAC schemes. Every attempt is recorded regardless of outcome; an
// unverifiable signature is always rejected, never silently accepted.
type Verifier struct {
	providers map[string]*ProviderConfig
	auditor   *audit.Auditor

	mu         sync.Mutex
	deliveries []Delivery
}

// NewVerifier creates a Verifier for the given providers.
func NewVerifier(providers []*ProviderConfig, auditor *audit.Auditor) *Verifier {
	byName := make(map[string]*ProviderConfig, len(providers))
	for _, p := range providers {
		byName[p.Name] = p
	}
	return &Verifier{providers: byName, auditor: auditor}
}

// Verify recomputes the expected signature for the request and compares it
// to the header-supplied value in constant time. It returns nil when the
// delivery is trusted and a signature_invalid error otherwise.
func (v *Verifier) Verify(providerName string, r *http.Request, body []byte) error {
	delivery := Delivery{
		ID:         uuid.NewString(),
		Provider:   providerName,
		Status:     StatusReceived,
		ReceivedAt: time.Now().UTC(),
	}

	provider, ok := v.providers[providerName]
	if !ok {
		return v.reject(delivery, "unknown provider")
	}

	signature := r.Header.Get(provider.signatureHeader())
	if signature == "" {
		return v.reject(delivery, "missing signature header")
	}

	var expected string
	switch provider.Scheme {
	case SchemeTimestampSHA256:
		timestamp := r.Header.Get(provider.timestampHeader())
		if timestamp == "" {
			return v.reject(delivery, "missing timestamp header")
		}
		if err := checkTimestampFreshness(timestamp, provider.timestampTolerance()); err != nil {
			return v.reject(delivery, err.Error())
		}
		expected = signTimestampSHA256(provider.Secret, timestamp, body)
	case SchemeFormSHA1:
		canonical, err := canonicalizeForm(r.URL, body)
		if err != nil {
			return v.reject(delivery, "body is not form-encoded")
		}
		expected = signSHA1(provider.Secret, canonical)
	default:
		return v.reject(delivery, fmt.Sprintf("unsupported scheme %q", provider.Scheme))
	}

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return v.reject(delivery, "signature mismatch")
	}

	delivery.Status = StatusValidated
	delivery.ResponseStatus = http.StatusOK
	v.record(delivery)
	return nil
}

// Deliveries returns a snapshot of the forensic delivery log, newest last.
func (v *Verifier) Deliveries() []Delivery {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Delivery, len(v.deliveries))
	copy(out, v.deliveries)
	return out
}

func (v *Verifier) reject(delivery Delivery, reason string) error {
	delivery.Status = StatusRejected
	delivery.Reason = reason
	delivery.ResponseStatus = http.StatusBadRequest
	v.record(delivery)
	return errors.NewSignatureInvalidError(reason, nil)
}

func (v *Verifier) record(delivery Delivery) {
	v.mu.Lock()
	v.deliveries = append(v.deliveries, delivery)
	if len(v.deliveries) > maxDeliveryLog {
		v.deliveries = v.deliveries[len(v.deliveries)-maxDeliveryLog:]
	}
	v.mu.Unlock()

	outcome := audit.OutcomeSuccess
	if delivery.Status == StatusRejected {
		outcome = audit.OutcomeDenied
	}
	v.auditor.Emit(&audit.Event{
		Type:    audit.EventTypeWebhookDelivery,
		Outcome: outcome,
		Stage:   audit.StageSignature,
		Reason:  delivery.Reason,
		Extra: map[string]string{
			"delivery_id": delivery.ID,
			"provider":    delivery.Provider,
			"status":      delivery.Status,
		},
	})
}

// checkTimestampFreshness rejects timestamps outside the tolerance window in
// either direction, so a captured signed delivery cannot be replayed after
// the window closes.
func checkTimestampFreshness(timestamp string, tolerance time.Duration) error {
	seconds, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed timestamp header")
	}

	skew := time.Since(time.Unix(seconds, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > tolerance {
		return fmt.Errorf("stale timestamp")
	}
	return nil
}

// signTimestampSHA256 computes HMAC-SHA256 over "timestamp.payload" and
// returns "sha256=<hex>".
func signTimestampSHA256(secret []byte, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// signSHA1 computes HMAC-SHA1 over the canonical string, hex-encoded.
func signSHA1(secret []byte, canonical string) string {
	mac := hmac.New(sha1.New, secret)
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalizeForm canonicalizes a form-encoded body: key/value pairs sorted
// lexicographically, joined as key=value, prefixed with the request URL.
func canonicalizeForm(u *url.URL, body []byte) (string, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse form body: %w", err)
	}

	pairs := make([]string, 0, len(values))
	for key, vals := range values {
		for _, val := range vals {
			pairs = append(pairs, key+"="+val)
		}
	}
	sort.Strings(pairs)

	return u.String() + strings.Join(pairs, ""), nil
}
