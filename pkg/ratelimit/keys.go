// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// credentialSuffixLen is how many trailing characters of a bearer credential
// feed the rate-limit key. The full secret never enters the key space.
const credentialSuffixLen = 16

// ClientKey derives the counter key for a request. Authenticated callers are
// keyed by a hash of their credential so they get quotas independent of
// anonymous traffic sharing an IP (e.g. behind NAT); anonymous callers fall
// back to the remote IP. The route category keeps endpoint groups on
// separate counters.
func ClientKey(category, credential, remoteIP string) string {
	if credential != "" {
		suffix := credential
		if len(suffix) > credentialSuffixLen {
			suffix = suffix[len(suffix)-credentialSuffixLen:]
		}
		sum := sha256.Sum256([]byte(suffix))
		return fmt.Sprintf("%s:cred:%s", category, hex.EncodeToString(sum[:8]))
	}
	if remoteIP == "" {
		remoteIP = "unknown"
	}
	return fmt.Sprintf("%s:ip:%s", category, remoteIP)
}
