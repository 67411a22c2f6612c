package alerts

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
)

// Fingerprint computes the stable identity of an alert from its DC and label
// set. Labels listed in ignored are excluded so that volatile keys (replica
// identifiers, rule UIDs) do not break history continuity. The hash is a pure
// function of its inputs: independent of label insertion order and stable
// across process restarts.
func Fingerprint(dc string, labels map[string]string, ignored []string) string {
	skip := make(map[string]struct{}, len(ignored))
	for _, k := range ignored {
		skip[k] = struct{}{}
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		if _, drop := skip[k]; drop {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha1.New()
	h.Write([]byte(dc))
	for _, k := range keys {
		// NUL separators prevent ambiguity between key/value boundaries
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(labels[k]))
	}
	return hex.EncodeToString(h.Sum(nil))
}
