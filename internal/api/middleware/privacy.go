package middleware

import (
	"net/url"
	"strconv"
	"strings"
)

// coordinateParams are the query parameters that carry a caller position.
var coordinateParams = []string{"lat", "lng"}

// coordinateDecimals keeps logged positions to roughly a kilometre.
const coordinateDecimals = 2

// redactQuery rounds position parameters so a request log cannot place a
// caller more precisely than their neighbourhood. Values that do not parse as
// numbers are dropped.
func redactQuery(raw string) string {
	if raw == "" {
		return ""
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		return ""
	}
	for _, key := range coordinateParams {
		values, ok := q[key]
		if !ok {
			continue
		}
		kept := make([]string, 0, len(values))
		for _, v := range values {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				continue
			}
			kept = append(kept, strconv.FormatFloat(f, 'f', coordinateDecimals, 64))
		}
		if len(kept) == 0 {
			q.Del(key)
			continue
		}
		q[key] = kept
	}
	return q.Encode()
}

// isProbe reports whether path is a liveness or readiness probe. Probes are
// neither traced nor measured.
func isProbe(path string) bool {
	return strings.HasSuffix(path, "/health") || strings.HasSuffix(path, "/ready")
}
