package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"go-palm-insight/internal/config"
)

// Entry types. A key's type is the segment before the first colon.
const (
	TypeImageFeatures = "image-features"
	TypeQuickReport   = "quick-report"
	TypeFullReport    = "full-report"
	TypeAIResponse    = "ai-response"
)

// GenerateKey derives a namespaced key from a hash of params. Parameter order
// never affects the result.
func GenerateKey(entryType string, params map[string]any) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	slices.Sort(names)

	h := sha256.New()
	for _, name := range names {
		value, err := json.Marshal(params[name])
		if err != nil {
			value = []byte(fmt.Sprintf("%v", params[name]))
		}
		fmt.Fprintf(h, "%s=%s;", name, value)
	}
	return entryType + ":" + hex.EncodeToString(h.Sum(nil))
}

// KeyType returns the declared type of key, or "" if it has none
func KeyType(key string) string {
	entryType, _, found := strings.Cut(key, ":")
	if !found {
		return ""
	}
	return entryType
}

// ttlFor picks the default lifetime for key from its declared type
func ttlFor(key string, ttl config.CacheTTL) time.Duration {
	switch KeyType(key) {
	case TypeImageFeatures:
		return ttl.ImageFeatures
	case TypeQuickReport:
		return ttl.QuickReport
	case TypeFullReport:
		return ttl.FullReport
	case TypeAIResponse:
		return ttl.AIResponse
	default:
		return ttl.Default
	}
}
