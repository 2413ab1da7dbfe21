package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ledgercast/ledgercast/internal/logging"
	"github.com/ledgercast/ledgercast/internal/models"
)

// MinAPIKeyLength is the shortest key APIKeyAuth accepts in configuration
const MinAPIKeyLength = 32

const apiKeyLocal = "api_key"

// ValidateAPIKey reports whether key is long enough to be configured
func ValidateAPIKey(key string) bool {
	return len(key) >= MinAPIKeyLength && strings.TrimSpace(key) != ""
}

// APIKeyFromContext returns the key authenticated for this request, if any
func APIKeyFromContext(c *fiber.Ctx) string {
	key, _ := c.Locals(apiKeyLocal).(string)
	return key
}

// presentedKey reads X-API-Key, then "Authorization: Bearer <key>", then a
// bare Authorization value.
func presentedKey(c *fiber.Ctx) string {
	if key := c.Get("X-API-Key"); key != "" {
		return key
	}
	auth := c.Get(fiber.HeaderAuthorization)
	if key, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return key
	}
	return auth
}

// keyring holds digests of the configured keys. Matching compares
// digests in constant time against every entry.
type keyring [][sha256.Size]byte

func (k keyring) contains(key string) bool {
	sum := sha256.Sum256([]byte(key))
	found := 0
	for i := range k {
		found |= subtle.ConstantTimeCompare(sum[:], k[i][:])
	}
	return found == 1
}

// APIKeyAuth guards the prediction API. Configured keys shorter than
// MinAPIKeyLength are dropped with a warning.
func APIKeyAuth(logger *logging.Logger, apiKeys []string, enabled bool) fiber.Handler {
	if !enabled {
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	var ring keyring
	for _, key := range apiKeys {
		if key == "" {
			continue
		}
		if !ValidateAPIKey(key) {
			logger.Warn("Ignoring weak API key",
				"key_prefix", maskAPIKey(key), "key_length", len(key), "min_length", MinAPIKeyLength)
			continue
		}
		ring = append(ring, sha256.Sum256([]byte(key)))
	}
	if len(ring) == 0 {
		logger.Error("API key auth enabled without a usable key; every request will be rejected",
			"configured_keys", len(apiKeys))
	}

	return func(c *fiber.Ctx) error {
		key := presentedKey(c)
		log := logger.WithContext(c.UserContext())

		if key == "" {
			log.Warn("API key missing", "method", c.Method(), "path", c.Path(), "ip", c.IP())
			return unauthorized(c, "API key is required. Provide it via X-API-Key header or Authorization header.")
		}
		if !ring.contains(key) {
			log.Warn("API key rejected",
				"method", c.Method(), "path", c.Path(), "ip", c.IP(), "key_prefix", maskAPIKey(key))
			return unauthorized(c, "Invalid API key.")
		}

		c.Locals(apiKeyLocal, key)
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
		Error: models.ErrorDetail{Code: "UNAUTHORIZED", Message: message},
	})
}

// maskAPIKey keeps the first four characters for logs
func maskAPIKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
