package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

// CheckPassword compares a password with its hash
func CheckPassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// GenerateRandomString generates a random hex string of specified length
func GenerateRandomString(length int) (string, error) {
	bytes := make([]byte, (length+1)/2)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes)[:length], nil
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateTempPassword returns an 8 character base-36 password for new teacher accounts.
func GenerateTempPassword() (string, error) {
	var sb strings.Builder
	max := big.NewInt(int64(len(base36)))
	for i := 0; i < 8; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(base36[n.Int64()])
	}
	return sb.String(), nil
}

// HashToken is used to store one-time email tokens.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// BlacklistKey is the Redis key marking a logged out token.
func BlacklistKey(token string) string {
	return "blacklist:jwt:" + HashToken(token)
}

// ActivityQueueKey is the Redis sorted set of cached activity log keys awaiting a flush.
const ActivityQueueKey = "logs:queue"

// ActivityCacheKey is where a cached activity log entry is stored.
func ActivityCacheKey(id string) string {
	return "log:" + id
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidRole checks if a role is valid
func IsValidRole(role string) bool {
	return role == "principal" || role == "teacher"
}

// IsValidFileExtension checks if file extension is allowed
func IsValidFileExtension(filename string, allowedExtensions []string) bool {
	if filename == "" {
		return false
	}

	parts := strings.Split(filename, ".")
	if len(parts) < 2 {
		return false
	}

	ext := strings.ToLower(parts[len(parts)-1])

	for _, allowedExt := range allowedExtensions {
		if ext == strings.ToLower(strings.TrimSpace(allowedExt)) {
			return true
		}
	}
	return false
}

// SanitizeString removes dangerous characters from string
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// ParseOptionalDate parses YYYY-MM-DD; an empty string yields nil.
func ParseOptionalDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FormatOptionalDate is the inverse of ParseOptionalDate.
func FormatOptionalDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}

// FirstName returns the first word of a full name, or fallback when empty.
func FirstName(fullName, fallback string) string {
	fields := strings.Fields(fullName)
	if len(fields) == 0 {
		return fallback
	}
	return fields[0]
}

// AppendUnique trims v and appends it unless empty or already present.
func AppendUnique(list []string, v string) ([]string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return list, false
	}
	for _, existing := range list {
		if existing == v {
			return list, false
		}
	}
	return append(list, v), true
}

// RemoveValue drops every occurrence of v.
func RemoveValue(list []string, v string) ([]string, bool) {
	v = strings.TrimSpace(v)
	out := make([]string, 0, len(list))
	removed := false
	for _, existing := range list {
		if existing == v {
			removed = true
			continue
		}
		out = append(out, existing)
	}
	return out, removed
}

// SplitList splits "a; b;c" style cells into trimmed non-empty values.
func SplitList(s string) []string {
	out := []string{}
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
