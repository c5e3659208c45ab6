package helper

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// GenerateUUID creates a random unique UUID string
func GenerateUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate UUID: %v", err)
	}
	return id.String(), nil
}

// MustUUID is GenerateUUID for contexts where the entropy source failing is
// not recoverable anyway.
func MustUUID() string {
	return uuid.New().String()
}

// FileSHA256 streams the file through SHA-256 in fixed-size blocks and
// returns the hex digest. Used as the content fingerprint for change
// detection.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %v", path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, 4096)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %v", path, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MD5Hex returns the hex MD5 of s. Cache keys only, not security.
func MD5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// pretty print
func PrettyPrint(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Warn().Msg("Error pretty printing")
	}
	fmt.Println(string(b))
}

// CreateFolder makes the directory if it does not exist yet.
func CreateFolder(path string) error {
	return os.MkdirAll(path, 0o755)
}
