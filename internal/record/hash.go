package record

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// HashFields returns the hex SHA-256 digest of fields serialized in
// HashOrder. Keys outside HashOrder are ignored and missing keys hash as
// empty. Each value is quoted, so no value can forge a field boundary.
func HashFields(fields map[string]string) string {
	h := sha256.New()
	for _, key := range HashOrder {
		h.Write([]byte(key))
		h.Write([]byte{'='})
		h.Write([]byte(strconv.Quote(fields[key])))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
