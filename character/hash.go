package character

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Hash returns the hex-encoded SHA-256 digest of the definition's canonical
// JSON serialization. Struct field order is fixed, so the serialization is
// deterministic: field-for-field identical definitions always produce the
// same digest. The digest is the sole equality test for "is this the same
// character" throughout personamesh.
func Hash(def Definition) string {
	data, err := json.Marshal(def)
	if err != nil {
		// Definition contains only marshalable types; this is unreachable for
		// any value constructible through the public API.
		panic("character: definition not serializable: " + err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
