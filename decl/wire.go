package decl

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// WireVersion is the declaration-feed format version. Decoders reject
// envelopes from a newer version rather than guessing.
const WireVersion = 1

// envelope is the versioned wire wrapper around a Set.
type envelope struct {
	Version int  `cbor:"1,keyasint"`
	Set     *Set `cbor:"2,keyasint"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("decl: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// EncodeSet serializes a declaration set to canonical CBOR. The encoding
// is deterministic: the same set always yields the same bytes.
func EncodeSet(s *Set) ([]byte, error) {
	data, err := cborEncMode.Marshal(&envelope{Version: WireVersion, Set: s})
	if err != nil {
		return nil, fmt.Errorf("decl: encode set: %w", err)
	}
	return data, nil
}

// DecodeSet deserializes a declaration set from CBOR bytes. Decoded
// declarations carry no runtime reflect handles; they serve inspection
// and code generation, not live binding.
func DecodeSet(data []byte) (*Set, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decl: decode set: %w", err)
	}
	if env.Version > WireVersion {
		return nil, fmt.Errorf("decl: unsupported wire version %d (max %d)", env.Version, WireVersion)
	}
	if env.Set == nil {
		return nil, fmt.Errorf("decl: decode set: empty envelope")
	}
	return env.Set, nil
}
