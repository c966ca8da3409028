package game

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Boards are stored as CBOR with Core Deterministic Encoding so the same
// position always hashes to the same state root.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("game: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("game: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeBoard serializes a plugin board.
func EncodeBoard(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// DecodeBoard deserializes a plugin board into v.
func DecodeBoard(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
