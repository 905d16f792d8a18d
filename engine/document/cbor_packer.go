package document

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	var err error
	cborEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("document: CBOR encoder initialization failed: " + err.Error())
	}

	// documents only have string keys, nested maps must decode as map[string]interface{}
	cborDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic("document: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBORMsgPacker packs and unpacks messages in deterministic CBOR format
type CBORMsgPacker struct{}

// PackMsg packs message to bytes in CBOR format
func (mp CBORMsgPacker) PackMsg(msg interface{}, buf []byte) ([]byte, error) {
	data, err := cborEncMode.Marshal(msg)
	if err != nil {
		return buf, err
	}
	return append(buf, data...), nil
}

// UnpackMsg unpacks bytes in CBOR format to message
func (mp CBORMsgPacker) UnpackMsg(data []byte, msg interface{}) error {
	return cborDecMode.Unmarshal(data, msg)
}
