package document

import (
	"github.com/pkg/errors"
)

var (
	// MSG_PACKER is used for packing and unpacking packet headers and persisted documents
	MSG_PACKER MsgPacker = MessagePackMsgPacker{}
)

// MsgPacker is used to packs and unpacks messages
type MsgPacker interface {
	PackMsg(msg interface{}, buf []byte) ([]byte, error)
	UnpackMsg(data []byte, msg interface{}) error
}

// GetMsgPacker returns the packer of the format name: msgpack, json or cbor
func GetMsgPacker(name string) (MsgPacker, error) {
	switch name {
	case "", "msgpack":
		return MessagePackMsgPacker{}, nil
	case "json":
		return JSONMsgPacker{}, nil
	case "cbor":
		return CBORMsgPacker{}, nil
	default:
		return nil, errors.Errorf("unknown msg packer: %s", name)
	}
}

// Encode packs the document with the packer, appending to buf
func Encode(packer MsgPacker, doc Document, buf []byte) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	return packer.PackMsg(map[string]interface{}(doc), buf)
}

// Decode unpacks a document with the packer
func Decode(packer MsgPacker, data []byte) (Document, error) {
	var m map[string]interface{}
	if err := packer.UnpackMsg(data, &m); err != nil {
		return nil, errors.Wrap(err, "decode document")
	}
	if m == nil {
		m = map[string]interface{}{}
	}
	return Document(m), nil
}
