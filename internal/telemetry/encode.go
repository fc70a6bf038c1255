package telemetry

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"

	"plantwatch/internal/model"
)

// Encoder turns a status into a publish payload.
type Encoder func(model.Status) ([]byte, error)

func NewEncoder(name string) (Encoder, error) {
	switch name {
	case "", "json":
		return encodeJSON, nil
	case "msgpack":
		return encodeMsgpack, nil
	case "plain":
		return encodePlain, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
}

func encodeJSON(st model.Status) ([]byte, error) {
	return json.Marshal(st)
}

func encodeMsgpack(st model.Status) ([]byte, error) {
	return msgpack.Marshal(st)
}

// encodePlain yields "<green>,<alert>", e.g. "42.17,0".
func encodePlain(st model.Status) ([]byte, error) {
	out := strconv.AppendFloat(nil, st.GreenPercentage, 'f', 2, 64)
	out = append(out, ',')
	out = strconv.AppendInt(out, int64(st.Alert), 10)
	return out, nil
}
