package websocket

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// Client message types.
const (
	TypeSourceImage = "source_image"
	TypeFrame       = "frame"
	TypePing        = "ping"
)

// Server message types.
const (
	TypeSessionCreated = "session_created"
	TypeSourceReady    = "source_ready"
	TypeFrameResult    = "frame_result"
	TypeError          = "error"
	TypePong           = "pong"
)

var errEmptyData = errors.New("message has no image data")

// clientMessage is every message a client may send; Data is unused for ping.
type clientMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

type serverMessage struct {
	Type      string  `json:"type"`
	SessionID string  `json:"session_id,omitempty"`
	Data      string  `json:"data,omitempty"`
	Message   string  `json:"message,omitempty"`
	Timestamp float64 `json:"timestamp,omitempty"`
}

// decodeImage accepts plain base64 or a data URL ("data:image/jpeg;base64,...").
func decodeImage(data string) ([]byte, error) {
	if data == "" {
		return nil, errEmptyData
	}
	if strings.HasPrefix(data, "data:") {
		_, payload, ok := strings.Cut(data, ",")
		if !ok {
			return nil, errors.New("malformed data URL")
		}
		data = payload
	}
	img, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}
	if len(img) == 0 {
		return nil, errEmptyData
	}
	return img, nil
}

func encodeImage(img []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img)
}

func mustMarshal(msg serverMessage) []byte {
	b, err := json.Marshal(msg)
	if err != nil {
		// serverMessage holds only strings and a float.
		panic(err)
	}
	return b
}

func errorMessage(text string) []byte {
	return mustMarshal(serverMessage{Type: TypeError, Message: text})
}
