package signal

import (
	"encoding/json"
	"fmt"

	"github.com/Sumatoshi-tech/signalrt/internal/chain"
)

// valueMessage is the wire shape published on signals.<id>.value:
// {"value":int64,"chain":{"entries":[...]}}.
type valueMessage struct {
	Value int64              `json:"value"`
	Chain *chain.SignalChain `json:"chain"`
}

func encodeValueMessage(value int64, c *chain.SignalChain) ([]byte, error) {
	data, err := json.Marshal(valueMessage{Value: value, Chain: c})
	if err != nil {
		return nil, fmt.Errorf("signal: marshal value message: %w", err)
	}

	return data, nil
}

func decodeValueMessage(data []byte) (int64, *chain.SignalChain, error) {
	var msg valueMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return 0, nil, fmt.Errorf("signal: unmarshal value message: %w", err)
	}

	if msg.Chain == nil {
		msg.Chain = chain.New()
	}

	return msg.Value, msg.Chain, nil
}

func decodeBool(data []byte) (bool, error) {
	var v bool
	if err := json.Unmarshal(data, &v); err != nil {
		return false, fmt.Errorf("signal: unmarshal bool body: %w", err)
	}

	return v, nil
}
