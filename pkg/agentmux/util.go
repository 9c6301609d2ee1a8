package agentmux

import "encoding/json"

// decode unmarshals a raw RPC result into out. An empty result leaves out
// untouched.
func decode(raw json.RawMessage, out any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// decodeMap round-trips an untyped params map into a typed struct.
func decodeMap(params map[string]any, out any) error {
	data, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// stringField extracts a required string field from an inbound payload.
func stringField(params map[string]any, key string) (string, bool) {
	v, ok := params[key].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
