package utils

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonrepair"
)

// ParseJSON unmarshals content into T. If unmarshaling fails, it attempts to
// repair the JSON string with jsonrepair and retries once. Providers
// occasionally emit slightly malformed payloads (unquoted keys, truncated
// events); repairing is cheaper than failing the whole stream.
func ParseJSON[T any](content string) (T, error) {
	var result T

	err := json.Unmarshal([]byte(content), &result)
	if err == nil {
		return result, nil
	}

	repairedJSON, repairErr := jsonrepair.JSONRepair(content)
	if repairErr != nil {
		return result, fmt.Errorf("failed to unmarshal content as %T and failed to repair JSON: unmarshal error: %w, repair error: %v", result, err, repairErr)
	}

	if err = json.Unmarshal([]byte(repairedJSON), &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal repaired JSON as %T: %w (original content: %s)", result, err, TruncateStringDefault(content))
	}

	return result, nil
}
