// Package history projects a chat's persisted messages into the
// provider-agnostic turns used as model input context.
package history

import (
	"errors"
	"fmt"
	"sort"

	"chatstream/internal/ai"
	"chatstream/internal/store"
)

// ErrUnknownRole is returned when a persisted message carries a role outside
// {user, assistant}. Failing fast here beats propagating an undefined turn
// into the provider request.
var ErrUnknownRole = errors.New("unknown message role")

// Build returns one turn per message, ordered by creation time ascending.
// Each turn's text is the message's "text" part, defaulting to the empty
// string when the part is absent (e.g. an image-only assistant message).
func Build(messages []store.Message) ([]ai.Turn, error) {
	ordered := make([]store.Message, len(messages))
	copy(ordered, messages)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	turns := make([]ai.Turn, 0, len(ordered))
	for _, message := range ordered {
		var role ai.Role
		switch message.Role {
		case string(ai.RoleUser):
			role = ai.RoleUser
		case string(ai.RoleAssistant):
			role = ai.RoleAssistant
		default:
			return nil, fmt.Errorf("%w: %q on message %s", ErrUnknownRole, message.Role, message.ID)
		}
		turns = append(turns, ai.Turn{Role: role, Content: message.Parts["text"]})
	}
	return turns, nil
}
