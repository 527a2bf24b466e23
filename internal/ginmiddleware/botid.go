package ginmiddleware

import "github.com/google/uuid"

func parseBotID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}
