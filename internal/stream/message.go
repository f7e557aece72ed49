package stream

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/RishiKendai/palimpsest/internal/models"
	"github.com/redis/go-redis/v9"
)

// Stream fields of a run request
const (
	FieldRunID    = "runId"
	FieldTarget   = "target"
	FieldMinWords = "minWords"
)

// ParseRunRequest decodes a run request from a stream message.
// minWords is optional; zero leaves the service default in place.
func ParseRunRequest(msg redis.XMessage) (models.RunRequest, error) {
	var req models.RunRequest

	req.RunID = fieldString(msg.Values, FieldRunID)
	req.Target = strings.TrimSpace(fieldString(msg.Values, FieldTarget))
	if req.Target == "" {
		return req, fmt.Errorf("message %s: missing %s", msg.ID, FieldTarget)
	}

	if raw := fieldString(msg.Values, FieldMinWords); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return req, fmt.Errorf("message %s: invalid %s %q: %w", msg.ID, FieldMinWords, raw, err)
		}
		req.MinWords = n
	}

	return req, nil
}

// RunRequestValues encodes req as stream fields, the inverse of ParseRunRequest
func RunRequestValues(req models.RunRequest) map[string]interface{} {
	values := map[string]interface{}{
		FieldTarget: req.Target,
	}
	if req.RunID != "" {
		values[FieldRunID] = req.RunID
	}
	if req.MinWords != 0 {
		values[FieldMinWords] = strconv.Itoa(req.MinWords)
	}
	return values
}

func fieldString(values map[string]interface{}, key string) string {
	v, ok := values[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
