package v1

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/xiaot623/gogo/sessionrelay/internal/domain"
	"github.com/xiaot623/gogo/sessionrelay/internal/service"
)

const optionalString = `{"type": ["string", "null"]}`

var createSessionSchema = mustSchema(`{
	"type": "object",
	"required": ["sessionId"],
	"properties": {
		"sessionId": {"type": "string", "minLength": 1},
		"title": ` + optionalString + `,
		"description": ` + optionalString + `,
		"consultType": ` + optionalString + `,
		"healthInfoUrl": ` + optionalString + `
	}
}`)

var sendMessageSchema = mustSchema(`{
	"type": "object",
	"required": ["sessionId", "messageId", "content"],
	"properties": {
		"sessionId": {"type": "string", "minLength": 1},
		"messageId": {"type": "string", "minLength": 1},
		"content": {"type": "string"},
		"messageType": {"type": "integer", "enum": [0, 1, 2, 3, 4]},
		"sendTime": ` + optionalString + `
	}
}`)

var queryMessagesSchema = mustSchema(fmt.Sprintf(`{
	"type": "object",
	"required": ["pageNum", "pageSize"],
	"properties": {
		"pageNum": {"type": "integer", "minimum": 1},
		"pageSize": {"type": "integer", "minimum": 1, "maximum": %d}
	}
}`, service.MaxPageSize))

func mustSchema(schema string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("invalid request schema: %v", err))
	}
	return s
}

// validate checks doc against schema and reports the first violation.
func validate(schema *gojsonschema.Schema, doc gojsonschema.JSONLoader) error {
	result, err := schema.Validate(doc)
	if err != nil {
		return domain.NewValidationError("body", "malformed JSON")
	}
	if result.Valid() {
		return nil
	}
	first := result.Errors()[0]
	field := first.Field()
	if field == "(root)" {
		if missing, ok := first.Details()["property"].(string); ok {
			field = missing
		} else {
			field = ""
		}
	}
	return domain.NewValidationError(field, first.Description())
}

// decodeBody validates body against schema and decodes it into v.
func decodeBody(body []byte, schema *gojsonschema.Schema, v interface{}) error {
	if err := validate(schema, gojsonschema.NewBytesLoader(body)); err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return domain.NewValidationError("body", err.Error())
	}
	return nil
}

// queryInt parses an optional integer query parameter.
func queryInt(raw string, name string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, domain.NewValidationError(name, "must be an integer")
	}
	return n, nil
}

// sendTimeLayouts are tried in order; zone-less forms are local time.
var sendTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseSendTime accepts RFC 3339 or an ISO 8601 local date-time.
func parseSendTime(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, *raw); err == nil {
		return &t, nil
	}
	for _, layout := range sendTimeLayouts {
		if t, err := time.ParseInLocation(layout, *raw, time.Local); err == nil {
			return &t, nil
		}
	}
	return nil, domain.NewValidationError("sendTime", "must be an ISO 8601 date-time")
}
