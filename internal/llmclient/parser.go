// File: internal/llmclient/parser.go
package llmclient

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
)

// Regex definitions use \x60 (hex representation) for backticks because Go
// raw strings cannot contain backticks.
var jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")

// parseJSONResponse parses a model reply into a target Go type, tolerating
// the common formatting slips: markdown code fences and conversational text
// around the JSON object.
func parseJSONResponse[T any](response string) (*T, error) {
	response = strings.TrimSpace(response)
	jsonStringToParse := response

	if strings.HasPrefix(response, "```") {
		if matches := jsonObjectRegex.FindStringSubmatch(response); len(matches) > 1 {
			jsonStringToParse = matches[1]
		}
	} else if !strings.HasPrefix(response, "{") {
		first := strings.Index(response, "{")
		last := strings.LastIndex(response, "}")
		if first != -1 && last != -1 && last > first {
			jsonStringToParse = response[first : last+1]
		}
	}

	if jsonStringToParse == "" {
		return nil, fmt.Errorf("could not find any JSON in the model response")
	}

	var result T
	if err := json.UnmarshalFromString(jsonStringToParse, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model JSON response: %w. Extracted JSON (truncated): %s",
			err, truncateString(jsonStringToParse, 500))
	}
	return &result, nil
}

func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
