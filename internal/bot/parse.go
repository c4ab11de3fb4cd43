package bot

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ValidateSourceURL checks that raw is an absolute http(s) URL.
func ValidateSourceURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid URL %q, expected http(s)://...", raw)
	}
	return nil
}

// ParseAddSourceArgs parses "<url> [keywords...]". Every further word
// becomes its own keyword.
func ParseAddSourceArgs(args string) (string, []string, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("usage: /addsource <url> [keywords...]")
	}
	if err := ValidateSourceURL(parts[0]); err != nil {
		return "", nil, err
	}
	return parts[0], parts[1:], nil
}

// ParseURLArg extracts the source URL from a command argument string.
func ParseURLArg(args string) (string, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return "", fmt.Errorf("source URL is required")
	}
	return parts[0], nil
}

// ParseTargetArgs parses "<url> <chat_id>".
func ParseTargetArgs(args string) (string, int64, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return "", 0, fmt.Errorf("source URL and chat ID are required")
	}
	chatID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid chat ID %q, it must be a number", parts[1])
	}
	return parts[0], chatID, nil
}

// ParseKeywordArgs parses "<url> <keyword...>". The keyword is the rest of
// the line and may contain spaces.
func ParseKeywordArgs(args string) (string, string, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return "", "", fmt.Errorf("source URL and keyword are required")
	}
	return parts[0], strings.Join(parts[1:], " "), nil
}

// ParseCallbackData splits "action:id" button payloads.
func ParseCallbackData(data string) (string, int64, error) {
	action, idStr, ok := strings.Cut(data, ":")
	if !ok || action == "" {
		return "", 0, fmt.Errorf("malformed callback data %q", data)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid callback id %q", idStr)
	}
	return action, id, nil
}
