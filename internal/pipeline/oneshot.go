package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mailinvoice/internal"
)

// LoadInput reads a mail from disk for the one-shot CLI commands. inputType
// is "eml", "html" or "text"; "auto" picks by file extension.
func LoadInput(inputType, path, subject string) (internal.EmailArgs, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return internal.EmailArgs{}, err
	}
	if inputType == "" || inputType == "auto" {
		inputType = inputTypeFor(path)
	}

	switch inputType {
	case "eml":
		msg, err := ParseRawMessage(blob)
		if err != nil {
			return internal.EmailArgs{}, err
		}
		if subject != "" {
			msg.Args.Subject = subject
		}
		return msg.Args, nil
	case "html", "text":
		return internal.EmailArgs{Subject: subject, Message: string(blob)}, nil
	default:
		return internal.EmailArgs{}, fmt.Errorf("unsupported input type: %s", inputType)
	}
}

func inputTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".eml":
		return "eml"
	case ".html", ".htm":
		return "html"
	default:
		return "text"
	}
}
