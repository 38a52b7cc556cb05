package profile

import (
	"embed"
	"fmt"
	"strings"
)

const defaultProfileName = "default"

//go:embed templates/*.md
var templatesFS embed.FS

// ResolveSystemInstruction returns the configured instruction, or the embedded default
// profile when none is configured.
func ResolveSystemInstruction(configured string) (string, error) {
	if instruction := strings.TrimSpace(configured); instruction != "" {
		return instruction, nil
	}

	content, err := templatesFS.ReadFile(templatePath(defaultProfileName))
	if err != nil {
		return "", fmt.Errorf("load %s profile template: %w", defaultProfileName, err)
	}

	profile := strings.TrimSpace(string(content))
	if profile == "" {
		return "", fmt.Errorf("profile template %q is empty", defaultProfileName)
	}

	return profile, nil
}

func templatePath(templateName string) string {
	return "templates/" + strings.TrimSpace(templateName) + ".md"
}
