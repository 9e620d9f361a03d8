package definitions

import (
	"fmt"
	"strings"
)

// ValidateFile validates every entry of a definitions file.
// Duplicate names are left to the registry.
func ValidateFile(file *File) error {
	for i := range file.Views {
		if err := validateEntry(&file.Views[i]); err != nil {
			if name := file.Views[i].Name; name != "" {
				return fmt.Errorf("view %d (%s): %w", i, name, err)
			}
			return fmt.Errorf("view %d: %w", i, err)
		}
	}
	return nil
}

func validateEntry(entry *Entry) error {
	if strings.TrimSpace(entry.Name) == "" {
		return fmt.Errorf("name is required")
	}

	hasSQL := strings.TrimSpace(entry.Body) != ""
	hasFile := entry.SQLFile != ""
	if hasSQL == hasFile {
		return fmt.Errorf("exactly one of sql or sql_file is required")
	}

	for j, ref := range entry.Dependencies {
		if strings.TrimSpace(ref.Name) == "" {
			return fmt.Errorf("dependency %d: name is required", j)
		}
	}

	return entry.Definition.Validate()
}
