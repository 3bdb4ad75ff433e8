package index

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/ralt/extmgr/internal/models"
)

// Control file field names
const (
	FieldExtension     = "Extension"
	FieldVersion       = "Version"
	FieldTitle         = "Title"
	FieldDescription   = "Description"
	FieldDepends       = "Depends"
	FieldSuggests      = "Suggests"
	FieldConflicts     = "Conflicts"
	FieldUpdateComment = "Update-Comment"
	FieldFilename      = "Filename"
	FieldSize          = "Size"
	FieldSHA256        = "SHA256"
)

var dependencyFields = map[string]models.DependencyType{
	FieldDepends:   models.DependencyRequires,
	FieldSuggests:  models.DependencySuggests,
	FieldConflicts: models.DependencyConflicts,
}

// ParseControl parses one or more control stanzas separated by blank lines.
// Continuation lines start with a space or tab; a continuation line holding
// only "." stands for an empty line.
func ParseControl(r io.Reader) ([]models.Package, error) {
	var packages []models.Package
	var current *models.Package
	var currentKey string
	var currentValue strings.Builder
	lineNo := 0

	flush := func() error {
		if currentKey == "" {
			return nil
		}
		err := setField(current, currentKey, currentValue.String())
		currentKey = ""
		currentValue.Reset()
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		return nil
	}

	endStanza := func() error {
		if err := flush(); err != nil {
			return err
		}
		if current != nil {
			if current.Key == "" {
				return fmt.Errorf("line %d: stanza without %s field", lineNo, FieldExtension)
			}
			packages = append(packages, *current)
			current = nil
		}
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if strings.TrimSpace(line) == "" {
			if err := endStanza(); err != nil {
				return nil, err
			}
			continue
		}

		// Handle continuation lines (start with space)
		if line[0] == ' ' || line[0] == '\t' {
			if currentKey == "" {
				return nil, fmt.Errorf("line %d: continuation line without field", lineNo)
			}
			text := strings.TrimSpace(line)
			if text == "." {
				text = ""
			}
			currentValue.WriteString("\n")
			currentValue.WriteString(text)
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: expected \"Field: value\", got %q", lineNo, line)
		}
		if current == nil {
			current = &models.Package{}
		}
		currentKey = strings.TrimSpace(parts[0])
		currentValue.WriteString(strings.TrimSpace(parts[1]))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := endStanza(); err != nil {
		return nil, err
	}

	return packages, nil
}

// setField sets a field in the Package based on the control file key
func setField(pkg *models.Package, key, value string) error {
	if depType, ok := dependencyFields[key]; ok {
		deps, err := parseDependencyList(depType, value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		pkg.Dependencies = append(pkg.Dependencies, deps...)
		return nil
	}

	switch key {
	case FieldExtension:
		pkg.Key = value
	case FieldVersion:
		pkg.Version = value
	case FieldTitle:
		pkg.Title = value
	case FieldDescription:
		pkg.Description = value
	case FieldUpdateComment:
		pkg.UpdateComment = value
	case FieldFilename:
		pkg.Filename = value
	case FieldSize:
		size, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid size %q: %w", value, err)
		}
		pkg.Size = size
	case FieldSHA256:
		pkg.SHA256Sum = strings.ToLower(value)
	default:
		// Unknown fields are ignored so older clients can read newer indexes
	}
	return nil
}

func parseDependencyList(t models.DependencyType, value string) ([]models.Dependency, error) {
	var deps []models.Dependency
	for _, raw := range strings.Split(value, ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		dep, err := models.ParseDependency(t, raw)
		if err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
	return deps, nil
}

// FormatControl renders packages as control stanzas sorted by key and version
func FormatControl(packages []models.Package) []byte {
	sorted := make([]models.Package, len(packages))
	copy(sorted, packages)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Key != sorted[j].Key {
			return sorted[i].Key < sorted[j].Key
		}
		return compareVersions(sorted[i].Version, sorted[j].Version) < 0
	})

	var buf bytes.Buffer
	for _, pkg := range sorted {
		// Required fields
		fmt.Fprintf(&buf, "%s: %s\n", FieldExtension, pkg.Key)
		fmt.Fprintf(&buf, "%s: %s\n", FieldVersion, pkg.Version)

		// Optional fields
		if pkg.Title != "" {
			fmt.Fprintf(&buf, "%s: %s\n", FieldTitle, pkg.Title)
		}
		if pkg.Description != "" {
			writeMultiline(&buf, FieldDescription, pkg.Description)
		}

		for _, field := range []string{FieldDepends, FieldSuggests, FieldConflicts} {
			deps := pkg.DependenciesOfType(dependencyFields[field])
			if len(deps) == 0 {
				continue
			}
			rendered := make([]string, len(deps))
			for i, d := range deps {
				rendered[i] = d.String()
			}
			fmt.Fprintf(&buf, "%s: %s\n", field, strings.Join(rendered, ", "))
		}

		if pkg.UpdateComment != "" {
			writeMultiline(&buf, FieldUpdateComment, pkg.UpdateComment)
		}

		// File information
		if pkg.Filename != "" {
			fmt.Fprintf(&buf, "%s: %s\n", FieldFilename, pkg.Filename)
			fmt.Fprintf(&buf, "%s: %d\n", FieldSize, pkg.Size)
			fmt.Fprintf(&buf, "%s: %s\n", FieldSHA256, pkg.SHA256Sum)
		}

		// Blank line between stanzas
		buf.WriteString("\n")
	}

	return buf.Bytes()
}

func writeMultiline(buf *bytes.Buffer, field, value string) {
	lines := strings.Split(value, "\n")
	fmt.Fprintf(buf, "%s: %s\n", field, lines[0])
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			line = "."
		}
		fmt.Fprintf(buf, " %s\n", line)
	}
}
