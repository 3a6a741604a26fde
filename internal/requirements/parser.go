// Package requirements provides functionality for parsing pip requirements files.
//
// Only the parts relock needs are understood: index options, nested
// requirement/constraint references and top-level requirement names.
package requirements

import (
	"bufio"
	"regexp"
	"strings"
)

// File contains parsed information from a requirements file.
type File struct {
	IndexURL         string
	ExtraIndexURLs   []string
	RequirementFiles []string // -r / --requirement
	ConstraintFiles  []string // -c / --constraint
	Requirements     []Requirement
}

// Requirement represents a single requirement line.
type Requirement struct {
	Name      string // PEP 503 normalised
	Extras    []string
	Specifier string
	Marker    string
}

// RegistryURLs returns the index URL (if any) followed by the extra index URLs.
func (f *File) RegistryURLs() []string {
	var urls []string
	if f.IndexURL != "" {
		urls = append(urls, f.IndexURL)
	}
	return append(urls, f.ExtraIndexURLs...)
}

var (
	nameRe      = regexp.MustCompile(`^([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)\s*(?:\[([^\]]*)\])?\s*(.*)$`)
	normalizeRe = regexp.MustCompile(`[-_.]+`)
)

// Normalize returns the PEP 503 normalised form of a distribution name.
func Normalize(name string) string {
	return strings.ToLower(normalizeRe.ReplaceAllString(name, "-"))
}

// Parse parses requirements file content. Unknown options and malformed
// lines are skipped; Parse never fails.
func Parse(content string) *File {
	f := &File{}

	for _, line := range logicalLines(content) {
		if strings.HasPrefix(line, "-") {
			f.parseOption(line)
			continue
		}

		// URL and path requirements carry no registry information
		if strings.Contains(line, "://") || strings.HasPrefix(line, ".") || strings.HasPrefix(line, "/") {
			continue
		}

		if req, ok := parseRequirement(line); ok {
			f.Requirements = append(f.Requirements, req)
		}
	}

	return f
}

// logicalLines joins backslash continuations, strips comments and blank lines.
func logicalLines(content string) []string {
	var lines []string
	var pending strings.Builder

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		raw := scanner.Text()
		if strings.HasSuffix(raw, `\`) {
			pending.WriteString(strings.TrimSuffix(raw, `\`))
			continue
		}
		pending.WriteString(raw)
		line := stripComment(pending.String())
		pending.Reset()

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if rest := strings.TrimSpace(stripComment(pending.String())); rest != "" {
		lines = append(lines, rest)
	}

	return lines
}

// stripComment removes a trailing comment. pip only treats '#' as a comment
// at the start of a line or when preceded by whitespace.
func stripComment(line string) string {
	if strings.HasPrefix(line, "#") {
		return ""
	}
	for i := 1; i < len(line); i++ {
		if line[i] == '#' && (line[i-1] == ' ' || line[i-1] == '\t') {
			return line[:i]
		}
	}
	return line
}

func (f *File) parseOption(line string) {
	name, value := splitOption(line)
	switch name {
	case "-i", "--index-url":
		f.IndexURL = value
	case "--extra-index-url":
		if value != "" {
			f.ExtraIndexURLs = append(f.ExtraIndexURLs, value)
		}
	case "-r", "--requirement":
		if value != "" {
			f.RequirementFiles = append(f.RequirementFiles, value)
		}
	case "-c", "--constraint":
		if value != "" {
			f.ConstraintFiles = append(f.ConstraintFiles, value)
		}
	}
}

// splitOption accepts "--opt=value", "--opt value" and "-o value" forms.
func splitOption(line string) (name, value string) {
	if before, after, found := strings.Cut(line, "="); found && !strings.ContainsAny(before, " \t") {
		return before, strings.TrimSpace(after)
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", ""
	}
	if len(fields) == 1 {
		return fields[0], ""
	}
	return fields[0], fields[1]
}

func parseRequirement(line string) (Requirement, bool) {
	spec, marker, _ := strings.Cut(line, ";")

	m := nameRe.FindStringSubmatch(strings.TrimSpace(spec))
	if m == nil {
		return Requirement{}, false
	}

	req := Requirement{
		Name:      Normalize(m[1]),
		Specifier: strings.TrimSpace(m[3]),
		Marker:    strings.TrimSpace(marker),
	}
	if m[2] != "" {
		for _, extra := range strings.Split(m[2], ",") {
			if extra = strings.TrimSpace(extra); extra != "" {
				req.Extras = append(req.Extras, extra)
			}
		}
	}

	return req, true
}
