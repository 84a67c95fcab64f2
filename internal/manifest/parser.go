package manifest

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Parse validates a raw payload and decodes it into a Definition. source
// names where the payload came from; it is recorded on the Definition when
// the payload does not carry its own. Structural and semantic defects are
// returned as a *ValidationError.
func Parse(data []byte, source string) (*Definition, error) {
	result, err := Validate(data)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, &ValidationError{Source: source, Issues: result.Issues}
	}
	// encoding/json matches keys case-insensitively, so a "UID" next to
	// "uid" would replace the validated value during decode.
	if issues := checkKeyCase(data); len(issues) > 0 {
		return nil, &ValidationError{Source: source, Issues: issues}
	}

	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, &ValidationError{Source: source, Issues: []ValidationIssue{{
			Message: err.Error(),
			Keyword: "decode",
		}}}
	}

	if issues := checkSemantics(&def); len(issues) > 0 {
		return nil, &ValidationError{Source: source, Issues: issues}
	}

	if def.Source == "" {
		def.Source = source
	}
	for i := range def.Versions {
		def.Versions[i].UID = def.UID
	}
	return &def, nil
}

// ParseFile reads a payload from disk and parses it.
func ParseFile(path string) (*Definition, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, path)
}

// Marshal encodes a Definition in the canonical on-disk form.
func Marshal(def *Definition) ([]byte, error) {
	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding definition %s: %w", def.UID, err)
	}
	return append(data, '\n'), nil
}

// uidPattern mirrors the schema's uid pattern. A valid uid is a single
// path element.
var uidPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidUID reports whether uid is an acceptable definition identifier.
func ValidUID(uid string) bool {
	return uidPattern.MatchString(uid)
}

// Field names of each payload object, as the schema spells them.
var (
	definitionKeys = []string{"uid", "name", "description", "websiteUrl", "logo", "source", "categories", "tags", "versions"}
	versionKeys    = []string{"name", "compatibleEnvironmentVersions", "type", "urls"}
	linkKeys       = []string{"url", "interactive"}
)

// checkKeyCase reports keys that differ from a known field only by case.
func checkKeyCase(data []byte) []ValidationIssue {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil
	}
	issues := caseVariants("", top, definitionKeys)

	var versions []map[string]json.RawMessage
	if raw, ok := top["versions"]; ok {
		_ = json.Unmarshal(raw, &versions)
	}
	for i, v := range versions {
		vp := fmt.Sprintf("/versions/%d", i)
		issues = append(issues, caseVariants(vp, v, versionKeys)...)

		var links []map[string]json.RawMessage
		if raw, ok := v["urls"]; ok {
			_ = json.Unmarshal(raw, &links)
		}
		for j, l := range links {
			issues = append(issues, caseVariants(fmt.Sprintf("%s/urls/%d", vp, j), l, linkKeys)...)
		}
	}
	return issues
}

func caseVariants(path string, obj map[string]json.RawMessage, known []string) []ValidationIssue {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var issues []ValidationIssue
	for _, key := range keys {
		for _, field := range known {
			if key != field && strings.EqualFold(key, field) {
				issues = append(issues, ValidationIssue{
					Path:    path + "/" + key,
					Message: fmt.Sprintf("%q shadows field %q", key, field),
					Keyword: "case",
				})
			}
		}
	}
	return issues
}

// IsVersionRange reports whether a compatible-version entry is a range
// expression rather than a single exact version.
// Spaces alone do not make a range: "1.8 Pre-release" is a label.
func IsVersionRange(entry string) bool {
	entry = strings.TrimSpace(entry)
	if strings.ContainsAny(entry, "<>=~^,|*") || strings.Contains(entry, " - ") {
		return true
	}
	lower := strings.ToLower(entry)
	return lower == "x" || strings.HasSuffix(lower, ".x") || strings.Contains(lower, ".x.")
}

// checkSemantics applies the rules the schema cannot express.
func checkSemantics(def *Definition) []ValidationIssue {
	var issues []ValidationIssue

	if !ValidUID(def.UID) {
		issues = append(issues, ValidationIssue{Path: "/uid", Message: fmt.Sprintf("%q is not a valid identifier", def.UID), Keyword: "pattern"})
	}
	if def.Website != "" && !isAbsoluteURL(def.Website) {
		issues = append(issues, ValidationIssue{Path: "/websiteUrl", Message: "is not an url", Keyword: "url"})
	}
	if def.Logo != "" && !isAbsoluteURL(def.Logo) {
		issues = append(issues, ValidationIssue{Path: "/logo", Message: "is not an url", Keyword: "url"})
	}

	for i, v := range def.Versions {
		if _, err := ParseType(string(v.Type)); err != nil {
			issues = append(issues, ValidationIssue{Path: fmt.Sprintf("/versions/%d/type", i), Message: err.Error(), Keyword: "enum"})
		}
		for j, entry := range v.Compatible {
			if !IsVersionRange(entry) {
				continue
			}
			if _, err := semver.NewConstraint(entry); err != nil {
				issues = append(issues, ValidationIssue{
					Path:    fmt.Sprintf("/versions/%d/compatibleEnvironmentVersions/%d", i, j),
					Message: fmt.Sprintf("unparseable version range %q: %v", entry, err),
					Keyword: "range",
				})
			}
		}
		for j, link := range v.Links {
			if !isAbsoluteURL(link.URL) {
				issues = append(issues, ValidationIssue{
					Path:    fmt.Sprintf("/versions/%d/urls/%d/url", i, j),
					Message: fmt.Sprintf("%q is not an url", link.URL),
					Keyword: "url",
				})
			}
		}
	}
	return issues
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return false
	}
	if u.Scheme == "file" {
		return u.Path != ""
	}
	return u.Host != ""
}

// readFile reads the contents of a file at the given path.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return data, nil
}
