package manifest

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Definition is one mod's metadata record. Definitions are values: the
// registry stores and hands out copies, never shared pointers.
type Definition struct {
	UID         string    `json:"uid"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Website     string    `json:"websiteUrl,omitempty"`
	Categories  []string  `json:"categories,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Source      string    `json:"source,omitempty"`
	Logo        string    `json:"logo,omitempty"`
	Versions    []Version `json:"versions,omitempty"`
}

// Version is one installable release of a Definition.
type Version struct {
	// UID is the owning Definition's identifier.
	UID        string   `json:"-"`
	Name       string   `json:"name"`
	Compatible []string `json:"compatibleEnvironmentVersions"`
	Type       Type     `json:"type"`
	Links      []Link   `json:"urls"`
}

// Link is one download location of a Version.
type Link struct {
	URL string `json:"url"`
	// Interactive links can only be resolved by browsing to them and
	// catching the download the page triggers.
	Interactive bool `json:"interactive,omitempty"`
}

// Type decides where and how a version's artifacts get installed.
type Type string

// Type constants for the version "type" field.
const (
	TypeLibrary  Type = "library"
	TypeCore     Type = "core"
	TypeResource Type = "resource"
	TypeConfig   Type = "config"
)

// ValidTypes contains all valid version type values.
var ValidTypes = []Type{
	TypeLibrary,
	TypeCore,
	TypeResource,
	TypeConfig,
}

// ParseType converts a payload type string into a Type.
func ParseType(s string) (Type, error) {
	for _, t := range ValidTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown version type %q", s)
}

func (t Type) String() string { return string(t) }

// Label returns the long human-readable name of the type.
func (t Type) Label() string {
	switch t {
	case TypeLibrary:
		return "LibraryArtifact"
	case TypeCore:
		return "CoreArtifact"
	case TypeResource:
		return "ResourceBundle"
	case TypeConfig:
		return "ConfigurationBundle"
	default:
		return "Unknown"
	}
}

// FileName returns the last path segment of the link URL, which is the name
// an artifact is stored under.
func (l Link) FileName() string {
	return FileNameFromURL(l.URL)
}

// FileNameFromURL returns the unescaped last segment of rawURL's path.
func FileNameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return ""
	}
	return name
}

// Clone returns a deep copy of d.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	c := *d
	c.Categories = cloneStrings(d.Categories)
	c.Tags = cloneStrings(d.Tags)
	if d.Versions != nil {
		c.Versions = make([]Version, len(d.Versions))
		for i, v := range d.Versions {
			v.Compatible = cloneStrings(v.Compatible)
			if v.Links != nil {
				v.Links = append([]Link(nil), v.Links...)
			}
			c.Versions[i] = v
		}
	}
	return &c
}

// Equal reports whether d and other describe the same record. Nil and empty
// lists compare equal since they serialize identically.
func (d *Definition) Equal(other *Definition) bool {
	if d == nil || other == nil {
		return d == other
	}
	a, errA := Marshal(d)
	b, errB := Marshal(other)
	return errA == nil && errB == nil && string(a) == string(b)
}

// HasTag reports whether the definition carries tag (case-insensitive).
func (d *Definition) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
