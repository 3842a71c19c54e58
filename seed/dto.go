package seed

import "time"

// ManifestDTO is the on-disk representation of a seed manifest
type ManifestDTO struct {
	Files []FileDTO `json:"files" yaml:"files"`
}

// FileDTO is one file in a manifest. At most one of Contents, Base64 and
// Source may be set; none of them yields an empty file.
type FileDTO struct {
	Path     string     `json:"path" yaml:"path"`
	Contents *string    `json:"contents,omitempty" yaml:"contents,omitempty"` // inline text
	Base64   *string    `json:"base64,omitempty" yaml:"base64,omitempty"`     // inline binary, std encoding
	Source   *string    `json:"source,omitempty" yaml:"source,omitempty"`     // file relative to the manifest
	Mtime    *time.Time `json:"mtime,omitempty" yaml:"mtime,omitempty"`       // Last Modified at (Default load time)
}
