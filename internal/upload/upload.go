// Package upload enforces size and declared-type policy on incoming files.
// It never inspects file content; sniffing is a downstream concern.
package upload

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fetchguard/fetchguard/internal/types"
)

// Descriptor describes an incoming file. It is created per upload, owned by
// the validation call, and discarded afterwards.
type Descriptor struct {
	Filename     string
	DeclaredSize int64
	Extension    string // lowercased, including the dot; "" if none
}

// NewDescriptor derives a Descriptor from a filename and declared size.
func NewDescriptor(filename string, declaredSize int64) Descriptor {
	return Descriptor{
		Filename:     filename,
		DeclaredSize: declaredSize,
		Extension:    strings.ToLower(filepath.Ext(filename)),
	}
}

// SizeFunc reports the actual byte size of the payload. Implementations
// should measure without consuming or buffering the stream where possible.
type SizeFunc func() (int64, error)

// SeekerSize returns a SizeFunc that measures a seekable stream by seeking
// to its end and restoring the offset, without reading the payload.
func SeekerSize(rs io.ReadSeeker) SizeFunc {
	return func() (int64, error) {
		cur, err := rs.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, err
		}
		end, err := rs.Seek(0, io.SeekEnd)
		if err != nil {
			return 0, err
		}
		if _, err := rs.Seek(cur, io.SeekStart); err != nil {
			return 0, err
		}
		return end, nil
	}
}

// Verdict is the outcome of validating an upload.
type Verdict struct {
	Allowed   bool
	Reason    types.Reason
	Detail    string
	SizeBytes int64
}

// Validator enforces the upload policy. Stateless over immutable
// configuration; safe for concurrent use.
type Validator struct {
	maxBytes   int64
	extensions map[string]struct{}
}

// NewValidator creates a Validator. Extensions are normalized to lowercase
// with a leading dot.
func NewValidator(maxBytes int64, extensions []string) *Validator {
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}
	return &Validator{maxBytes: maxBytes, extensions: allowed}
}

// Validate checks a descriptor against the extension allowlist and size cap.
// Fail-closed throughout: no extension, an unknown extension, a declared or
// measured size over the cap, or an unmeasurable stream all reject.
func (v *Validator) Validate(desc Descriptor, size SizeFunc) Verdict {
	if desc.Extension == "" {
		return Verdict{
			Reason: types.ReasonDisallowedExtension,
			Detail: "file has no extension",
		}
	}
	if _, ok := v.extensions[desc.Extension]; !ok {
		return Verdict{
			Reason: types.ReasonDisallowedExtension,
			Detail: "extension " + desc.Extension + " is not allowed",
		}
	}

	if desc.DeclaredSize > v.maxBytes {
		return Verdict{
			Reason:    types.ReasonOversizeUpload,
			Detail:    fmt.Sprintf("declared size %d exceeds maximum %d", desc.DeclaredSize, v.maxBytes),
			SizeBytes: desc.DeclaredSize,
		}
	}

	actual := desc.DeclaredSize
	if size != nil {
		measured, err := size()
		if err != nil {
			return Verdict{
				Reason: types.ReasonOversizeUpload,
				Detail: "payload size could not be determined: " + err.Error(),
			}
		}
		actual = measured
		if measured > v.maxBytes {
			return Verdict{
				Reason:    types.ReasonOversizeUpload,
				Detail:    fmt.Sprintf("size %d exceeds maximum %d", measured, v.maxBytes),
				SizeBytes: measured,
			}
		}
	}

	return Verdict{Allowed: true, SizeBytes: actual}
}
