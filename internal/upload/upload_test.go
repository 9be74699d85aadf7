package upload

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/fetchguard/fetchguard/internal/types"
)

const tenMiB = 10 << 20

func defaultTestValidator() *Validator {
	return NewValidator(tenMiB, []string{
		".pdf", ".doc", ".docx", ".txt", ".md",
		".csv", ".xls", ".xlsx",
		".png", ".jpg", ".jpeg", ".gif", ".webp",
	})
}

func TestNewDescriptor(t *testing.T) {
	tests := []struct {
		filename string
		wantExt  string
	}{
		{"report.pdf", ".pdf"},
		{"REPORT.PDF", ".pdf"},
		{"notes.tar.gz", ".gz"},
		{"archive", ""},
		{"photo.JPEG", ".jpeg"},
		{".gitignore", ".gitignore"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			desc := NewDescriptor(tt.filename, 100)
			if desc.Extension != tt.wantExt {
				t.Errorf("NewDescriptor(%q).Extension = %q, want %q", tt.filename, desc.Extension, tt.wantExt)
			}
		})
	}
}

func TestValidateExtensions(t *testing.T) {
	v := defaultTestValidator()

	tests := []struct {
		name     string
		filename string
		allowed  bool
		reason   types.Reason
	}{
		{"pdf allowed", "report.pdf", true, ""},
		{"docx allowed", "notes.docx", true, ""},
		{"csv allowed", "data.csv", true, ""},
		{"png allowed", "chart.png", true, ""},
		{"uppercase allowed", "REPORT.PDF", true, ""},
		{"executable rejected", "payload.exe", false, types.ReasonDisallowedExtension},
		{"script rejected", "run.sh", false, types.ReasonDisallowedExtension},
		{"html rejected", "page.html", false, types.ReasonDisallowedExtension},
		{"no extension rejected", "README", false, types.ReasonDisallowedExtension},
		{"trailing dot rejected", "file.", false, types.ReasonDisallowedExtension},
		{"double extension uses last", "report.pdf.exe", false, types.ReasonDisallowedExtension},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := v.Validate(NewDescriptor(tt.filename, 1024), nil)
			if verdict.Allowed != tt.allowed {
				t.Fatalf("Validate(%q) allowed = %v, want %v (detail: %s)", tt.filename, verdict.Allowed, tt.allowed, verdict.Detail)
			}
			if !tt.allowed && verdict.Reason != tt.reason {
				t.Errorf("Validate(%q) reason = %s, want %s", tt.filename, verdict.Reason, tt.reason)
			}
		})
	}
}

func TestValidateSizeBoundary(t *testing.T) {
	v := defaultTestValidator()

	// Exactly at the cap is accepted.
	verdict := v.Validate(NewDescriptor("exact.pdf", tenMiB), nil)
	if !verdict.Allowed {
		t.Errorf("Size exactly at the cap must be accepted, got %s: %s", verdict.Reason, verdict.Detail)
	}

	// One byte over is rejected.
	verdict = v.Validate(NewDescriptor("over.pdf", tenMiB+1), nil)
	if verdict.Allowed {
		t.Fatal("Size one byte over the cap must be rejected")
	}
	if verdict.Reason != types.ReasonOversizeUpload {
		t.Errorf("Expected reason %s, got %s", types.ReasonOversizeUpload, verdict.Reason)
	}
}

// The measured size wins over the declared size: a client understating its
// payload is caught by the SizeFunc.
func TestValidateMeasuredSizeOverridesDeclared(t *testing.T) {
	v := NewValidator(1024, []string{".txt"})

	payload := bytes.NewReader(make([]byte, 2048))
	verdict := v.Validate(NewDescriptor("understated.txt", 10), SeekerSize(payload))
	if verdict.Allowed {
		t.Fatal("Upload with measured size over the cap must be rejected")
	}
	if verdict.Reason != types.ReasonOversizeUpload {
		t.Errorf("Expected reason %s, got %s", types.ReasonOversizeUpload, verdict.Reason)
	}
	if verdict.SizeBytes != 2048 {
		t.Errorf("Expected measured size 2048, got %d", verdict.SizeBytes)
	}
}

func TestValidateUnmeasurableFailsClosed(t *testing.T) {
	v := NewValidator(1024, []string{".txt"})

	broken := SizeFunc(func() (int64, error) {
		return 0, errors.New("stream not seekable")
	})
	verdict := v.Validate(NewDescriptor("mystery.txt", 10), broken)
	if verdict.Allowed {
		t.Fatal("Unmeasurable payload must be rejected")
	}
	if verdict.Reason != types.ReasonOversizeUpload {
		t.Errorf("Expected reason %s, got %s", types.ReasonOversizeUpload, verdict.Reason)
	}
}

func TestSeekerSizeRestoresOffset(t *testing.T) {
	payload := strings.NewReader("hello world")
	if _, err := payload.Seek(6, 0); err != nil {
		t.Fatal(err)
	}

	size, err := SeekerSize(payload)()
	if err != nil {
		t.Fatalf("SeekerSize failed: %v", err)
	}
	if size != 11 {
		t.Errorf("Expected size 11, got %d", size)
	}

	rest := make([]byte, 16)
	n, _ := payload.Read(rest)
	if string(rest[:n]) != "world" {
		t.Errorf("Offset not restored, read %q", rest[:n])
	}
}

func TestNewValidatorNormalizesExtensions(t *testing.T) {
	v := NewValidator(1024, []string{"PDF", " .Txt ", "", "csv"})

	for _, filename := range []string{"a.pdf", "b.txt", "c.csv"} {
		verdict := v.Validate(NewDescriptor(filename, 10), nil)
		if !verdict.Allowed {
			t.Errorf("Expected %q to be allowed after normalization, got %s", filename, verdict.Reason)
		}
	}
}
