package services

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapTagsMarker(t *testing.T) {
	err := Wrap(ErrValidation, "score", "parse response", "model returned no scores", nil)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected wrapped error to match ErrValidation: %v", err)
	}
	if !strings.Contains(err.Error(), "score: parse response") {
		t.Fatalf("expected stage context in message, got %q", err.Error())
	}
}

func TestWrapNilMarkerDefaultsTransient(t *testing.T) {
	err := Wrap(nil, "fetch_feeds", "", "", errors.New("boom"))
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}

func TestDetailsStripsMarkerPrefix(t *testing.T) {
	err := Wrap(ErrExternalTool, "generate", "primary section", "", errors.New("upstream 503"))
	details := Details(err)
	if details.Kind != "external" {
		t.Fatalf("unexpected kind %q", details.Kind)
	}
	if strings.HasPrefix(details.Message, ErrExternalTool.Error()) {
		t.Fatalf("expected marker prefix stripped, got %q", details.Message)
	}
}

func TestDetailsUnclassified(t *testing.T) {
	details := Details(errors.New("plain failure"))
	if details.Kind != "unclassified" {
		t.Fatalf("unexpected kind %q", details.Kind)
	}
	if details.Message != "plain failure" {
		t.Fatalf("unexpected message %q", details.Message)
	}
}
