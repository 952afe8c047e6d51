package remote

import (
	"testing"

	"github.com/teesmad/findmyspot/internal/spot"
)

func TestCodec(t *testing.T) {
	in := doc("a", "Lot A")

	data, err := EncodeFields(in.Fields)
	if err != nil {
		t.Fatalf("EncodeFields failed: %v", err)
	}

	out, err := DecodeDocument("a", data)
	if err != nil {
		t.Fatalf("DecodeDocument failed: %v", err)
	}

	got, err := spot.Validate(out)
	if err != nil {
		t.Fatalf("decoded document should validate: %v", err)
	}
	want, _ := spot.Validate(in)
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}

	if _, err := DecodeDocument("x", []byte("{broken")); err == nil {
		t.Error("expected error decoding broken JSON")
	}

	empty, err := DecodeDocument("n", []byte("null"))
	if err != nil || empty.Fields == nil {
		t.Errorf("null body should decode to empty fields, got %+v err=%v", empty, err)
	}
}
