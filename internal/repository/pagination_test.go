package repository

import (
	"errors"
	"testing"
	"time"
)

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, time.October, 19, 22, 0, 0, 0, time.UTC), Seq: 42}
	s, err := EncodeCursor(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeCursor(s)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.CreatedAt.Equal(in.CreatedAt) || out.Seq != in.Seq {
		t.Fatalf("cursor = %+v, want %+v", out, in)
	}
}

func TestDecodeCursorEmptyAndInvalid(t *testing.T) {
	c, err := DecodeCursor("")
	if err != nil || c != nil {
		t.Fatalf("empty cursor = %v, %v; want nil, nil", c, err)
	}
	if _, err := DecodeCursor("%%%"); !errors.Is(err, ErrInvalidCursor) {
		t.Fatalf("err = %v, want %v", err, ErrInvalidCursor)
	}
}

func TestClampLimit(t *testing.T) {
	if got := ClampLimit(0, 20, 50); got != 20 {
		t.Fatalf("default = %d, want 20", got)
	}
	if got := ClampLimit(500, 20, 50); got != 50 {
		t.Fatalf("max = %d, want 50", got)
	}
	if got := ClampLimit(7, 20, 50); got != 7 {
		t.Fatalf("limit = %d, want 7", got)
	}
}
