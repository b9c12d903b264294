package batch

import (
	"errors"
	"testing"
)

func TestNewOK(t *testing.T) {
	r := NewOK("art-1")
	if r.ID() != "art-1" {
		t.Errorf("ID() = %q", r.ID())
	}
	if r.Status() != StatusOK {
		t.Errorf("Status() = %q, want %q", r.Status(), StatusOK)
	}
	if r.Err() != nil {
		t.Errorf("Err() = %v, want nil", r.Err())
	}
}

func TestNewError(t *testing.T) {
	err := errors.New("rate limited")
	r := NewError("art-2", err)
	if r.Status() != StatusError {
		t.Errorf("Status() = %q, want %q", r.Status(), StatusError)
	}
	if !errors.Is(r.Err(), err) {
		t.Errorf("Err() = %v, want %v", r.Err(), err)
	}
}

func TestNewSkipped(t *testing.T) {
	reason := errors.New("no text")
	r := NewSkipped("art-3", reason)
	if r.Status() != StatusSkipped {
		t.Errorf("Status() = %q, want %q", r.Status(), StatusSkipped)
	}
	if !errors.Is(r.Err(), reason) {
		t.Errorf("Err() = %v, want %v", r.Err(), reason)
	}
}

func TestSummarize(t *testing.T) {
	results := []Result{
		NewOK("a"), NewOK("b"),
		NewError("c", errors.New("x")),
		NewSkipped("d", nil), NewSkipped("e", nil), NewSkipped("f", nil),
	}
	got := Summarize(results)
	want := Summary{OK: 2, Failed: 1, Skipped: 3}
	if got != want {
		t.Errorf("Summarize() = %+v, want %+v", got, want)
	}
	if (Summarize(nil) != Summary{}) {
		t.Error("empty input should summarize to zero")
	}
}
