package prompt

import (
	"errors"
	"strings"
	"testing"
)

func TestBuildPrompts(t *testing.T) {
	cases := []struct {
		op       Operation
		question string
		want     string
	}{
		{Caption, "", "<image> Describe this image in detail."},
		{Ask, "What color is it?", "Answer the question based on the image <image>. Question: What color is it?"},
		{Ask, "  <b>raw</b>  ", "Answer the question based on the image <image>. Question:   <b>raw</b>  "},
		{OCR, "", "Read the text on the image<image> and write it.\n Text on the image: "},
	}

	for _, tc := range cases {
		got, err := Build(tc.op, tc.question)
		if err != nil {
			t.Fatalf("Build(%s) err: %v", tc.op, err)
		}
		if got != tc.want {
			t.Fatalf("Build(%s) = %q, want %q", tc.op, got, tc.want)
		}
	}
}

func TestBuildAskIsDeterministic(t *testing.T) {
	a, _ := Build(Ask, "How many?")
	b, _ := Build(Ask, "How many?")
	if a != b {
		t.Fatalf("prompts differ: %q vs %q", a, b)
	}
}

func TestBuildAskRejectsBlankQuestion(t *testing.T) {
	for _, q := range []string{"", " ", "\t\n  "} {
		if _, err := Build(Ask, q); !errors.Is(err, ErrEmptyQuestion) {
			t.Fatalf("Build(Ask, %q): expected ErrEmptyQuestion, got %v", q, err)
		}
	}
}

func TestBuildUnknownOperation(t *testing.T) {
	if _, err := Build(Operation("translate"), ""); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("expected ErrUnknownOperation, got %v", err)
	}
}

func TestEveryPromptHasOnePlaceholder(t *testing.T) {
	for _, op := range []Operation{Caption, Ask, OCR} {
		p, _ := Build(op, "q")
		if n := strings.Count(p, Placeholder); n != 1 {
			t.Fatalf("%s prompt has %d placeholders", op, n)
		}
	}
}

func TestExtractOffset(t *testing.T) {
	p, _ := Build(Ask, "What color is it?")
	offset := len(p) - len(Placeholder)

	raw := strings.Repeat("x", offset) + "red"
	got, err := Extract(raw, p)
	if err != nil {
		t.Fatalf("Extract err: %v", err)
	}
	if got != "red" {
		t.Fatalf("expected red, got %q", got)
	}

	exact, err := Extract(raw[:offset], p)
	if err != nil {
		t.Fatalf("Extract at exact length err: %v", err)
	}
	if exact != "" {
		t.Fatalf("expected empty answer, got %q", exact)
	}
}

func TestExtractShortOutputFails(t *testing.T) {
	p, _ := Build(Caption, "")
	short := strings.Repeat("x", len(p)-len(Placeholder)-1)
	if _, err := Extract(short, p); !errors.Is(err, ErrShortOutput) {
		t.Fatalf("expected ErrShortOutput, got %v", err)
	}
	if _, err := Extract("", p); !errors.Is(err, ErrShortOutput) {
		t.Fatalf("expected ErrShortOutput for empty output, got %v", err)
	}
}

func TestEchoRoundTripsThroughExtract(t *testing.T) {
	for _, q := range []string{"What color is it?", "Что здесь написано?", "is <image> literal?"} {
		for _, op := range []Operation{Caption, Ask, OCR} {
			p, _ := Build(op, q)
			got, err := Extract(Echo(p, "an answer"), p)
			if err != nil {
				t.Fatalf("Extract err: %v", err)
			}
			if got != "an answer" {
				t.Fatalf("%s/%q: expected %q, got %q", op, q, "an answer", got)
			}
		}
	}
}

func TestSplit(t *testing.T) {
	p, _ := Build(OCR, "")
	before, after, ok := Split(p)
	if !ok {
		t.Fatal("expected placeholder in prompt")
	}
	if before != "Read the text on the image" || after != " and write it.\n Text on the image: " {
		t.Fatalf("unexpected split: %q | %q", before, after)
	}
}
