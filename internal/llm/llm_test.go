package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aristath/minions/internal/backend"
	"github.com/aristath/minions/internal/edit"
	"github.com/aristath/minions/internal/pipeline"
)

func TestParseCandidate(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		wantKind  edit.Kind
		wantEdits []edit.SearchReplace
		wantRaw   string
		wantDiff  bool
	}{
		{
			name:     "single search replace",
			reply:    "<<<<<<< SEARCH\nx = 1\n=======\nx = 2\n>>>>>>> REPLACE\n",
			wantKind: edit.KindLocalizedEdit,
			wantEdits: []edit.SearchReplace{
				{Search: "x = 1\n", Replace: "x = 2\n"},
			},
		},
		{
			name: "fenced blocks with prose",
			reply: "Here you go:\n```python\n<<<<<<< SEARCH\ndef a():\n    pass\n=======\ndef a():\n    return 1\n>>>>>>> REPLACE\n" +
				"<<<<<<< SEARCH\nb = 2\n=======\n>>>>>>> REPLACE\n```\n",
			wantKind: edit.KindLocalizedEdit,
			wantEdits: []edit.SearchReplace{
				{Search: "def a():\n    pass\n", Replace: "def a():\n    return 1\n"},
				{Search: "b = 2\n", Replace: ""},
			},
		},
		{
			name:     "unterminated block falls through",
			reply:    "<<<<<<< SEARCH\nx = 1\n=======\nx = 2\n",
			wantKind: edit.KindFullFile,
			wantRaw:  "<<<<<<< SEARCH\nx = 1\n=======\nx = 2\n",
		},
		{
			name:     "diff in fence",
			reply:    "```diff\n--- a/f.py\n+++ b/f.py\n@@ -1,1 +1,1 @@\n-x = 1\n+x = 2\n```",
			wantKind: edit.KindLocalizedEdit,
			wantDiff: true,
		},
		{
			name:     "bare diff",
			reply:    "@@ -1,1 +1,1 @@\n-x = 1\n+x = 2\n",
			wantKind: edit.KindLocalizedEdit,
			wantDiff: true,
		},
		{
			name:     "fenced full file",
			reply:    "Updated file:\n```go\npackage main\n\nfunc main() {}\n```\nDone.",
			wantKind: edit.KindFullFile,
			wantRaw:  "package main\n\nfunc main() {}\n",
		},
		{
			name:     "longest fence wins",
			reply:    "```\nshort\n```\n\n```\nmuch longer body\nwith two lines\n```\n",
			wantKind: edit.KindFullFile,
			wantRaw:  "much longer body\nwith two lines\n",
		},
		{
			name:     "raw text",
			reply:    "\n\nx = 2\n\n",
			wantKind: edit.KindFullFile,
			wantRaw:  "x = 2\n",
		},
		{
			name:     "crlf normalised",
			reply:    "<<<<<<< SEARCH\r\na\r\n=======\r\nb\r\n>>>>>>> REPLACE\r\n",
			wantKind: edit.KindLocalizedEdit,
			wantEdits: []edit.SearchReplace{
				{Search: "a\n", Replace: "b\n"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ParseCandidate(tt.reply)
			if c.Kind != tt.wantKind {
				t.Fatalf("kind = %v, want %v", c.Kind, tt.wantKind)
			}
			if tt.wantEdits != nil {
				if len(c.Edits) != len(tt.wantEdits) {
					t.Fatalf("edits = %+v", c.Edits)
				}
				for i := range c.Edits {
					if c.Edits[i] != tt.wantEdits[i] {
						t.Errorf("edit %d = %+v, want %+v", i, c.Edits[i], tt.wantEdits[i])
					}
				}
			}
			if tt.wantRaw != "" && c.RawText != tt.wantRaw {
				t.Errorf("raw = %q, want %q", c.RawText, tt.wantRaw)
			}
			if tt.wantDiff && (!strings.Contains(c.Diff, "@@ -1,1 +1,1 @@") || strings.Contains(c.Diff, "```")) {
				t.Errorf("diff = %q", c.Diff)
			}
		})
	}
}

func TestParseCandidate_EmptyReply(t *testing.T) {
	c := ParseCandidate("  \n\n")
	if !c.Empty() {
		t.Errorf("candidate = %+v, want empty", c)
	}
}

func TestRenderDiff(t *testing.T) {
	before := "a\nb\nc\nd\ne\nf\ng\nh\ni\nj\n"
	after := "a\nb\nc\nd\ne\nF\ng\nh\ni\nj\n"

	got := RenderDiff(before, after)
	want := "@@ ... @@\n c\n d\n e\n-f\n+F\n g\n h\n i\n@@ ... @@\n"
	if got != want {
		t.Errorf("diff =\n%s\nwant\n%s", got, want)
	}

	if RenderDiff(before, before) != "" {
		t.Error("identical input should give an empty diff")
	}
}

func TestRenderPrompts(t *testing.T) {
	gen, err := RenderGenerate(GenerateData{
		Path:         "pkg/util.py",
		Instruction:  "Add a docstring",
		Original:     "def f():\n    pass\n",
		ErrorContext: "syntax failure: line 2",
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"pkg/util.py", "Add a docstring", "```py\ndef f():\n    pass\n```", "previous attempt was rejected", "syntax failure: line 2", "<<<<<<< SEARCH"} {
		if !strings.Contains(gen, want) {
			t.Errorf("generate prompt missing %q:\n%s", want, gen)
		}
	}

	first, err := RenderGenerate(GenerateData{Path: "a.go", Instruction: "x", Original: "package a\n"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(first, "rejected") {
		t.Error("first attempt prompt should carry no feedback")
	}

	rev, err := RenderReview(ReviewData{Path: "a.go", Instruction: "rename", Original: "package a\n", Diff: "-x\n+y\n"})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"rename", "-x\n+y", "1. SYNTAX", "TASK", "PRESERVATION", "PASS", "FAIL: <reason>"} {
		if !strings.Contains(rev, want) {
			t.Errorf("review prompt missing %q", want)
		}
	}
}

// fakeBackend records the last message and replies with a fixed text.
type fakeBackend struct {
	reply string
	err   error
	last  backend.Message
}

func (f *fakeBackend) Send(ctx context.Context, msg backend.Message) (backend.Response, error) {
	f.last = msg
	if f.err != nil {
		return backend.Response{}, f.err
	}
	return backend.Response{Content: f.reply}, nil
}

func (f *fakeBackend) Close() error { return nil }
func (f *fakeBackend) Name() string { return "fake" }

func TestGenerator_Generate(t *testing.T) {
	b := &fakeBackend{reply: "<<<<<<< SEARCH\nx = 1\n=======\nx = 2\n>>>>>>> REPLACE"}
	g := NewGenerator(b, RoleConfig{System: "sys", Temperature: 0.1}, nil)

	c, err := g.Generate(context.Background(), pipeline.GenerateRequest{
		TaskID: "t-1", Path: "a.py", Original: "x = 1\n", Instruction: "bump x", Attempt: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.TaskID != "t-1" || c.Attempt != 2 || c.Kind != edit.KindLocalizedEdit || len(c.Edits) != 1 {
		t.Errorf("candidate = %+v", c)
	}
	if b.last.System != "sys" || b.last.Temperature != 0.1 || !strings.Contains(b.last.Content, "bump x") {
		t.Errorf("message = %+v", b.last)
	}
}

func TestGenerator_BackendError(t *testing.T) {
	g := NewGenerator(&fakeBackend{err: errors.New("connection refused")}, RoleConfig{}, nil)
	_, err := g.Generate(context.Background(), pipeline.GenerateRequest{Path: "a.py"})
	if err == nil || !strings.Contains(err.Error(), "fake: connection refused") {
		t.Errorf("err = %v", err)
	}
}

func TestReviewer_SendsDiff(t *testing.T) {
	b := &fakeBackend{reply: "PASS"}
	r := NewReviewer(b, RoleConfig{})

	reply, err := r.Review(context.Background(), "a.py", "x = 1\n", "x = 2\n", "bump x")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "PASS" {
		t.Errorf("reply = %q", reply)
	}
	if !strings.Contains(b.last.Content, "-x = 1\n+x = 2") {
		t.Errorf("prompt lacks diff:\n%s", b.last.Content)
	}
}
