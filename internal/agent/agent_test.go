package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/michaelbrown/recall/internal/llm"
	"github.com/michaelbrown/recall/internal/memory"
	"github.com/michaelbrown/recall/internal/sandbox"
)

func TestMain(m *testing.M) {
	// The test binary doubles as the sandbox worker.
	if sandbox.Init() {
		return
	}
	os.Exit(m.Run())
}

func testAgent(t *testing.T, client llm.Client) *Agent {
	t.Helper()
	store, err := memory.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	a, err := New(client, sandbox.New(10*time.Second), store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestChatRunsSnippetAndReplies(t *testing.T) {
	mock := &mockClient{
		responses: []llm.Response{
			{Message: llm.AssistantMessage("<think>compute</think>\n<python>\nx = 1 + 1\n</python>")},
			{Message: llm.AssistantMessage("<think>done</think>\n<reply>x is 2</reply>")},
		},
	}

	a := testAgent(t, mock)

	var snippets, results []string
	a.OnSnippet = func(code string) { snippets = append(snippets, code) }
	a.OnSnippetResult = func(r string) { results = append(results, r) }

	reply, err := a.Chat(context.Background(), "what is 1+1?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "x is 2" {
		t.Errorf("reply = %q, want %q", reply, "x is 2")
	}
	if len(snippets) != 1 || snippets[0] != "x = 1 + 1" {
		t.Errorf("snippets = %#v", snippets)
	}
	if len(results) != 1 || !strings.Contains(results[0], `"x": 2`) {
		t.Errorf("results = %#v, want bindings with x=2", results)
	}

	// The result must have been fed back as a user message.
	var sawResult bool
	for _, m := range a.History() {
		if m.Role == llm.RoleUser && strings.Contains(m.Content, "<result>") {
			sawResult = true
		}
	}
	if !sawResult {
		t.Error("history should contain a <result> user message")
	}
}

func TestChatSnippetTouchesMemory(t *testing.T) {
	mock := &mockClient{
		responses: []llm.Response{
			{Message: llm.AssistantMessage("<python>\nok = create_file(\"entities/bob.md\", \"# Bob\")\n</python>")},
			{Message: llm.AssistantMessage("<reply>Saved Bob.</reply>")},
		},
	}

	a := testAgent(t, mock)
	if _, err := a.Chat(context.Background(), "remember Bob"); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if !a.Store().FileExists("entities/bob.md") {
		t.Error("snippet should have written entities/bob.md")
	}
}

func TestChatSnippetErrorIsFedBack(t *testing.T) {
	mock := &mockClient{
		responses: []llm.Response{
			{Message: llm.AssistantMessage("<python>\nfail(\"nope\")\n</python>")},
			{Message: llm.AssistantMessage("<reply>That failed.</reply>")},
		},
	}

	a := testAgent(t, mock)
	var result string
	a.OnSnippetResult = func(r string) { result = r }

	reply, err := a.Chat(context.Background(), "try something")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "That failed." {
		t.Errorf("reply = %q", reply)
	}
	if !strings.Contains(result, "error") || !strings.Contains(result, "nope") {
		t.Errorf("result = %q, want snippet error payload", result)
	}
}

func TestChatSnippetCannotFollowSymlinkOut(t *testing.T) {
	base := t.TempDir()
	secret := filepath.Join(base, "secret.md")
	if err := os.WriteFile(secret, []byte("classified"), 0o644); err != nil {
		t.Fatal(err)
	}
	root := filepath.Join(base, "vault")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(secret, filepath.Join(root, "leak.md")); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}

	store, err := memory.NewStore(root)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	mock := &mockClient{
		responses: []llm.Response{
			{Message: llm.AssistantMessage("<python>\ncontent = read_file(\"leak.md\")\n</python>")},
			{Message: llm.AssistantMessage("<reply>done</reply>")},
		},
	}
	a, err := New(mock, sandbox.New(10*time.Second), store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var result string
	a.OnSnippetResult = func(r string) { result = r }
	if _, err := a.Chat(context.Background(), "read leak.md"); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if strings.Contains(result, "classified") {
		t.Errorf("result = %q, snippet read outside the vault through a symlink", result)
	}
	if !strings.Contains(result, "Error") {
		t.Errorf("result = %q, want an Error string binding", result)
	}
}

func TestChatSnippetHonorsMemoryLimits(t *testing.T) {
	store, err := memory.NewStoreWithLimits(t.TempDir(), memory.Limits{FileSize: 8})
	if err != nil {
		t.Fatalf("NewStoreWithLimits: %v", err)
	}
	mock := &mockClient{
		responses: []llm.Response{
			{Message: llm.AssistantMessage("<python>\nok = create_file(\"big.md\", \"x\" * 32)\n</python>")},
			{Message: llm.AssistantMessage("<reply>done</reply>")},
		},
	}
	a, err := New(mock, sandbox.New(10*time.Second), store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var result string
	a.OnSnippetResult = func(r string) { result = r }
	if _, err := a.Chat(context.Background(), "write something big"); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !strings.Contains(result, `"ok": false`) {
		t.Errorf("result = %q, want ok=false for an oversized write", result)
	}
	if a.Store().FileExists("big.md") {
		t.Error("oversized file should not have been written")
	}
}

func TestChatUntaggedContentIsFinal(t *testing.T) {
	mock := &mockClient{
		responses: []llm.Response{
			{Message: llm.AssistantMessage("just plain text")},
		},
	}

	a := testAgent(t, mock)
	reply, err := a.Chat(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "just plain text" {
		t.Errorf("reply = %q", reply)
	}
}

func TestChatStopsAtMaxTurns(t *testing.T) {
	snippet := llm.Response{Message: llm.AssistantMessage("<python>\nx = 1\n</python>")}
	mock := &mockClient{responses: []llm.Response{snippet, snippet}}

	a := testAgent(t, mock)
	a.SetMaxTurns(2)

	_, err := a.Chat(context.Background(), "loop forever")
	if err == nil || !strings.Contains(err.Error(), "max tool turns") {
		t.Errorf("err = %v, want max tool turns error", err)
	}
}

func TestNewSeedsStore(t *testing.T) {
	a := testAgent(t, &mockClient{})
	if !a.Store().FileExists("user.md") {
		t.Error("New should seed user.md")
	}
}

func TestSaveConversation(t *testing.T) {
	a := testAgent(t, &mockClient{})
	a.history = append(a.history, llm.UserMessage("hello"))

	dir := t.TempDir()
	path, err := a.SaveConversation(dir)
	if err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading saved conversation: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Error("saved conversation should contain the user message")
	}
}

func TestPersonaApply(t *testing.T) {
	a := testAgent(t, &mockClient{})
	p := &Persona{SystemPrompt: "Answer tersely.", MaxTurns: 3}
	p.Apply(a)

	if a.maxTurns != 3 {
		t.Errorf("maxTurns = %d, want 3", a.maxTurns)
	}
	if !strings.Contains(a.history[0].Content, "Answer tersely.") {
		t.Error("persona prompt should be appended to the system prompt")
	}
}
