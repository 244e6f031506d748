package render

import "testing"

func TestEvaluator_RunsScriptAndReadsDocument(t *testing.T) {
	e, err := NewEvaluator("research-mcp-server/1.0")
	if err != nil {
		t.Fatal(err)
	}

	res, err := e.Eval(`document.title = "hello"; document.body.innerText = "world";`)
	if err != nil {
		t.Fatal(err)
	}
	if res.Title != "hello" {
		t.Fatalf("expected title %q, got %q", "hello", res.Title)
	}
	if res.Body != "world" {
		t.Fatalf("expected body %q, got %q", "world", res.Body)
	}
}

func TestEvaluator_SyntaxErrorReturnsError(t *testing.T) {
	e, err := NewEvaluator("research-mcp-server/1.0")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Eval(`this is not valid javascript {{{`); err == nil {
		t.Fatal("expected an error for invalid script")
	}
}

func TestEvaluator_ReusableAcrossCalls(t *testing.T) {
	e, err := NewEvaluator("research-mcp-server/1.0")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Eval(`document.title = "first";`); err != nil {
		t.Fatal(err)
	}
	res, err := e.Eval(`document.title = document.title + "-second";`)
	if err != nil {
		t.Fatal(err)
	}
	if res.Title != "first-second" {
		t.Fatalf("expected accumulated title, got %q", res.Title)
	}
}
