// Package render provides a JS-evaluation fallback for pages whose real
// content is only produced by client-side script. It is adapted from the
// teacher's jschallenge.OttoSolver, reframed from "solve an anti-bot
// challenge snippet" to "evaluate a page's inline scripts to recover
// dynamically-rendered content" — this server has no browser available, so
// a single evaluation pass followed by a re-scan of the resulting DOM stub
// stands in for a real headless browser's "wait for networkidle".
package render

import (
	"fmt"
	"sync"

	"github.com/robertkrimen/otto"
)

// Evaluator wraps a pure-Go JS VM, bootstrapped with minimal window/
// document/navigator stubs so typical page scripts that build up a content
// string (e.g. `document.title = ...`, template-literal assembly) can run
// without a real DOM.
type Evaluator struct {
	mu sync.Mutex
	vm *otto.Otto
	ua string
}

// NewEvaluator creates an Evaluator whose navigator.userAgent is set to ua.
func NewEvaluator(ua string) (*Evaluator, error) {
	vm := otto.New()
	e := &Evaluator{vm: vm, ua: ua}
	if err := e.bootstrap(); err != nil {
		return nil, fmt.Errorf("render: bootstrap: %w", err)
	}
	return e, nil
}

// bootstrap seeds the VM with stand-ins for the browser globals page
// scripts commonly touch. It is intentionally minimal: a real DOM is not
// available, so property assignments are captured on plain objects rather
// than reflected into any rendered tree.
func (e *Evaluator) bootstrap() error {
	script := fmt.Sprintf(`
		var window = this;
		var navigator = { userAgent: %q };
		var document = {
			title: "",
			body: { innerHTML: "", innerText: "" },
			documentElement: { innerHTML: "" },
			getElementById: function() { return null; },
			querySelector: function() { return null; },
			querySelectorAll: function() { return []; },
			createElement: function() { return {}; },
			addEventListener: function() {}
		};
	`, e.ua)
	_, err := e.vm.Run(script)
	return err
}

// Result is what a script evaluation produced, read back out of the
// bootstrapped document stub.
type Result struct {
	Title string
	Body  string
}

// Eval runs script against the bootstrapped VM and returns whatever ended
// up in document.title / document.body.innerText.
func (e *Evaluator) Eval(script string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.vm.Run(script); err != nil {
		return Result{}, fmt.Errorf("render: script evaluation failed: %w", err)
	}

	title, _ := e.vm.Run(`document.title`)
	body, _ := e.vm.Run(`document.body.innerText || document.body.innerHTML`)

	return Result{
		Title: valueToString(title),
		Body:  valueToString(body),
	}, nil
}

func valueToString(v otto.Value) string {
	if v.IsUndefined() || v.IsNull() {
		return ""
	}
	s, err := v.ToString()
	if err != nil {
		return ""
	}
	return s
}
