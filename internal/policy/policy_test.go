package policy

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPolicy(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	th := Thresholds{Review: 1, Deny: 3}
	tests := []struct {
		name  string
		input Input
		want  Decision
	}{
		{"clean", Input{MatchCount: 0, Thresholds: th}, Allow},
		{"one_match", Input{MatchCount: 1, Thresholds: th}, Review},
		{"below_deny", Input{MatchCount: 2, Thresholds: th}, Review},
		{"at_deny", Input{MatchCount: 3, Thresholds: th}, Deny},
		{"above_deny", Input{MatchCount: 10, Thresholds: th}, Deny},
		{"review_disabled", Input{MatchCount: 2, Thresholds: Thresholds{Deny: 3}}, Allow},
		{"all_disabled", Input{MatchCount: 50}, Allow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Evaluate(ctx, tt.input)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTemplates(t *testing.T) {
	ctx := context.Background()
	th := Thresholds{Review: 1, Deny: 3}

	tests := []struct {
		template string
		matches  int
		want     Decision
	}{
		{"strict", 0, Allow},
		{"strict", 1, Deny},
		{"standard", 1, Review},
		{"standard", 3, Deny},
		{"permissive", 2, Allow},
		{"permissive", 3, Review},
	}

	for _, tt := range tests {
		engine, err := NewEngine(ctx, Templates[tt.template])
		if err != nil {
			t.Fatalf("template %s does not compile: %v", tt.template, err)
		}
		got, err := engine.Evaluate(ctx, Input{MatchCount: tt.matches, Thresholds: th})
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		if got != tt.want {
			t.Errorf("%s with %d matches = %v, want %v", tt.template, tt.matches, got, tt.want)
		}
	}

	names := TemplateNames()
	if len(names) != 3 || names[0] != "permissive" || names[2] != "strict" {
		t.Errorf("TemplateNames() = %v", names)
	}
}

func TestPolicyUsesListAndActor(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, `package aegismask.policy
import rego.v1

default decision := "allow"

decision := "deny" if {
	input.list == "legal"
	input.actor != "counsel"
	input.distinct > 0
}
`)
	if err != nil {
		t.Fatal(err)
	}

	got, _ := engine.Evaluate(ctx, Input{List: "legal", Actor: "bot", Distinct: 1, MatchCount: 1})
	if got != Deny {
		t.Errorf("got %v, want deny", got)
	}
	got, _ = engine.Evaluate(ctx, Input{List: "legal", Actor: "counsel", Distinct: 1, MatchCount: 1})
	if got != Allow {
		t.Errorf("got %v, want allow", got)
	}
}

func TestEvaluate_SafeDefaults(t *testing.T) {
	ctx := context.Background()

	undefined, err := NewEngine(ctx, `package aegismask.policy
import rego.v1

decision := "allow" if { input.match_count == 99 }
`)
	if err != nil {
		t.Fatal(err)
	}
	if got, err := undefined.Evaluate(ctx, Input{}); err != nil || got != Review {
		t.Errorf("undefined decision = %v, %v; want review", got, err)
	}

	numeric, err := NewEngine(ctx, `package aegismask.policy
import rego.v1

decision := 1
`)
	if err != nil {
		t.Fatal(err)
	}
	if got, err := numeric.Evaluate(ctx, Input{}); !errors.Is(err, ErrNonStringDecision) || got != Review {
		t.Errorf("numeric decision = %v, %v", got, err)
	}

	unknown, err := NewEngine(ctx, `package aegismask.policy
import rego.v1

decision := "quarantine"
`)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := unknown.Evaluate(ctx, Input{}); got != Review {
		t.Errorf("unknown decision = %v, want review", got)
	}
}

func TestNewEngine_InvalidPolicy(t *testing.T) {
	if _, err := NewEngine(context.Background(), "package aegismask.policy\ndecision := "); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestLoadOrDefault(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	engine, err := LoadOrDefault(ctx, filepath.Join(dir, "missing.rego"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}
	if got, _ := engine.Evaluate(ctx, Input{MatchCount: 5, Thresholds: Thresholds{Review: 1, Deny: 5}}); got != Deny {
		t.Errorf("default policy = %v, want deny", got)
	}

	path := filepath.Join(dir, "policy.rego")
	if err := os.WriteFile(path, []byte(Templates["strict"]), 0600); err != nil {
		t.Fatal(err)
	}
	engine, err = LoadOrDefault(ctx, path)
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}
	if got, _ := engine.Evaluate(ctx, Input{MatchCount: 1}); got != Deny {
		t.Errorf("strict policy = %v, want deny", got)
	}

	if _, err := LoadPolicy(ctx, filepath.Join(dir, "missing.rego")); err == nil {
		t.Error("LoadPolicy() should fail for a missing file")
	}
}

func TestDecisionJSON(t *testing.T) {
	data, err := json.Marshal(map[string]Decision{"decision": Deny})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"decision":"deny"}` {
		t.Errorf("json = %s", data)
	}
	for _, d := range []Decision{Allow, Review, Deny} {
		if ParseDecision(d.String()) != d {
			t.Errorf("ParseDecision(%q) round trip failed", d)
		}
	}
	if Decision(42).String() != "unknown" {
		t.Error("out of range decision should print unknown")
	}
}
