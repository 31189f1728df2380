package review

import (
	"errors"
	"strings"
	"testing"

	"github.com/rogers-f/deliberate/internal/domain"
)

func TestPlannerSchema_Valid(t *testing.T) {
	out, err := PlannerSchema.Parse(`{"research_steps": [], "expert_steps": ["Calculate 2+2"]}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := out.List("research_steps"); got == nil || len(got) != 0 {
		t.Errorf("research_steps = %#v, want empty non-nil", got)
	}
	if got := out.List("expert_steps"); len(got) != 1 || got[0] != "Calculate 2+2" {
		t.Errorf("expert_steps = %#v", got)
	}
}

func TestPlannerSchema_Missing(t *testing.T) {
	_, err := PlannerSchema.Parse(`{"research_steps": ["a"]}`)
	var sv *domain.SchemaViolation
	if !errors.As(err, &sv) {
		t.Fatalf("err = %v, want SchemaViolation", err)
	}
	if sv.Agent != domain.AgentPlanner {
		t.Errorf("Agent = %q", sv.Agent)
	}
	if len(sv.Missing) != 1 || sv.Missing[0] != "expert_steps" {
		t.Errorf("Missing = %v", sv.Missing)
	}
	if !errors.Is(err, domain.ErrSchemaViolation) {
		t.Error("errors.Is(ErrSchemaViolation) = false")
	}
}

func TestSchema_NoJSON(t *testing.T) {
	_, err := CriticSchema.Parse("looks good to me")
	var sv *domain.SchemaViolation
	if !errors.As(err, &sv) {
		t.Fatalf("err = %v, want SchemaViolation", err)
	}
	if len(sv.Missing) != 2 {
		t.Errorf("Missing = %v, want both critic fields", sv.Missing)
	}
	if !strings.Contains(sv.Detail, "no JSON object") {
		t.Errorf("Detail = %q", sv.Detail)
	}
}

func TestExpertSchema_Aliases(t *testing.T) {
	out, err := ExpertSchema.Parse(`{"expert_answer": 4, "reasoning_trace": "2+2"}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if out.String("answer") != "4" {
		t.Errorf("answer = %q, want 4", out.String("answer"))
	}
	if out.String("reasoning") != "2+2" {
		t.Errorf("reasoning = %q", out.String("reasoning"))
	}
}

func TestSchema_CollectsAllViolations(t *testing.T) {
	_, err := ExpertSchema.Validate(map[string]any{"answer": "  ", "reasoning": []any{"x"}})
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	for _, want := range []string{"answer must be non-empty", "reasoning must be a string"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}
}

func TestCriticSchema_Decision(t *testing.T) {
	out, err := CriticSchema.Parse(`{"decision": " Approved. ", "feedback": ""}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if out.Decision("decision") != domain.DecisionApprove {
		t.Errorf("decision = %q", out.Decision("decision"))
	}

	_, err = CriticSchema.Parse(`{"decision": "maybe", "feedback": "unsure"}`)
	if err == nil || !strings.Contains(err.Error(), `decision "maybe" is not valid`) {
		t.Errorf("err = %v", err)
	}
}

func TestFinalizerSchema_TraceAlias(t *testing.T) {
	out, err := FinalizerSchema.Parse(`{"final_answer": "The question could not be answered.", "final_reasoning_trace": "The question could not be answered."}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if out.String("final_reasoning") != domain.FailureAnswer {
		t.Errorf("final_reasoning = %q", out.String("final_reasoning"))
	}
}

func TestToList_SingleString(t *testing.T) {
	out, err := PlannerSchema.Validate(map[string]any{"research_steps": "look it up", "expert_steps": ""})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := out.List("research_steps"); len(got) != 1 {
		t.Errorf("research_steps = %v", got)
	}
	if got := out.List("expert_steps"); len(got) != 0 {
		t.Errorf("expert_steps = %v", got)
	}
}

func TestJSONSchema(t *testing.T) {
	s := CriticSchema.JSONSchema()
	req, _ := s["required"].([]string)
	if len(req) != 2 || req[0] != "decision" || req[1] != "feedback" {
		t.Errorf("required = %v", req)
	}
	props := s["properties"].(map[string]any)
	dec := props["decision"].(map[string]any)
	if enum, _ := dec["enum"].([]string); len(enum) != 2 {
		t.Errorf("decision enum = %v", dec["enum"])
	}
}
