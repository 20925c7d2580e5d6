package validate

import (
	"strings"
	"testing"

	"karrot_server/pkg/errorx"
)

type scoreInput struct {
	ProposalId uint `json:"proposal" validate:"required"`
	Score      int  `json:"score" validate:"min=-2,max=2"`
}

func TestStruct(t *testing.T) {
	if err := Struct(scoreInput{ProposalId: 1, Score: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := Struct(scoreInput{ProposalId: 1, Score: 3})
	if !errorx.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "score") {
		t.Fatalf("message should name the json field: %q", err.Error())
	}

	if err := Struct(scoreInput{Score: -3}); !errorx.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestVar(t *testing.T) {
	if err := Var("rule", "FREQ=WEEKLY", "required"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Var("rule", "", "required"); !errorx.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
