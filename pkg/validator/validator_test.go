package validator

import "testing"

type testPayload struct {
	Title        string `json:"title" validate:"required"`
	Participants int    `json:"max_participants" validate:"gte=0,lte=500"`
	Role         string `json:"role" validate:"omitempty,oneof=coach participant observer"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := testPayload{
		Title:        "Weekly check-in",
		Participants: 8,
		Role:         "coach",
	}

	if err := ValidateStruct(payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateStructFailures(t *testing.T) {
	payload := testPayload{
		Title:        "",
		Participants: 1000,
		Role:         "admin",
	}

	err := ValidateStruct(payload)
	if err == nil {
		t.Fatal("expected validation error")
	}

	vErrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	if len(vErrs) != 3 {
		t.Fatalf("expected 3 validation errors, got %d", len(vErrs))
	}

	foundTitle := false
	for _, v := range vErrs {
		if v.Field == "title" {
			foundTitle = true
		}
	}

	if !foundTitle {
		t.Fatal("expected title field to be present in validation errors")
	}
}

func TestValidationErrorsMessage(t *testing.T) {
	errs := ValidationErrors{
		{Field: "title", Tag: "required"},
		{Field: "max_participants", Tag: "lte", Param: "500"},
	}

	want := "title failed on required; max_participants failed on lte=500"
	if errs.Error() != want {
		t.Fatalf("unexpected message: %s", errs.Error())
	}
}
