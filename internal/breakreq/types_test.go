package breakreq

import (
	"errors"
	"testing"
	"time"
)

func TestParseDepartment(t *testing.T) {
	tests := []struct {
		input string
		want  Department
		ok    bool
	}{
		{"AML", DepartmentAML, true},
		{"Verification", DepartmentVerification, true},
		{" Alert ", DepartmentAlert, true},
		{"aml", "", false},
		{"Finance", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := ParseDepartment(tt.input)
		if tt.ok {
			if err != nil || got != tt.want {
				t.Errorf("ParseDepartment(%q) = %q, %v; want %q", tt.input, got, err, tt.want)
			}
			continue
		}
		if !errors.Is(err, ErrUnknownDepartment) {
			t.Errorf("ParseDepartment(%q) expected ErrUnknownDepartment, got %v", tt.input, err)
		}
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  int
		ok    bool
	}{
		{"5", 5, true},
		{"10", 10, true},
		{"15", 15, true},
		{"20", 20, true},
		{"25", 0, false},
		{"0", 0, false},
		{"-5", 0, false},
		{"+5", 0, false},
		{"ten", 0, false},
		{"10.0", 0, false},
		{"", 0, false},
		{"99999999999999999999", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.input)
		if tt.ok {
			if err != nil || got != tt.want {
				t.Errorf("ParseDuration(%q) = %d, %v; want %d", tt.input, got, err, tt.want)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("ParseDuration(%q) expected ErrInvalidDuration, got %v", tt.input, err)
		}
	}
}

func TestNewPendingRejectsInvalidValues(t *testing.T) {
	now := time.Now()
	if _, err := NewPending(1, "bob", "Finance", 10, now); err == nil {
		t.Fatal("expected unknown department to be rejected")
	}
	if _, err := NewPending(1, "bob", DepartmentAlert, 7, now); err == nil {
		t.Fatal("expected disallowed duration to be rejected")
	}
	req, err := NewPending(1, "bob", DepartmentAlert, 15, now)
	if err != nil {
		t.Fatalf("NewPending error: %v", err)
	}
	if req.Status != StatusPending {
		t.Fatalf("expected pending status, got %q", req.Status)
	}
}

func TestActionTokenRoundTrip(t *testing.T) {
	tok := ActionToken{Action: ActionIgnore, RequesterID: 123456789}
	if tok.String() != "ignore-123456789" {
		t.Fatalf("unexpected wire form %q", tok.String())
	}
	parsed, err := ParseActionToken(tok.String())
	if err != nil {
		t.Fatalf("ParseActionToken error: %v", err)
	}
	if parsed != tok {
		t.Fatalf("expected %+v, got %+v", tok, parsed)
	}
	if parsed.Action.TargetStatus() != StatusIgnored {
		t.Fatalf("expected ignore to target Ignored, got %q", parsed.Action.TargetStatus())
	}
}

func TestParseActionTokenRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "approve", "approve-", "approve-abc", "deny-12", "approve-12-13", "APPROVE-1", " approve-1"} {
		if _, err := ParseActionToken(raw); !errors.Is(err, ErrMalformedToken) {
			t.Errorf("ParseActionToken(%q) expected ErrMalformedToken, got %v", raw, err)
		}
	}
}

func TestActionTokenValidate(t *testing.T) {
	if err := (ActionToken{Action: "maybe", RequesterID: 1}).Validate(); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
	if err := (ActionToken{Action: ActionApprove, RequesterID: 1}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
