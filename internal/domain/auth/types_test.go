package auth

import (
	"testing"
	"time"
)

func TestSession_Expired(t *testing.T) {
	now := time.Now()
	s := Session{ExpiresAt: now.Add(time.Minute)}
	if s.Expired(now) {
		t.Fatalf("did not expect expired")
	}
	if !s.Expired(now.Add(time.Minute)) {
		t.Fatalf("expected expired at the boundary")
	}
}

func TestAccount_Payload(t *testing.T) {
	a := Account{ID: 7, PublicID: "pub", Username: "alice"}
	p := a.Payload()
	if p.Version != SessionPayloadVersion || p.AccountID != 7 || p.PublicID != "pub" || p.Username != "alice" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestCredentials_Flags(t *testing.T) {
	if (Credentials{}).HasPassword() {
		t.Fatalf("empty credentials should not have a password")
	}
	if (Credentials{TwoFactorEnabled: true}).HasTwoFactor() {
		t.Fatalf("2fa without secret should not count")
	}
	if !(Credentials{TwoFactorEnabled: true, TwoFactorSecret: "S"}).HasTwoFactor() {
		t.Fatalf("expected 2fa")
	}
	if !(CredentialsUpdate{}).IsEmpty() {
		t.Fatalf("expected empty update")
	}
}

func TestParseVerificationPurpose(t *testing.T) {
	cases := map[string]bool{
		"password":  true,
		" 2FA ":     true,
		"passkey":   true,
		"session":   true,
		"":          false,
		"something": false,
	}
	for raw, ok := range cases {
		if _, got := ParseVerificationPurpose(raw); got != ok {
			t.Errorf("ParseVerificationPurpose(%q) = %v, want %v", raw, got, ok)
		}
	}
}

func TestCheckCounter(t *testing.T) {
	tests := []struct {
		stored, reported uint32
		want             CounterStatus
	}{
		{0, 0, CounterUnsupported},
		{0, 1, CounterAdvanced},
		{5, 6, CounterAdvanced},
		{5, 5, CounterRegressed},
		{5, 2, CounterRegressed},
		{5, 0, CounterRegressed},
	}
	for _, tt := range tests {
		if got := CheckCounter(tt.stored, tt.reported); got != tt.want {
			t.Errorf("CheckCounter(%d, %d) = %v, want %v", tt.stored, tt.reported, got, tt.want)
		}
	}
}
