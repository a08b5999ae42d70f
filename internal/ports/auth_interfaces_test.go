package ports_test

import (
	"testing"

	mocks "github.com/uninbox/authd/internal/mocks/auth"
	"github.com/uninbox/authd/internal/ports"
)

// This test only verifies that our doubles conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.PasswordHasher = (*mocks.PlainHasher)(nil)
	var _ ports.TOTP = (*mocks.StaticTOTP)(nil)
	var _ ports.PasskeyCeremony = (*mocks.FakeCeremony)(nil)
}
