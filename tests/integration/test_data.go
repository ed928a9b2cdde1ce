package integration

// Test identities and credentials shared across integration tests
const (
	TestEmail     = "a@x.com"
	TestPassword  = "correct-horse-battery"
	WrongPassword = "not-the-password"

	SecondEmail    = "b@x.com"
	SecondPassword = "another-fine-password"
)
