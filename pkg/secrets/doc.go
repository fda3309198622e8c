// Package secrets seals small values at rest with AES-256-GCM.
//
// Per-scope keys are derived with HKDF-SHA-256 from a single application
// key, so only the application key needs to be stored. The field name is
// authenticated as additional data.
//
//	appKey, _ := secrets.ParseKey(os.Getenv("NOTIFY_ENCRYPTION_KEY"))
//	box, _ := secrets.NewBox(appKey)
//	scope := secrets.Scope(recipientID, notificationID)
//	tok, err := box.Seal(scope, "data.phoneNumber", []byte(`"555-0100"`))
//	raw, err := box.Open(scope, "data.phoneNumber", tok)
package secrets
