package classify

// DefaultVersion is the version of the built-in rule set.
const DefaultVersion = "1.0.0"

var defaultRules = []Rule{
	{Tag: GovernmentID, Phrases: []string{
		"social security", "ssn", "ssns", "sin", "driver's license", "drivers license",
		"driver license", "state id", "state identification", "passport",
		"government id", "government issued", "taxpayer identification", "tax id",
		"itin", "national insurance", "military id", "alien registration",
	}},
	{Tag: Financial, Phrases: []string{
		"financial account", "bank account", "account number", "routing number",
		"credit card", "debit card", "card number", "payment card", "cvv",
		"security code", "expiration date", "financial information", "iban",
		"tax return", "w-2", "w2",
	}},
	{Tag: Medical, Phrases: []string{
		"medical", "health insurance", "health information", "diagnosis",
		"treatment", "prescription", "medication", "patient", "clinical",
		"medical record", "phi", "health plan", "member id", "lab results",
	}},
	{Tag: Credentials, Phrases: []string{
		"password", "passwords", "username", "user name", "login", "credentials",
		"security question", "pin", "access code", "online account",
	}},
	{Tag: Biometric, Phrases: []string{
		"biometric", "fingerprint", "fingerprints", "retina", "iris scan",
		"face geometry", "facial recognition", "voiceprint", "palm print",
	}},
	{Tag: ContactInfo, Phrases: []string{
		"address", "addresses", "email", "e-mail", "phone", "telephone",
		"phone number", "contact information", "mailing address",
	}},
	{Tag: OtherPII, Phrases: []string{
		"name", "names", "date of birth", "dob", "birth date", "birthdate",
		"gender", "age", "employee id", "student id",
	}},
}

// Default returns the built-in taxonomy.
func Default() *Taxonomy {
	t, err := NewTaxonomy(DefaultVersion, defaultRules)
	if err != nil {
		panic(err)
	}
	return t
}
