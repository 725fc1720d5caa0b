package security

// defaultKeywords returns the seed keyword set. Terms are matched as
// lowercase substrings of the request text.
func defaultKeywords() map[string][]string {
	return map[string][]string{
		CategoryCredentials: {
			"password", "passwd", "secret key", "api key", "api_key",
			"access token", "auth token", "private key", "credential",
			"ssh-rsa", "client_secret",
		},
		CategoryPersonalData: {
			"ssn", "social security", "passport number", "driver's license",
			"date of birth", "home address", "phone number", "email address",
		},
		CategoryFinancial: {
			"credit card", "card number", "cvv", "iban", "routing number",
			"bank account", "swift code", "account balance",
		},
		CategoryHealth: {
			"diagnosis", "prescription", "medical record", "patient id",
			"health insurance", "icd-10",
		},
		CategoryBusiness: {
			"confidential", "proprietary", "trade secret", "internal only",
			"do not distribute", "nda",
		},
		CategoryLegal: {
			"attorney-client", "privileged", "litigation", "subpoena",
			"settlement agreement",
		},
	}
}

// recommendationsFor maps triggered categories to short advisory strings.
func recommendationsFor(categories []string) []string {
	advice := map[string]string{
		CategoryCredentials:  "Avoid embedding credentials or API secrets in prompts; reference them indirectly.",
		CategoryPersonalData: "Anonymize or redact personal identifiers before submitting.",
		CategoryFinancial:    "Mask account and card numbers; financial details rarely improve responses.",
		CategoryHealth:       "Remove patient-identifying health information to stay within data-handling policy.",
		CategoryBusiness:     "Business-confidential content is restricted to high-security providers.",
		CategoryLegal:        "Legally privileged material is restricted to high-security providers.",
	}

	out := make([]string, 0, len(categories))
	for _, category := range categories {
		if rec, ok := advice[category]; ok {
			out = append(out, rec)
		}
	}
	return out
}
