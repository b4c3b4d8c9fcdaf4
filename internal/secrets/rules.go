package secrets

// DefaultRules covers credentials that commonly end up pasted into chat
// transcripts. Prefix-identified tokens need no keyword.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "private-key",
			Description: "PEM private key header",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----`,
		},
		{
			ID:          "aws-access-key-id",
			Description: "AWS access key ID",
			Pattern:     `\b(?:AKIA|ASIA|AGPA|AIDA|AROA)[A-Z0-9]{16}\b`,
		},
		{
			ID:          "aws-secret-access-key",
			Description: "AWS secret access key assignment",
			Pattern:     `(?i)(?:aws_secret_access_key|secret_access_key)\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}['"]?`,
			Keywords:    []string{"secret_access_key"},
		},
		{
			ID:          "github-token",
			Description: "GitHub token",
			Pattern:     `\b(?:ghp|gho|ghu|ghs)_[A-Za-z0-9]{36}\b|\bgithub_pat_[A-Za-z0-9_]{22,}`,
		},
		{
			ID:          "gitlab-token",
			Description: "GitLab personal access token",
			Pattern:     `\bglpat-[A-Za-z0-9_-]{20,}`,
		},
		{
			ID:          "slack-token",
			Description: "Slack token",
			Pattern:     `\bxox[baprs]-[A-Za-z0-9-]{10,}`,
		},
		{
			ID:          "stripe-key",
			Description: "Stripe API key",
			Pattern:     `\b(?:sk|rk)_(?:live|test)_[A-Za-z0-9]{24,}`,
		},
		{
			ID:          "anthropic-api-key",
			Description: "Anthropic API key",
			Pattern:     `\bsk-ant-[A-Za-z0-9_-]{32,}`,
		},
		{
			ID:          "openai-api-key",
			Description: "OpenAI API key",
			Pattern:     `\bsk-(?:proj-)?[A-Za-z0-9_-]{32,}`,
		},
		{
			ID:          "google-api-key",
			Description: "Google API key",
			Pattern:     `\bAIza[A-Za-z0-9_-]{35}`,
		},
		{
			ID:          "jwt",
			Description: "JSON Web Token",
			Pattern:     `\beyJ[A-Za-z0-9_-]{8,}\.eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]+`,
		},
		{
			ID:          "bearer-token",
			Description: "Bearer token",
			Pattern:     `(?i)\bbearer\s+[A-Za-z0-9_.~+/-]{20,}=*`,
			Keywords:    []string{"bearer"},
		},
		{
			ID:          "connection-url",
			Description: "URL with embedded credentials",
			Pattern:     `(?i)\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqps?)://[^\s:/@]+:[^\s@]+@[^\s]+`,
		},
		{
			ID:          "generic-assignment",
			Description: "Password or API key assignment",
			Pattern:     `(?i)\b(?:password|passwd|api[_-]?key|client_secret|secret_key|access_token)['"]?\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`,
			Keywords:    []string{"password", "passwd", "key", "secret", "token"},
		},
	}
}
